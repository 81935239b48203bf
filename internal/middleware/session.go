package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const sessionCookie = "pb_session"

// Session assigns every visitor a session id cookie. Anonymous
// favorites key off it; on sign-in the id is what gets merged.
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(sessionCookie)
		if err != nil || sessionID == "" {
			sessionID = uuid.New().String()
			c.SetCookie(sessionCookie, sessionID, int(TokenTTL.Seconds()), "/", "", false, true)
		}

		c.Set("session_id", sessionID)
		c.Next()
	}
}
