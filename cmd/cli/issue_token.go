package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/middleware"
	"github.com/eldarg/pinboard/backend/internal/models"
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token <user-id-or-username>",
	Short: "Issue a bearer token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return errors.New("JWT_SECRET is not set")
		}

		db, err := openDB()
		if err != nil {
			return err
		}

		var user models.User
		err = db.Where("id = ? OR username = ?", args[0], args[0]).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("no user matching %q", args[0])
		}
		if err != nil {
			return fmt.Errorf("look up user: %w", err)
		}

		token, expiresAt, err := middleware.GenerateToken(&user, []byte(secret))
		if err != nil {
			return fmt.Errorf("sign token: %w", err)
		}

		fmt.Printf("Token for %s (expires %s):\n%s\n", user.Username, expiresAt.Format("2006-01-02 15:04 MST"), token)
		return nil
	},
}
