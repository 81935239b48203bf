package email

import (
	"context"

	"github.com/eldarg/pinboard/backend/internal/logger"
	"go.uber.org/zap"
)

// LogSender logs instead of delivering. Used in development when no
// SES credentials are configured.
type LogSender struct{}

var _ Sender = (*LogSender)(nil)

func (LogSender) SendNotificationEmail(ctx context.Context, subject, body, recipient string) error {
	logger.Log.Info("Email suppressed (no SES configured)",
		zap.String("recipient", recipient),
		zap.String("subject", subject),
	)
	return nil
}
