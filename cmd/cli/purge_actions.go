package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/eldarg/pinboard/backend/internal/actions"
)

var purgeOlderThan time.Duration

var purgeActionsCmd = &cobra.Command{
	Use:   "purge-actions",
	Short: "Delete activity records older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}

		deleted, err := actions.NewService(db).Purge(context.Background(), purgeOlderThan)
		if err != nil {
			return fmt.Errorf("purge actions: %w", err)
		}

		fmt.Printf("Purged %d actions older than %s\n", deleted, purgeOlderThan)
		return nil
	},
}

func init() {
	purgeActionsCmd.Flags().DurationVar(&purgeOlderThan, "older-than", actions.DefaultRetention,
		"delete actions whose age exceeds this duration")
}
