package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/eldarg/pinboard/backend/internal/database"
	"github.com/eldarg/pinboard/backend/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pinboard-admin",
	Short: "Pinboard admin CLI - operational tasks against the Pinboard database",
	Long: `pinboard-admin runs maintenance tasks directly against the Pinboard
database: purging old activity, seeding development data, and issuing
bearer tokens for testing. It reads the same environment variables as
the server (DATABASE_URL, JWT_SECRET, ...).`,
}

// openDB connects using the server's environment configuration and
// returns the shared gorm handle.
func openDB() (*gorm.DB, error) {
	if err := database.Initialize(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return database.DB, nil
}

func init() {
	cobra.OnInitialize(func() {
		_ = godotenv.Load()
		if err := logger.Initialize(os.Getenv("LOG_LEVEL"), ""); err != nil {
			fmt.Fprintf(os.Stderr, "Error: initialize logger: %v\n", err)
			os.Exit(1)
		}
	})

	rootCmd.AddCommand(purgeActionsCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(issueTokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
