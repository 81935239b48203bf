package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eldarg/pinboard/backend/internal/database"
	"github.com/eldarg/pinboard/backend/internal/seed"
)

var (
	seedUsers         int
	seedImagesPerUser int
	seedClean         bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with development data",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		if err := database.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		seeder := seed.NewSeeder(db)
		if seedClean {
			if err := seeder.Clean(); err != nil {
				return fmt.Errorf("clean: %w", err)
			}
			fmt.Println("Cleared existing data")
		}

		if err := seeder.SeedDev(seedUsers, seedImagesPerUser); err != nil {
			return fmt.Errorf("seed: %w", err)
		}

		fmt.Printf("Seeded %d users with up to %d images each\n", seedUsers, seedImagesPerUser)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedUsers, "users", 10, "number of users to create")
	seedCmd.Flags().IntVar(&seedImagesPerUser, "images-per-user", 3, "images to create per user")
	seedCmd.Flags().BoolVar(&seedClean, "clean", false, "delete all existing rows first")
}
