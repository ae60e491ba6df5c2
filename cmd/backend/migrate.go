package main

import (
	"database/sql"
	"fmt"

	"github.com/hairizuanbinnoorazman/web-pentest/database"
	"github.com/spf13/cobra"
)

var (
	migrationsPath string
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration commands",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(sqlDB *sql.DB) error {
			if err := database.RunMigrations(sqlDB, migrationsPath); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Println("Migrations applied successfully")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Rollback the most recent migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(func(sqlDB *sql.DB) error {
			if err := database.RollbackMigration(sqlDB, migrationsPath); err != nil {
				return fmt.Errorf("failed to rollback migration: %w", err)
			}
			fmt.Println("Migration rolled back successfully")
			return nil
		})
	},
}

// withDatabase connects with the configured settings, ignoring
// database.enabled, and closes the connection once fn returns.
func withDatabase(fn func(*sql.DB) error) error {
	cfg, err := LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.Connect(cfg.Database.Connection())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	defer sqlDB.Close()

	return fn(sqlDB)
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)

	migrateCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	migrateCmd.PersistentFlags().StringVarP(&migrationsPath, "path", "p", "", "migrations directory path (default: embedded migrations)")

	rootCmd.AddCommand(migrateCmd)
}
