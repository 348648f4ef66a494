package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/social-scraper/internal/db"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Database schema commands",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the tables and indexes if they do not exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is required")
		}
		database, err := db.Connect(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.InitSchema(cmd.Context()); err != nil {
			return err
		}
		logger.Info("schema initialized")
		return nil
	},
}

var schemaPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print the schema DDL",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, err := fmt.Fprint(cmd.OutOrStdout(), db.Schema())
		return err
	},
}

func init() {
	schemaCmd.AddCommand(schemaInitCmd, schemaPrintCmd)
	rootCmd.AddCommand(schemaCmd)
}
