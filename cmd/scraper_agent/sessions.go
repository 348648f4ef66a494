package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/social-scraper/internal/observability"
	"github.com/jonathan/social-scraper/internal/sessions"
)

var (
	sessionsActiveOnly bool
	sessionsUsername   string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored browsing sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions without their credentials",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer store.Close()

		views, err := sessions.NewStore(store, logger).List(cmd.Context(), sessionsActiveOnly, sessionsUsername)
		if err != nil {
			return err
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintSessions(views)
		return nil
	},
}

var sessionsDeactivateCmd = &cobra.Command{
	Use:   "deactivate <session-id>",
	Short: "Mark a session inactive so jobs stop selecting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[0], err)
		}
		cfg, logger, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := sessions.NewStore(store, logger).Deactivate(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s deactivated\n", id)
		return nil
	},
}

func init() {
	sessionsListCmd.Flags().BoolVar(&sessionsActiveOnly, "active-only", false, "Only list active sessions")
	sessionsListCmd.Flags().StringVar(&sessionsUsername, "username", "", "Only list sessions of this account")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsDeactivateCmd)
	rootCmd.AddCommand(sessionsCmd)
}
