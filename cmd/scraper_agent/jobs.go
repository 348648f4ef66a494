package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/social-scraper/internal/observability"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored scrape jobs",
}

var jobsStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show a job's status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		cfg, _, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer store.Close()

		job, err := store.GetJob(cmd.Context(), id)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job %s not found", id)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintJob(job)
		return nil
	},
}

var jobsResultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Show what a completed job scraped",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", args[0], err)
		}
		cfg, _, err := loadSettings()
		if err != nil {
			return err
		}
		store, err := openStore(cmd.Context(), cfg, false)
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.GetJobResults(cmd.Context(), id)
		if err != nil {
			return err
		}
		if results == nil {
			return fmt.Errorf("job %s not found", id)
		}
		observability.NewPrinter(cmd.OutOrStdout()).PrintResults(results)
		return nil
	},
}

func init() {
	jobsCmd.AddCommand(jobsStatusCmd, jobsResultsCmd)
	rootCmd.AddCommand(jobsCmd)
}
