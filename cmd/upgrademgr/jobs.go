package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and manage background jobs",
	}
	cmd.AddCommand(newJobsListCmd(), newJobsLogsCmd(), newJobsCancelCmd(), newJobsRescheduleCmd())
	return cmd
}

func newJobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.Store.ListJobs()
			if err != nil {
				return err
			}
			for _, j := range jobs {
				when := "-"
				if j.ScheduleTime != nil {
					when = j.ScheduleTime.Format(time.RFC3339)
				}
				fmt.Printf("%s\t%-24s\t%-10s\t%s\t%s\n", j.ID, j.Type, j.Status, j.Address, when)
			}
			return nil
		},
	}
}

func newJobsLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <job-id>",
		Short: "Print the full log for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			text, err := a.Logs.ReadAll(args[0])
			if err != nil {
				return err
			}
			fmt.Print(text)
			return nil
		},
	}
}

func newJobsRescheduleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reschedule <job-id> <rfc3339-time>",
		Short: "Move a job back to Scheduled at a new time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return err
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.RescheduleJob(args[0], at); err != nil {
				return err
			}
			fmt.Printf("job %s scheduled for %s\n", args[0], at.Format(time.RFC3339))
			return nil
		},
	}
}

func newJobsCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending, scheduled or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Pipeline.CancelJob(args[0]); err != nil {
				return err
			}
			fmt.Printf("job %s cancelled\n", args[0])
			return nil
		},
	}
}
