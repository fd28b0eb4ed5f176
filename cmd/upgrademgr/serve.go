package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	upgrademgr "github.com/iosxe-tools/upgrademgr"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduled-job dispatcher until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			scheduler := upgrademgr.NewScheduler(a.Store, a.Pipeline)
			return scheduler.Run(ctx)
		},
	}
}
