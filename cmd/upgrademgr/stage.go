package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	upgrademgr "github.com/iosxe-tools/upgrademgr"
)

func newCopyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <image> <address>...",
		Short: "Copy an image from the repository onto devices and verify it",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, addrs := args[0], args[1:]
			return runBulk(cmd.Context(), addrs, upgrademgr.JobImageCopy,
				func(a *app) func(context.Context, string, string) {
					return func(ctx context.Context, jobID, addr string) {
						a.Pipeline.ExecuteCopy(ctx, jobID, addr, image)
					}
				})
		},
	}
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <image> <address>...",
		Short: "Verify a staged image against the repository hash",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, addrs := args[0], args[1:]
			return runBulk(cmd.Context(), addrs, upgrademgr.JobImageVerify,
				func(a *app) func(context.Context, string, string) {
					return func(ctx context.Context, jobID, addr string) {
						a.Pipeline.ExecuteVerify(ctx, jobID, addr, image)
					}
				})
		},
	}
}

func newRemoveInactiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-inactive <address>...",
		Short: "Remove inactive install packages from devices",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulk(cmd.Context(), args, upgrademgr.JobRemoveInactive,
				func(a *app) func(context.Context, string, string) {
					return a.Pipeline.ExecuteRemoveInactive
				})
		},
	}
}

// runBulk opens the app, fans the operation out across devices and reports
// the per-device job ids so the operator can tail the logs.
func runBulk(ctx context.Context, addrs []string, jobType string,
	makeRun func(a *app) func(ctx context.Context, jobID, addr string)) error {

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	jobIDs, err := a.Pipeline.Bulk(ctx, addrs, jobType, makeRun(a))
	for i, id := range jobIDs {
		fmt.Printf("%s\tjob %s\n", addrs[i], id)
	}
	return err
}
