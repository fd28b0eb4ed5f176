package main

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	upgrademgr "github.com/iosxe-tools/upgrademgr"
)

func newUpgradeCmd() *cobra.Command {
	var image string
	var at string

	cmd := &cobra.Command{
		Use:   "upgrade <address>...",
		Short: "Install the target image on devices, now or at a scheduled time",
		Long: `upgrade assigns the target image to each device and either runs the
install immediately or records a scheduled job for the dispatcher started by
'serve'. The scheduled job resolves the device's target image at dispatch
time, so reassigning an image before the window takes effect without
rescheduling.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			var when *time.Time
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return errors.Wrap(err, "parse --at failed, want RFC3339")
				}
				when = &t
			}

			for _, addr := range args {
				target := image
				if target == "" {
					dev, err := a.Store.GetDevice(addr)
					if err != nil {
						return err
					}
					if dev == nil || dev.TargetImage == nil || *dev.TargetImage == "" {
						return errors.Errorf("no target image for %s, pass --image", addr)
					}
					target = *dev.TargetImage
				} else if err := a.Store.SetTargetImage(addr, target); err != nil {
					return err
				}

				version := upgrademgr.ExtractVersionFromFilename(target)
				job, err := a.Pipeline.NewJob(addr, upgrademgr.JobUpgrade, version, when)
				if err != nil {
					return err
				}
				if when != nil {
					fmt.Printf("%s\tjob %s scheduled for %s\n", addr, job.ID, when.Format(time.RFC3339))
					continue
				}
				fmt.Printf("%s\tjob %s\n", addr, job.ID)
				a.Pipeline.ExecuteUpgrade(cmd.Context(), job.ID, addr, target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "image filename to install (defaults to the device's assigned image)")
	cmd.Flags().StringVar(&at, "at", "", "RFC3339 time to schedule the upgrade instead of running now")
	return cmd
}
