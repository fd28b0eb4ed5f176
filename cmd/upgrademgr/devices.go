package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDevicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "Inspect the device inventory",
	}
	cmd.AddCommand(newDevicesListCmd(), newDevicesSetImageCmd())
	return cmd
}

func newDevicesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List inventory devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			devices, err := a.Store.ListDevices()
			if err != nil {
				return err
			}
			for _, d := range devices {
				target := "-"
				if d.TargetImage != nil && *d.TargetImage != "" {
					target = *d.TargetImage
				}
				verdict := "-"
				if d.PrecheckStatus != nil {
					verdict = *d.PrecheckStatus
				}
				fmt.Printf("%s\t%-16s\t%-14s\t%-8s\t%-10s\tcopied=%s verified=%s\tprecheck=%s\t%s\n",
					d.Address, d.Hostname, d.Model, d.Role, d.CurrentVersion,
					d.ImageCopied, d.ImageVerified, verdict, target)
			}
			return nil
		},
	}
}

func newDevicesSetImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-image <image> <address>...",
		Short: "Assign a target image, resetting staging status",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			image, addrs := args[0], args[1:]
			for _, addr := range addrs {
				if err := a.Store.SetTargetImage(addr, image); err != nil {
					return err
				}
				fmt.Printf("%s\ttarget %s\n", addr, image)
			}
			return nil
		},
	}
}
