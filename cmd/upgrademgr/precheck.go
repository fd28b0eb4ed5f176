package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	upgrademgr "github.com/iosxe-tools/upgrademgr"
)

func newPrecheckCmd() *cobra.Command {
	var image string
	var targetVersion string

	cmd := &cobra.Command{
		Use:   "precheck <address>",
		Short: "Run the upgrade readiness checks against a device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			addr := args[0]
			dev, err := a.Store.GetDevice(addr)
			if err != nil {
				return err
			}
			if dev == nil {
				return errors.Errorf("device %s not in inventory, run discover first", addr)
			}

			target := image
			if target == "" && dev.TargetImage != nil {
				target = *dev.TargetImage
			}
			version := targetVersion
			if version == "" && target != "" {
				version = upgrademgr.ExtractVersionFromFilename(target)
			}
			if version == "" {
				return errors.New("target version unknown, pass --target-version or --image")
			}

			in := upgrademgr.PrecheckInput{
				Address:        addr,
				CurrentVersion: dev.CurrentVersion,
				TargetVersion:  version,
				Role:           dev.Role,
				Filesystem:     upgrademgr.FilesystemForRole(dev.Role),
				TargetImage:    target,
			}
			if target != "" {
				if img, err := a.Store.GetImage(target); err == nil && img != nil && img.SizeBytes > 0 {
					in.TargetImageSizeMB = float64(img.SizeBytes) / (1 << 20)
				}
			}

			engine := &upgrademgr.PrecheckEngine{Gateway: a.Gateway}
			results, err := engine.RunAndRecord(cmd.Context(), a.Store, in)
			if err != nil {
				return err
			}
			for _, r := range results {
				fmt.Printf("%-7s %-26s %s\n", r.Result, r.Name, r.Message)
			}
			status, _ := upgrademgr.Verdict(results)
			fmt.Printf("Overall: %s\n", status)
			if !upgrademgr.AllPassed(results) {
				return errors.New("readiness checks failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "target image filename (defaults to the device's assigned image)")
	cmd.Flags().StringVar(&targetVersion, "target-version", "", "target version (defaults to the version parsed from the image name)")
	return cmd
}
