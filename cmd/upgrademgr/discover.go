package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <address>...",
		Short: "Gather device state and refresh the inventory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			failures := 0
			for _, res := range a.discoverer().Discover(cmd.Context(), args) {
				if res.OK {
					fmt.Printf("%s\tok\tvia %s\n", res.Address, res.Via)
				} else {
					failures++
					fmt.Printf("%s\tfailed\t%v\n", res.Address, res.Err)
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d devices unreachable", failures, len(args))
			}
			return nil
		},
	}
}

func newNetconfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netconf",
		Short: "Enable or disable netconf-yang on devices",
	}
	for _, sub := range []struct {
		use    string
		enable bool
	}{
		{"enable <address>...", true},
		{"disable <address>...", false},
	} {
		enable := sub.enable
		cmd.AddCommand(&cobra.Command{
			Use:   sub.use,
			Short: fmt.Sprintf("Set netconf-yang %s and save the config", map[bool]string{true: "on", false: "off"}[enable]),
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := openApp()
				if err != nil {
					return err
				}
				defer a.Close()

				failures := 0
				for _, res := range a.discoverer().ToggleNetconf(cmd.Context(), args, enable) {
					if res.OK {
						fmt.Printf("%s\tok\n", res.Address)
					} else {
						failures++
						fmt.Printf("%s\tfailed\t%v\n", res.Address, res.Err)
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d devices failed", failures, len(args))
				}
				return nil
			},
		})
	}
	return cmd
}
