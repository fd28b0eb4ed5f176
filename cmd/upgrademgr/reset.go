package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the inventory, jobs, precheck history and job logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to wipe state without --yes")
			}
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.discoverer().Reset(a.Logs); err != nil {
				return err
			}
			fmt.Println("state cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the wipe")
	return cmd
}
