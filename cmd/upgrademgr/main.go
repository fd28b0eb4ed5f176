package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/iosxe-tools/upgrademgr/internal/env"
)

var rootCmd = &cobra.Command{
	Use:   "upgrademgr",
	Short: "IOS-XE fleet firmware upgrade orchestration",
	Long: `upgrademgr manages firmware upgrades across a Cisco IOS-XE fleet:
device discovery over NETCONF with SSH fallback, upgrade readiness checks,
image staging and hash verification, and scheduled install jobs with an
auditable per-job log trail.`,
}

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()

	rootCmd.AddCommand(
		newServeCmd(),
		newDiscoverCmd(),
		newDevicesCmd(),
		newNetconfCmd(),
		newPrecheckCmd(),
		newCopyCmd(),
		newVerifyCmd(),
		newUpgradeCmd(),
		newRemoveInactiveCmd(),
		newJobsCmd(),
		newImagesCmd(),
		newResetCmd(),
	)
	_ = env.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("upgrademgr command failed")
	}
}
