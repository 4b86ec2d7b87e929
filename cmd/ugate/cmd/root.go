package cmd

import (
	"github.com/spf13/cobra"
)

// configPath is the --config flag shared by every subcommand.
var configPath string

var rootCmd = &cobra.Command{
	Use:          "ugate",
	Short:        "uGate - USSD and SMS vendor gateway",
	Long:         `uGate terminates vendor HTTP integrations (Airtel USSD, Vas2Nets SMS) and exchanges normalized messages with applications over a message bus.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.ugate/config.json)")

	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
