package cmd

import (
	"fmt"

	"github.com/hkuds/ugate/internal/tui"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run interactive setup wizard",
	Long:  "Run the interactive setup wizard to configure the gateway, the message bus and the vendor transports.",
	RunE:  runSetup,
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg, err := tui.RunSetup(configPath)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	fmt.Println()
	tui.ShowQuickStatus(cfg)

	fmt.Println()
	fmt.Println("You can now:")
	fmt.Println("  - Start the gateway: ugate gateway")
	fmt.Println("  - View full status:  ugate status")

	return nil
}
