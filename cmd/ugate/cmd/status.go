package cmd

import (
	"fmt"

	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/tui"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration status",
	Long:  "Display the gateway configuration: listen address, bus, session store, transports and observability.",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	return tui.ShowStatus(cfg)
}
