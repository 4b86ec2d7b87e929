package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hkuds/ugate/internal/bus"
	"github.com/hkuds/ugate/internal/config"
	"github.com/hkuds/ugate/internal/session"
	"github.com/spf13/cobra"
)

var (
	sessionID   string
	sessionTo   string
	sessionFrom string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage USSD sessions",
	Long:  "Create, show or clear sessions in the configured store under the Airtel transport's key prefix.",
}

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a session",
	RunE: withSessions(func(cmd *cobra.Command, store session.Store) error {
		s := session.NewSession(sessionID)
		s.ToAddr = sessionTo
		s.FromAddr = sessionFrom
		s.LastSessionEvent = string(bus.SessionNew)
		if err := store.Create(cmd.Context(), s); err != nil {
			if errors.Is(err, session.ErrConflict) {
				return fmt.Errorf("session %s already exists", sessionID)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created session %s\n", sessionID)
		return nil
	}),
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a session as JSON",
	RunE: withSessions(func(cmd *cobra.Command, store session.Store) error {
		s, err := store.Load(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("session %s not found", sessionID)
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}),
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete a session",
	RunE: withSessions(func(cmd *cobra.Command, store session.Store) error {
		existed, err := store.Delete(cmd.Context(), sessionID)
		if err != nil {
			return err
		}
		if !existed {
			fmt.Fprintf(cmd.OutOrStdout(), "session %s not found\n", sessionID)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cleared session %s\n", sessionID)
		return nil
	}),
}

// withSessions opens the store scoped like the Airtel transport scopes it.
func withSessions(fn func(*cobra.Command, session.Store) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, release, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer release()

		if ns, ok := store.(session.Namespaced); ok {
			store = ns.Prefixed(cfg.Transports.Airtel.KeyPrefix())
		}
		return fn(cmd, store)
	}
}

func init() {
	for _, c := range []*cobra.Command{sessionCreateCmd, sessionShowCmd, sessionClearCmd} {
		c.Flags().StringVar(&sessionID, "id", "", "session id")
		c.MarkFlagRequired("id")
		sessionCmd.AddCommand(c)
	}
	sessionCreateCmd.Flags().StringVar(&sessionTo, "to", "", "service code, e.g. *120#")
	sessionCreateCmd.Flags().StringVar(&sessionFrom, "from", "", "subscriber MSISDN")
}
