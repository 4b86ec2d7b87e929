// Package tui provides interactive terminal user interface components for uGate.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/hkuds/ugate/internal/config"
)

// Styles for the setup wizard.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)
)

// SetupState holds the state of the setup wizard.
type SetupState struct {
	Port         string
	BusType      string
	BusAddress   string
	SessionStore string
	RedisAddress string

	ConfigAirtel     bool
	AirtelPath       string
	AirtelUsername   string
	AirtelPassword   string
	AirtelStrict     bool
	AirtelKeyPrefix  string
	AirtelTimeoutSec string

	ConfigVas2Nets   bool
	Vas2NetsURL      string
	Vas2NetsUsername string
	Vas2NetsPassword string
	Vas2NetsOwner    string
	Vas2NetsService  string
	Vas2NetsCountry  string

	Confirmed bool
}

func newSetupState(cfg *config.Config) *SetupState {
	return &SetupState{
		Port:             strconv.Itoa(cfg.Gateway.Port),
		BusType:          cfg.Bus.Type,
		SessionStore:     cfg.Sessions.Store,
		RedisAddress:     cfg.Sessions.Redis.Address,
		ConfigAirtel:     true,
		AirtelPath:       cfg.Transports.Airtel.WebPath,
		AirtelKeyPrefix:  cfg.Transports.Airtel.SessionKeyPrefix,
		AirtelTimeoutSec: strconv.Itoa(cfg.Transports.Airtel.ReplyTimeout),
		Vas2NetsURL:      cfg.Transports.Vas2Nets.URL,
		Vas2NetsCountry:  cfg.Transports.Vas2Nets.CountryCode,
	}
}

// RunSetup runs the interactive setup wizard and saves the result to path
// (the default config path when empty).
func RunSetup(path string) (*config.Config, error) {
	if path == "" {
		path = config.GetConfigPath()
	}
	state := newSetupState(config.DefaultConfig())

	steps := []struct {
		name string
		run  func(*SetupState) error
	}{
		{"welcome", runWelcomeStep},
		{"gateway", runGatewayStep},
		{"airtel", runAirtelStep},
		{"vas2nets", runVas2NetsStep},
		{"confirmation", runConfirmationStep},
	}
	for _, step := range steps {
		if err := step.run(state); err != nil {
			return nil, fmt.Errorf("%s step failed: %w", step.name, err)
		}
	}

	if !state.Confirmed {
		return nil, fmt.Errorf("setup cancelled by user")
	}

	cfg, err := buildConfigFromState(state)
	if err != nil {
		return nil, err
	}
	if err := config.SaveConfig(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println(successStyle.Render("\n✓ Configuration saved successfully!"))
	fmt.Println(subtitleStyle.Render("Config file: " + path))
	return cfg, nil
}

func runWelcomeStep(state *SetupState) error {
	welcome := boxStyle.Render(
		titleStyle.Render("Welcome to uGate Setup") + "\n\n" +
			"This wizard configures the USSD and SMS transports.\n" +
			"You can always edit the configuration later at:\n" +
			subtitleStyle.Render(config.GetConfigPath()),
	)
	fmt.Println(welcome)
	fmt.Println()
	return nil
}

func validatePort(s string) error {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validateSeconds(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("enter a whole number of seconds")
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

func runGatewayStep(state *SetupState) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("HTTP port").
				Description("Vendors call the gateway on this port").
				Value(&state.Port).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("Message bus").
				Options(
					huh.NewOption("In-process (single replica)", "memory"),
					huh.NewOption("Redis pub/sub", "redis"),
					huh.NewOption("Kafka", "kafka"),
				).
				Value(&state.BusType),
			huh.NewSelect[string]().
				Title("USSD session store").
				Description("Use redis when several replicas serve the same vendor").
				Options(
					huh.NewOption("In-memory", "memory"),
					huh.NewOption("Redis", "redis"),
				).
				Value(&state.SessionStore),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	var fields []huh.Field
	switch state.BusType {
	case "redis":
		fields = append(fields, huh.NewInput().
			Title("Bus Redis address").
			Placeholder("localhost:6379").
			Value(&state.BusAddress).
			Validate(required("address")))
	case "kafka":
		fields = append(fields, huh.NewInput().
			Title("Kafka brokers").
			Description("Comma-separated host:port list").
			Placeholder("localhost:9092").
			Value(&state.BusAddress).
			Validate(required("broker list")))
	}
	if state.SessionStore == "redis" {
		fields = append(fields, huh.NewInput().
			Title("Session Redis address").
			Placeholder("localhost:6379").
			Value(&state.RedisAddress).
			Validate(required("address")))
	}
	if len(fields) == 0 {
		return nil
	}
	return huh.NewForm(huh.NewGroup(fields...)).Run()
}

func runAirtelStep(state *SetupState) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the Airtel USSD transport?").
				Value(&state.ConfigAirtel),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !state.ConfigAirtel {
		return nil
	}

	details := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Endpoint path").
				Value(&state.AirtelPath).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "/") {
						return fmt.Errorf("path must start with /")
					}
					return nil
				}),
			huh.NewInput().
				Title("Username").
				Description("Leave empty to accept unauthenticated requests").
				Value(&state.AirtelUsername),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&state.AirtelPassword),
			huh.NewInput().
				Title("Session key prefix").
				Description("Replicas sharing sessions must use the same prefix").
				Value(&state.AirtelKeyPrefix),
			huh.NewInput().
				Title("Reply timeout (seconds)").
				Description("0 waits for the application indefinitely").
				Value(&state.AirtelTimeoutSec).
				Validate(validateSeconds),
			huh.NewConfirm().
				Title("Reject unexpected parameters?").
				Value(&state.AirtelStrict),
		),
	)
	return details.Run()
}

func runVas2NetsStep(state *SetupState) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable the Vas2Nets SMS transport?").
				Value(&state.ConfigVas2Nets),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}
	if !state.ConfigVas2Nets {
		return nil
	}

	details := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Send URL").
				Value(&state.Vas2NetsURL).
				Validate(required("send URL")),
			huh.NewInput().
				Title("Username").
				Value(&state.Vas2NetsUsername),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&state.Vas2NetsPassword),
			huh.NewInput().
				Title("Owner").
				Value(&state.Vas2NetsOwner),
			huh.NewInput().
				Title("Service").
				Value(&state.Vas2NetsService),
			huh.NewInput().
				Title("Default country code").
				Description("Used to normalize national numbers, e.g. 27").
				Value(&state.Vas2NetsCountry),
		),
	)
	return details.Run()
}

func runConfirmationStep(state *SetupState) error {
	fmt.Println(boxStyle.Render(buildSummary(state)))
	fmt.Println()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Yes, save").
				Negative("No, cancel").
				Value(&state.Confirmed),
		),
	)
	return form.Run()
}

func buildSummary(state *SetupState) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Configuration Summary"))
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Port: %s\n", state.Port))
	sb.WriteString(fmt.Sprintf("Bus: %s\n", state.BusType))
	sb.WriteString(fmt.Sprintf("Sessions: %s\n", state.SessionStore))
	sb.WriteString("\n")

	if state.ConfigAirtel {
		sb.WriteString(fmt.Sprintf("Airtel: %s at %s\n", successStyle.Render("enabled"), state.AirtelPath))
	} else {
		sb.WriteString(fmt.Sprintf("Airtel: %s\n", subtitleStyle.Render("disabled")))
	}
	if state.ConfigVas2Nets {
		sb.WriteString(fmt.Sprintf("Vas2Nets: %s via %s\n", successStyle.Render("enabled"), state.Vas2NetsURL))
	} else {
		sb.WriteString(fmt.Sprintf("Vas2Nets: %s\n", subtitleStyle.Render("disabled")))
	}

	return sb.String()
}

// buildConfigFromState creates a Config from the setup state.
func buildConfigFromState(state *SetupState) (*config.Config, error) {
	cfg := config.DefaultConfig()

	port, err := strconv.Atoi(strings.TrimSpace(state.Port))
	if err != nil {
		return nil, fmt.Errorf("invalid port %q", state.Port)
	}
	cfg.Gateway.Port = port

	if state.BusType != "" {
		cfg.Bus.Type = state.BusType
	}
	switch cfg.Bus.Type {
	case "redis":
		cfg.Bus.Redis.Address = strings.TrimSpace(state.BusAddress)
	case "kafka":
		for _, b := range strings.Split(state.BusAddress, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Bus.Kafka.Brokers = append(cfg.Bus.Kafka.Brokers, b)
			}
		}
	}

	if state.SessionStore != "" {
		cfg.Sessions.Store = state.SessionStore
	}
	if cfg.Sessions.Store == "redis" {
		cfg.Sessions.Redis.Address = strings.TrimSpace(state.RedisAddress)
	}

	if state.ConfigAirtel {
		a := &cfg.Transports.Airtel
		a.Enabled = true
		a.WebPath = state.AirtelPath
		a.Username = strings.TrimSpace(state.AirtelUsername)
		a.Password = state.AirtelPassword
		a.SessionKeyPrefix = strings.TrimSpace(state.AirtelKeyPrefix)
		if state.AirtelStrict {
			a.ValidationMode = "strict"
		}
		if state.AirtelTimeoutSec != "" {
			n, err := strconv.Atoi(strings.TrimSpace(state.AirtelTimeoutSec))
			if err != nil {
				return nil, fmt.Errorf("invalid reply timeout %q", state.AirtelTimeoutSec)
			}
			a.ReplyTimeout = n
		}
	}

	if state.ConfigVas2Nets {
		v := &cfg.Transports.Vas2Nets
		v.Enabled = true
		v.URL = strings.TrimSpace(state.Vas2NetsURL)
		v.Username = strings.TrimSpace(state.Vas2NetsUsername)
		v.Password = state.Vas2NetsPassword
		v.Owner = state.Vas2NetsOwner
		v.Service = state.Vas2NetsService
		v.CountryCode = strings.TrimSpace(state.Vas2NetsCountry)
	}

	return cfg, nil
}
