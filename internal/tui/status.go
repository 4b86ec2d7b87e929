package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hkuds/ugate/internal/config"
)

// Status display styles.
var (
	statusTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205")).
				MarginBottom(1).
				Padding(0, 1)

	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Width(64)

	statusSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				MarginTop(1)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Width(20)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255"))

	statusEnabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("82")).
				Bold(true)

	statusDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))

	statusWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("214"))

	statusErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("196")).
				Bold(true)
)

// ShowStatus displays the current configuration status.
func ShowStatus(cfg *config.Config) error {
	fmt.Println(statusBoxStyle.Render(RenderStatus(cfg)))
	return nil
}

// RenderStatus renders the configuration overview without the outer box.
func RenderStatus(cfg *config.Config) string {
	var sb strings.Builder

	sb.WriteString(statusTitleStyle.Render("uGate Configuration Status"))
	sb.WriteString("\n\n")

	section(&sb, "Gateway", renderGatewayStatus(cfg))
	section(&sb, "Transports", renderTransportsStatus(cfg))
	section(&sb, "Observability", renderObservabilityStatus(cfg))

	if err := cfg.Validate(); err != nil {
		sb.WriteString(statusSectionStyle.Render("Problems"))
		sb.WriteString("\n")
		for _, line := range strings.Split(err.Error(), "\n") {
			sb.WriteString(renderStatusRow("", statusErrorStyle.Render(line)))
		}
	}

	return sb.String()
}

func section(sb *strings.Builder, title, body string) {
	sb.WriteString(statusSectionStyle.Render(title))
	sb.WriteString("\n")
	sb.WriteString(body)
	sb.WriteString("\n")
}

func renderGatewayStatus(cfg *config.Config) string {
	var sb strings.Builder

	sb.WriteString(renderStatusRow("Listen", statusValueStyle.Render(fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))))

	bus := cfg.Bus.Type
	switch bus {
	case "redis":
		bus += " (" + cfg.Bus.Redis.Address + ")"
	case "kafka":
		bus += " (" + strings.Join(cfg.Bus.Kafka.Brokers, ", ") + ")"
	}
	sb.WriteString(renderStatusRow("Bus", statusValueStyle.Render(bus)))

	store := cfg.Sessions.Store
	if store == "redis" {
		store += " (" + cfg.Sessions.Redis.Address + ")"
	}
	sb.WriteString(renderStatusRow("Sessions", statusValueStyle.Render(store)))

	return sb.String()
}

func renderTransportsStatus(cfg *config.Config) string {
	var sb strings.Builder

	a := cfg.Transports.Airtel
	if a.Enabled {
		sb.WriteString(renderStatusRow(a.TransportName, statusEnabledStyle.Render("enabled")+statusDisabledStyle.Render(" ussd")))
		sb.WriteString(renderStatusRow("  Path", statusValueStyle.Render(a.WebPath)))
		sb.WriteString(renderStatusRow("  Validation", statusValueStyle.Render(orDefault(a.ValidationMode, "permissive"))))
		sb.WriteString(renderStatusRow("  Key prefix", statusValueStyle.Render(a.KeyPrefix())))
		if a.AuthEnabled() {
			sb.WriteString(renderStatusRow("  Auth", statusValueStyle.Render(a.Username+" / "+maskSecret(a.Password))))
		} else {
			sb.WriteString(renderStatusRow("  Auth", statusWarningStyle.Render("none (not recommended)")))
		}
		timeout := "none"
		if a.ReplyTimeout > 0 {
			timeout = fmt.Sprintf("%ds", a.ReplyTimeout)
		}
		sb.WriteString(renderStatusRow("  Reply timeout", statusValueStyle.Render(timeout)))
	} else {
		sb.WriteString(renderStatusRow("Airtel", statusDisabledStyle.Render("disabled")))
	}

	v := cfg.Transports.Vas2Nets
	if v.Enabled {
		sb.WriteString(renderStatusRow(v.TransportName, statusEnabledStyle.Render("enabled")+statusDisabledStyle.Render(" sms")))
		sb.WriteString(renderStatusRow("  Receive", statusValueStyle.Render(v.WebReceivePath)))
		sb.WriteString(renderStatusRow("  Receipt", statusValueStyle.Render(v.WebReceiptPath)))
		if v.URL != "" {
			sb.WriteString(renderStatusRow("  Send URL", statusValueStyle.Render(v.URL)))
		} else {
			sb.WriteString(renderStatusRow("  Send URL", statusErrorStyle.Render("not set")))
		}
		if v.Password != "" {
			sb.WriteString(renderStatusRow("  Credentials", statusValueStyle.Render(v.Username+" / "+maskSecret(v.Password))))
		}
	} else {
		sb.WriteString(renderStatusRow("Vas2Nets", statusDisabledStyle.Render("disabled")))
	}

	return sb.String()
}

func renderObservabilityStatus(cfg *config.Config) string {
	var sb strings.Builder

	logTo := "stderr"
	if cfg.Logging.File != "" {
		logTo = cfg.Logging.File
	}
	sb.WriteString(renderStatusRow("Log level", statusValueStyle.Render(orDefault(cfg.Logging.Level, "info"))))
	sb.WriteString(renderStatusRow("Log output", statusValueStyle.Render(logTo)))

	if cfg.Metrics.Enabled {
		sb.WriteString(renderStatusRow("Metrics", statusEnabledStyle.Render(cfg.Metrics.Path)))
	} else {
		sb.WriteString(renderStatusRow("Metrics", statusDisabledStyle.Render("disabled")))
	}

	if cfg.Tracing.Enabled {
		sb.WriteString(renderStatusRow("Tracing", statusEnabledStyle.Render(cfg.Tracing.ServiceName)))
	} else {
		sb.WriteString(renderStatusRow("Tracing", statusDisabledStyle.Render("disabled")))
	}

	return sb.String()
}

// renderStatusRow renders a label-value row.
func renderStatusRow(label, value string) string {
	if label == "" {
		return fmt.Sprintf("  %s\n", value)
	}
	return fmt.Sprintf("  %s %s\n",
		statusLabelStyle.Render(label+":"),
		value,
	)
}

// maskSecret masks a credential for display.
func maskSecret(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:2] + "****" + secret[len(secret)-2:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ShowQuickStatus shows a minimal one-line status.
func ShowQuickStatus(cfg *config.Config) {
	fmt.Println(QuickStatus(cfg))
}

// QuickStatus returns the one-line status shown after setup.
func QuickStatus(cfg *config.Config) string {
	var enabled []string
	if cfg.Transports.Airtel.Enabled {
		enabled = append(enabled, cfg.Transports.Airtel.TransportName)
	}
	if cfg.Transports.Vas2Nets.Enabled {
		enabled = append(enabled, cfg.Transports.Vas2Nets.TransportName)
	}

	transports := statusDisabledStyle.Render("no transports")
	if len(enabled) > 0 {
		transports = statusEnabledStyle.Render(strings.Join(enabled, ", "))
	}

	return fmt.Sprintf("uGate: %s | bus %s | sessions %s",
		transports,
		statusValueStyle.Render(cfg.Bus.Type),
		statusValueStyle.Render(cfg.Sessions.Store))
}
