package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hkuds/ugate/internal/cron"
)

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		errs = append(errs, fmt.Errorf("gateway.port %d out of range", c.Gateway.Port))
	}

	switch c.Bus.Type {
	case "memory":
	case "redis":
		if c.Bus.Redis.Address == "" {
			errs = append(errs, errors.New("bus.redis.address is required for the redis bus"))
		}
	case "kafka":
		if len(c.Bus.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("bus.kafka.brokers is required for the kafka bus"))
		}
		if c.Bus.Kafka.GroupID == "" {
			errs = append(errs, errors.New("bus.kafka.groupId is required for the kafka bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bus.type %q", c.Bus.Type))
	}
	if c.Bus.BufferSize < 0 {
		errs = append(errs, errors.New("bus.bufferSize must not be negative"))
	}

	switch c.Sessions.Store {
	case "memory":
	case "redis":
		if c.Sessions.Redis.Address == "" {
			errs = append(errs, errors.New("sessions.redis.address is required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown sessions.store %q", c.Sessions.Store))
	}

	if c.Sessions.SweepSchedule != "" {
		if _, err := cron.Parse(c.Sessions.SweepSchedule); err != nil {
			errs = append(errs, fmt.Errorf("sessions.sweepSchedule: %w", err))
		}
	}

	if a := c.Transports.Airtel; a.Enabled {
		if a.TransportName == "" {
			errs = append(errs, errors.New("transports.airtel.transportName is required"))
		}
		if !strings.HasPrefix(a.WebPath, "/") {
			errs = append(errs, errors.New("transports.airtel.webPath must start with /"))
		}
		if (a.Username == "") != (a.Password == "") {
			errs = append(errs, errors.New("transports.airtel username and password must be set together"))
		}
		switch strings.ToLower(a.ValidationMode) {
		case "", "permissive", "strict":
		default:
			errs = append(errs, fmt.Errorf("unknown transports.airtel.validationMode %q", a.ValidationMode))
		}
		if a.ReplyTimeout < 0 || a.SessionLifetime < 0 {
			errs = append(errs, errors.New("transports.airtel timeouts must not be negative"))
		}
	}

	if v := c.Transports.Vas2Nets; v.Enabled {
		if v.TransportName == "" {
			errs = append(errs, errors.New("transports.vas2nets.transportName is required"))
		}
		if v.URL == "" {
			errs = append(errs, errors.New("transports.vas2nets.url is required"))
		}
		if !strings.HasPrefix(v.WebReceivePath, "/") || !strings.HasPrefix(v.WebReceiptPath, "/") {
			errs = append(errs, errors.New("transports.vas2nets web paths must start with /"))
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.level %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}
