package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the root configuration structure for uGate.
type Config struct {
	Gateway    GatewayConfig    `json:"gateway"`
	Bus        BusConfig        `json:"bus"`
	Sessions   SessionsConfig   `json:"sessions"`
	Transports TransportsConfig `json:"transports"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Tracing    TracingConfig    `json:"tracing"`
}

// GatewayConfig holds HTTP gateway configuration.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// BusConfig selects the message broker.
type BusConfig struct {
	Type       string      `json:"type"` // "memory", "redis" or "kafka"
	BufferSize int         `json:"bufferSize"`
	Redis      RedisConfig `json:"redis"`
	Kafka      KafkaConfig `json:"kafka"`
}

// RedisConfig represents a Redis connection.
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db"`
}

// KafkaConfig represents a Kafka cluster connection.
type KafkaConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"groupId"`
}

// SessionsConfig selects the USSD session store.
type SessionsConfig struct {
	Store         string      `json:"store"` // "memory" or "redis"
	Redis         RedisConfig `json:"redis"`
	SweepSchedule string      `json:"sweepSchedule"` // housekeeping cadence, "@every 1m" or cron
}

// TransportsConfig holds all vendor transport configurations.
type TransportsConfig struct {
	Airtel   AirtelConfig   `json:"airtel"`
	Vas2Nets Vas2NetsConfig `json:"vas2nets"`
}

// AirtelConfig represents the Airtel USSD transport.
type AirtelConfig struct {
	Enabled          bool   `json:"enabled"`
	TransportName    string `json:"transportName"`
	WebPath          string `json:"webPath"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
	ValidationMode   string `json:"validationMode"` // "permissive" or "strict"
	SessionKeyPrefix string `json:"sessionKeyPrefix,omitempty"`
	InputDelimiter   string `json:"inputDelimiter"`
	ReplyTimeout     int    `json:"replyTimeout"`    // seconds; 0 waits indefinitely
	SessionLifetime  int    `json:"sessionLifetime"` // seconds
}

// AuthEnabled reports whether inbound requests must carry credentials.
func (a AirtelConfig) AuthEnabled() bool {
	return a.Username != "" && a.Password != ""
}

// KeyPrefix returns the session namespace, defaulting to the transport name.
func (a AirtelConfig) KeyPrefix() string {
	if a.SessionKeyPrefix != "" {
		return a.SessionKeyPrefix
	}
	return a.TransportName
}

// ReplyTimeoutDuration converts ReplyTimeout to a time.Duration.
func (a AirtelConfig) ReplyTimeoutDuration() time.Duration {
	return time.Duration(a.ReplyTimeout) * time.Second
}

// SessionLifetimeDuration converts SessionLifetime to a time.Duration.
func (a AirtelConfig) SessionLifetimeDuration() time.Duration {
	return time.Duration(a.SessionLifetime) * time.Second
}

// Vas2NetsConfig represents the Vas2Nets SMS transport.
type Vas2NetsConfig struct {
	Enabled        bool   `json:"enabled"`
	TransportName  string `json:"transportName"`
	WebReceivePath string `json:"webReceivePath"`
	WebReceiptPath string `json:"webReceiptPath"`
	URL            string `json:"url"`
	Username       string `json:"username"`
	Password       string `json:"password"`
	Owner          string `json:"owner"`
	Service        string `json:"service"`
	Subservice     string `json:"subservice"`
	Tariff         string `json:"tariff"`
	CountryCode    string `json:"countryCode"`
	Timeout        int    `json:"timeout"` // seconds per outbound request
}

// TimeoutDuration converts Timeout to a time.Duration.
func (v Vas2NetsConfig) TimeoutDuration() time.Duration {
	return time.Duration(v.Timeout) * time.Second
}

// LoggingConfig controls the slog logger and file rotation.
type LoggingConfig struct {
	Level      string `json:"level"`
	File       string `json:"file,omitempty"` // empty logs to stderr
	MaxSize    int    `json:"maxSize"`        // megabytes
	MaxBackups int    `json:"maxBackups"`
	MaxAge     int    `json:"maxAge"` // days
	Compress   bool   `json:"compress"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TracingConfig controls OpenTelemetry tracing of vendor calls.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
	File        string `json:"file,omitempty"` // empty writes spans to stdout
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Bus: BusConfig{
			Type:       "memory",
			BufferSize: 100,
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
			Kafka: KafkaConfig{
				Brokers: []string{},
				GroupID: "ugate",
			},
		},
		Sessions: SessionsConfig{
			Store: "memory",
			Redis: RedisConfig{
				Address: "localhost:6379",
			},
			SweepSchedule: "@every 1m",
		},
		Transports: TransportsConfig{
			Airtel: AirtelConfig{
				Enabled:         false,
				TransportName:   "airtel",
				WebPath:         "/api/v1/airtel/ussd/",
				ValidationMode:  "permissive",
				InputDelimiter:  "*",
				ReplyTimeout:    30,
				SessionLifetime: 300,
			},
			Vas2Nets: Vas2NetsConfig{
				Enabled:        false,
				TransportName:  "vas2nets",
				WebReceivePath: "/api/v1/sms/vas2nets/receive/",
				WebReceiptPath: "/api/v1/sms/vas2nets/receipt/",
				Timeout:        30,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ugate",
		},
	}
}

// expandPath expands ~ to the user's home directory and resolves the path.
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~ to home directory
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if len(path) == 1 {
			return home
		}
		if path[1] == '/' || path[1] == filepath.Separator {
			path = filepath.Join(home, path[2:])
		} else {
			path = filepath.Join(home, path[1:])
		}
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return absPath
}
