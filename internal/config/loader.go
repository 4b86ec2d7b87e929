package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	// DefaultConfigDir is the default config directory name.
	DefaultConfigDir = ".ugate"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.json"
)

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"gateway.host":                 "UGATE_HOST",
	"gateway.port":                 "UGATE_PORT",
	"bus.type":                     "UGATE_BUS_TYPE",
	"bus.redis.address":            "UGATE_BUS_REDIS_ADDRESS",
	"bus.redis.password":           "UGATE_BUS_REDIS_PASSWORD",
	"bus.kafka.brokers":            "UGATE_KAFKA_BROKERS",
	"bus.kafka.groupId":            "UGATE_KAFKA_GROUP_ID",
	"sessions.store":               "UGATE_SESSION_STORE",
	"sessions.redis.address":       "UGATE_REDIS_ADDRESS",
	"sessions.redis.password":      "UGATE_REDIS_PASSWORD",
	"transports.airtel.username":   "UGATE_AIRTEL_USERNAME",
	"transports.airtel.password":   "UGATE_AIRTEL_PASSWORD",
	"transports.vas2nets.url":      "UGATE_VAS2NETS_URL",
	"transports.vas2nets.username": "UGATE_VAS2NETS_USERNAME",
	"transports.vas2nets.password": "UGATE_VAS2NETS_PASSWORD",
	"logging.level":                "UGATE_LOG_LEVEL",
	"logging.file":                 "UGATE_LOG_FILE",
	"tracing.enabled":              "UGATE_TRACING_ENABLED",
}

// GetConfigDir returns the default config directory path (~/.ugate).
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", DefaultConfigDir)
	}
	return filepath.Join(home, DefaultConfigDir)
}

// GetConfigPath returns the default config file path (~/.ugate/config.json).
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), DefaultConfigFile)
}

// LoadConfig loads configuration from the specified path.
// If path is empty, it uses the default config path (~/.ugate/config.json).
// A missing file yields the defaults. Environment overrides apply either way.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)

	v := viper.New()
	v.SetConfigType("json")
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	// Start with defaults and decode over them
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified path.
// If path is empty, it uses the default config path (~/.ugate/config.json).
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Credentials live in this file, so owner-only permissions
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Exists checks if a config file exists at the given path.
// If path is empty, checks the default config path.
func Exists(path string) bool {
	if path == "" {
		path = GetConfigPath()
	}
	path = expandPath(path)
	_, err := os.Stat(path)
	return err == nil
}
