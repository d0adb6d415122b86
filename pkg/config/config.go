// Package config holds application configuration: struct-tag defaults
// overlaid by an optional YAML file, with CLI flags applied on top by
// the command layer.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by Config.Format.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Config holds application configuration
type Config struct {
	// Sensor is the identifier fragment matched against advertised
	// peripheral names.
	Sensor string `yaml:"sensor"`

	// CaseInsensitive folds case when matching the sensor fragment.
	CaseInsensitive bool `yaml:"case_insensitive" default:"false"`

	// ScanTimeout bounds the wait for a matching advertisement.
	ScanTimeout time.Duration `yaml:"scan_timeout" default:"30s"`

	// ConnectTimeout bounds connection establishment.
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`

	// SampleRate is the acceleration sampling rate in Hz.
	SampleRate int `yaml:"sample_rate" default:"13"`

	// Output is the output file path; empty derives
	// sensor_data_<session-start>.<ext> in the working directory.
	Output string `yaml:"output"`

	// Format selects the session sink: csv or sqlite.
	Format string `yaml:"format" default:"csv"`

	// PublishBroker, when set, enables live MQTT forwarding to this
	// broker URL (e.g. tcp://localhost:1883).
	PublishBroker string `yaml:"publish_broker"`
}

// Default returns the configuration defaults.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load returns defaults overlaid with the YAML file at path. An empty
// path yields plain defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values no run can proceed with.
func (c *Config) Validate() error {
	if c.Sensor == "" {
		return fmt.Errorf("sensor identifier is required")
	}
	if c.Format != FormatCSV && c.Format != FormatSQLite {
		return fmt.Errorf("invalid format %q: must be %s or %s", c.Format, FormatCSV, FormatSQLite)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive")
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	return nil
}

// OutputExt returns the file extension for the configured format.
func (c *Config) OutputExt() string {
	if c.Format == FormatSQLite {
		return "db"
	}
	return "csv"
}

// NewLogger creates a configured logger instance
func NewLogger(level logrus.Level) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
