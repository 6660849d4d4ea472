/*
Package config loads the client configuration from a YAML file. Values missing
from the file get defaults, and the server url and credentials may be
overridden from the environment.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib/client"
	"gopkg.in/yaml.v3"
)

// Environment variables overriding the file.
const (
	EnvURL      = "CX_URL"
	EnvUsername = "CX_USERNAME"
	EnvPassword = "CX_PASSWORD"
)

// ServerConfig describes how to reach and authenticate with the server.
type ServerConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	Insecure          bool          `yaml:"insecure"`
	CACertFile        string        `yaml:"ca_cert_file"`
	ClientCertFile    string        `yaml:"client_cert_file"`
	ClientKeyFile     string        `yaml:"client_key_file"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"` // 0 disables rate limiting
	Burst             int           `yaml:"burst"`
}

// WaitConfig contains the polling intervals, timeouts and retry budget.
type WaitConfig struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`
	OSAInterval    time.Duration `yaml:"osa_interval"`
	ReportInterval time.Duration `yaml:"report_interval"`
	ScanTimeout    int64         `yaml:"scan_timeout_minutes"` // <= 0 waits forever
	OSATimeout     int64         `yaml:"osa_timeout_minutes"`  // <= 0 waits forever
	ReportTimeout  int64         `yaml:"report_timeout_seconds"`
	MaxRetries     int           `yaml:"max_retries"`
}

// LogConfig configures the standard logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // trace|debug|info|warn|error
	Format string `yaml:"format"` // text|json
}

// MetricsConfig enables Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	// Textfile is written on exit when set.
	Textfile string `yaml:"textfile"`
}

// Config is the root of the configuration file.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Wait    WaitConfig    `yaml:"wait"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// Load reads the configuration file at path. An empty path yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	var b []byte
	if path != "" {
		var err error
		b, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

// Parse decodes a YAML document and applies defaults.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.defaults()
	return &cfg, nil
}

func (c *Config) defaults() {
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = time.Minute
	}
	if c.Server.Burst <= 0 {
		c.Server.Burst = 1
	}
	if c.Wait.ScanInterval <= 0 {
		c.Wait.ScanInterval = 10 * time.Second
	}
	if c.Wait.OSAInterval <= 0 {
		c.Wait.OSAInterval = 10 * time.Second
	}
	if c.Wait.ReportInterval <= 0 {
		c.Wait.ReportInterval = client.DefaultReportInterval
	}
	if c.Wait.ReportTimeout <= 0 {
		c.Wait.ReportTimeout = client.DefaultReportTimeout
	}
	if c.Wait.MaxRetries <= 0 {
		c.Wait.MaxRetries = 5
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.Server.URL = v
	}
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Server.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Server.Password = v
	}
}

// Validate checks that the settings needed to reach a server are present.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if c.Server.Username == "" {
		return errors.New("server.username is required")
	}
	if (c.Server.ClientCertFile == "") != (c.Server.ClientKeyFile == "") {
		return errors.New("server.client_cert_file and server.client_key_file must be set together")
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// ClientConfig converts the configuration into client options.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		URL:               c.Server.URL,
		Username:          c.Server.Username,
		Password:          c.Server.Password,
		Insecure:          c.Server.Insecure,
		CACertFile:        c.Server.CACertFile,
		ClientCertFile:    c.Server.ClientCertFile,
		ClientKeyFile:     c.Server.ClientKeyFile,
		RequestTimeout:    c.Server.RequestTimeout,
		RequestsPerSecond: c.Server.RequestsPerSecond,
		Burst:             c.Server.Burst,
		ScanInterval:      c.Wait.ScanInterval,
		OSAInterval:       c.Wait.OSAInterval,
		ReportInterval:    c.Wait.ReportInterval,
		ReportTimeout:     c.Wait.ReportTimeout,
		MaxRetries:        c.Wait.MaxRetries,
		Instrument:        c.Metrics.Enabled,
	}
}

// Apply configures the standard logger.
func (l LogConfig) Apply() error {
	level, err := log.ParseLevel(l.Level)
	if err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	log.SetLevel(level)
	if strings.EqualFold(l.Format, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}
