// Package config parses the apimonitor bootstrap file.
//
// The file configures the process (HTTP port, data directory, logging) and
// seeds the runtime settings of a fresh settings store. Once settings have
// been saved from the dashboard, the store is authoritative and the
// settings block is ignored.
//
// Example configuration:
//
//	title: Payments API
//	port: 8080
//	data_dir: /var/lib/apimonitor
//	log_file: apimonitor.log
//	log_level: info
//	log_format: json
//
//	settings:
//	  url: ${STATUS_URL:-https://status.example.com/api/status}
//	  interval: 60s
//	  logging_enabled: true
//	  history_limit: 100
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/apimonitor/internal/history"
	"github.com/jpalmerr/apimonitor/internal/settings"
)

const (
	defaultPort      = 8080
	defaultTitle     = "API Monitor"
	defaultDataDir   = "."
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
)

// Config is the root of the bootstrap file.
type Config struct {
	// Title is the dashboard title. Defaults to "API Monitor".
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// DataDir holds the settings database. Defaults to the working directory.
	DataDir string `yaml:"data_dir"`

	// LogFile is the capped log file. Relative paths are resolved against
	// DataDir. Empty disables file logging.
	LogFile string `yaml:"log_file"`

	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is json or text.
	LogFormat string `yaml:"log_format"`

	// Settings seeds the settings store on first run.
	Settings SettingsConfig `yaml:"settings"`
}

// SettingsConfig mirrors [settings.Settings] in YAML form.
type SettingsConfig struct {
	// URL is the monitored endpoint. Supports ${VAR} and ${VAR:-default}.
	URL string `yaml:"url"`

	// Interval is the polling interval, between 1s and 1h.
	Interval Duration `yaml:"interval"`

	// LoggingEnabled toggles the log file. Defaults to true.
	LoggingEnabled *bool `yaml:"logging_enabled"`

	// HistoryLimit is the history capacity, between 10 and 10000.
	HistoryLimit int `yaml:"history_limit"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults and validates the
// result. An empty document is valid and yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Title == "" {
		c.Title = defaultTitle
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = defaultLogFormat
	}

	d := settings.Defaults()
	if c.Settings.URL == "" {
		c.Settings.URL = d.URL
	}
	if c.Settings.Interval == 0 {
		c.Settings.Interval = Duration(d.Interval)
	}
	if c.Settings.LoggingEnabled == nil {
		enabled := d.LoggingEnabled
		c.Settings.LoggingEnabled = &enabled
	}
	if c.Settings.HistoryLimit == 0 {
		c.Settings.HistoryLimit = d.HistoryLimit
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port: must be between 1 and 65535, got %d", c.Port)
	}

	dataDir, err := expandEnvVars(c.DataDir)
	if err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	c.DataDir = dataDir

	logFile, err := expandEnvVars(c.LogFile)
	if err != nil {
		return fmt.Errorf("log_file: %w", err)
	}
	c.LogFile = logFile

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level: must be debug, info, warn or error, got %q", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("log_format: must be json or text, got %q", c.LogFormat)
	}

	rawURL, err := expandEnvVars(c.Settings.URL)
	if err != nil {
		return fmt.Errorf("settings.url: %w", err)
	}
	c.Settings.URL = strings.TrimSpace(rawURL)

	parsedURL, err := url.Parse(c.Settings.URL)
	if err != nil {
		return fmt.Errorf("settings.url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("settings.url: scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("settings.url: host is required")
	}

	interval := c.Settings.Interval.Duration()
	if interval < settings.MinInterval {
		return fmt.Errorf("settings.interval: must be at least %s, got %s", settings.MinInterval, interval)
	}
	if interval > settings.MaxInterval {
		return fmt.Errorf("settings.interval: must not exceed %s, got %s", settings.MaxInterval, interval)
	}

	if c.Settings.HistoryLimit < history.MinCapacity || c.Settings.HistoryLimit > history.MaxCapacity {
		return fmt.Errorf("settings.history_limit: must be between %d and %d, got %d",
			history.MinCapacity, history.MaxCapacity, c.Settings.HistoryLimit)
	}

	return nil
}

// LogFilePath returns the absolute-or-DataDir-relative log file path, or ""
// when file logging is not configured.
func (c *Config) LogFilePath() string {
	if c.LogFile == "" {
		return ""
	}
	if filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, c.LogFile)
}

// Seed converts the settings block into settings for a fresh store.
func (c *Config) Seed() settings.Settings {
	s := settings.Settings{
		URL:            c.Settings.URL,
		Interval:       c.Settings.Interval.Duration(),
		LoggingEnabled: true,
		HistoryLimit:   c.Settings.HistoryLimit,
	}
	if c.Settings.LoggingEnabled != nil {
		s.LoggingEnabled = *c.Settings.LoggingEnabled
	}
	return s.Normalize()
}
