// Package config loads the console's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"director-console/internal/logging"
)

// Config holds all console configuration.
type Config struct {
	// URL is the Director base URL, e.g. https://director.tjhsst.edu.
	URL  string `yaml:"url"`
	Site int    `yaml:"site"`

	// Token is sent as a bearer token. SessionCookie and CSRFToken
	// authenticate with a browser session instead.
	Token         string `yaml:"token,omitempty"`
	SessionCookie string `yaml:"session_cookie,omitempty"`
	CSRFToken     string `yaml:"csrf_token,omitempty"`

	Timeout  string `yaml:"timeout"`
	StateDir string `yaml:"state_dir,omitempty"`

	SSH     SSHConfig     `yaml:"ssh"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// SSHConfig selects the SFTP file backend.
type SSHConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	KeyFile    string `yaml:"key_file,omitempty"`
	Password   string `yaml:"password,omitempty"`
	Root       string `yaml:"root"`
	KnownHosts string `yaml:"known_hosts,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr serves /metrics when set.
	Addr string `yaml:"addr,omitempty"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Timeout: "30s",
		SSH: SSHConfig{
			Port: 22,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/director-console/config.yaml.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "director-console", "config.yaml"), nil
}

// Load reads configuration from a YAML file. A missing file yields the
// defaults. Environment variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	// The file may hold credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("DIRECTOR_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("DIRECTOR_SITE"); v != "" {
		site, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid DIRECTOR_SITE %q: %w", v, err)
		}
		c.Site = site
	}
	if v := os.Getenv("DIRECTOR_TOKEN"); v != "" {
		c.Token = v
	}
	return nil
}

// GetTimeout returns the HTTP timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// GetStateDir returns the directory holding settings and layouts.
func (c *Config) GetStateDir() (string, error) {
	if c.StateDir != "" {
		return c.StateDir, nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	return filepath.Join(configDir, "director-console"), nil
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		OutputPath: c.Logging.File,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("director URL not configured (set url in the config file or DIRECTOR_URL)")
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid director URL %q: must be http or https", c.URL)
	}
	if c.Site <= 0 {
		return fmt.Errorf("site not configured (set site in the config file or DIRECTOR_SITE)")
	}
	if _, err := time.ParseDuration(c.Timeout); c.Timeout != "" && err != nil {
		return fmt.Errorf("invalid timeout %q: %w", c.Timeout, err)
	}
	if c.SSH.Enabled {
		// User and key may come from ~/.ssh/config.
		if c.SSH.Host == "" {
			return fmt.Errorf("ssh backend requires a host")
		}
		if c.SSH.Port < 0 || c.SSH.Port > 65535 {
			return fmt.Errorf("invalid ssh port %d", c.SSH.Port)
		}
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (valid: json, console)", c.Logging.Format)
	}
	return nil
}
