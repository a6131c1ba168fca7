package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mdimg/pkg/utils"
)

// Defaults applied by Default and Validate.
const (
	DefaultOutDir     = "images"
	DefaultUserAgent  = "mdimg/1.0 (markdown image localizer)"
	DefaultMaxRetries = 2
	DefaultRetryDelay = 700 * time.Millisecond
	DefaultTimeout    = 20 * time.Second
)

// Config holds the effective settings for one run. All ambient state (flags,
// environment, .env files) is resolved by the CLI before a Config reaches the
// core packages.
type Config struct {
	OutDir             string           `yaml:"out_dir,omitempty"`      // Image directory, resolved per document when relative
	Overwrite          bool             `yaml:"overwrite,omitempty"`    // Rewrite documents in place instead of writing siblings
	AccessToken        string           `yaml:"access_token,omitempty"` // Sent as Basic auth with an empty username (PAT style)
	UserAgent          string           `yaml:"user_agent,omitempty"`
	MaxRetries         int              `yaml:"max_retries,omitempty"` // Additional attempts after the first failure
	RetryDelay         time.Duration    `yaml:"retry_delay,omitempty"` // Base delay; grows linearly with the attempt index
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client.
type HTTPClientConfig struct {
	Timeout             time.Duration `yaml:"timeout,omitempty"`                 // Overall per-attempt request timeout
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	return &Config{
		OutDir:     DefaultOutDir,
		UserAgent:  DefaultUserAgent,
		MaxRetries: DefaultMaxRetries,
		RetryDelay: DefaultRetryDelay,
		HTTPClientSettings: HTTPClientConfig{
			Timeout: DefaultTimeout,
		},
	}
}

// Load reads a YAML config file over the defaults. Values absent from the
// file keep their default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks Config fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *Config) Validate() (warnings []string, err error) {
	// OutDir
	if c.OutDir == "" {
		warnings = append(warnings, fmt.Sprintf("out_dir is empty, defaulting to '%s'", DefaultOutDir))
		c.OutDir = DefaultOutDir
	}

	// UserAgent
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}

	// RetryDelay (only matters when retries are enabled)
	if c.MaxRetries > 0 && c.RetryDelay <= 0 {
		warnings = append(warnings, fmt.Sprintf("retry_delay should be > 0, defaulting to %v", DefaultRetryDelay))
		c.RetryDelay = DefaultRetryDelay
	}

	// HTTP client timeout
	if c.HTTPClientSettings.Timeout < 0 {
		return warnings, fmt.Errorf("%w: http_client_settings.timeout cannot be negative", utils.ErrConfigValidation)
	}
	if c.HTTPClientSettings.Timeout == 0 {
		warnings = append(warnings, fmt.Sprintf("http_client_settings.timeout not set, defaulting to %v", DefaultTimeout))
		c.HTTPClientSettings.Timeout = DefaultTimeout
	}

	return warnings, nil
}
