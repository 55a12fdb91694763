// Package config provides configuration structures and loading for goapidiscovery.
package config

import (
	"strings"
	"time"
)

// Config represents the complete application configuration.
type Config struct {
	Platform string         `yaml:"platform" mapstructure:"platform"`
	Instance InstanceConfig `yaml:"instance" mapstructure:"instance"`
	HTTP     HTTPConfig     `yaml:"http" mapstructure:"http"`
	Filters  FilterConfig   `yaml:"filters" mapstructure:"filters"`
	Run      RunConfig      `yaml:"run" mapstructure:"run"`
	Logging  LoggingConfig  `yaml:"logging" mapstructure:"logging"`
}

// InstanceConfig identifies the platform instance and its credentials.
// Basic credentials take precedence over the bearer token when both are set.
type InstanceConfig struct {
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Username   string `yaml:"username" mapstructure:"username"`
	Password   string `yaml:"password" mapstructure:"password"`
	OAuthToken string `yaml:"oauth_token" mapstructure:"oauth_token"`
}

// HTTPConfig controls outbound request behaviour.
type HTTPConfig struct {
	VerifyTLS          bool    `yaml:"verify_tls" mapstructure:"verify_tls"`
	TimeoutSeconds     float64 `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second" mapstructure:"rate_limit_per_second"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// FilterConfig holds allow/deny lists of resource names.
type FilterConfig struct {
	Allowlist []string `yaml:"allowlist" mapstructure:"allowlist"`
	Denylist  []string `yaml:"denylist" mapstructure:"denylist"`
}

// RunConfig holds per-run switches and output locations.
type RunConfig struct {
	StateDir       string `yaml:"state_dir" mapstructure:"state_dir"`
	SpecsDir       string `yaml:"specs_dir" mapstructure:"specs_dir"`
	Resume         bool   `yaml:"resume" mapstructure:"resume"`
	Force          bool   `yaml:"force" mapstructure:"force"`
	BrowserCatalog string `yaml:"browser_catalog" mapstructure:"browser_catalog"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Platform: "servicenow",
		HTTP: HTTPConfig{
			VerifyTLS:          true,
			TimeoutSeconds:     30,
			UserAgent:          "api-discovery/0.1",
			RateLimitPerSecond: 5,
			MaxAttempts:        5,
		},
		Run: RunConfig{
			StateDir: ".state",
			SpecsDir: "openapi_specs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Timeout returns the request timeout as a duration.
func (h HTTPConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSeconds * float64(time.Second))
}

// HasBasicAuth reports whether both username and password are configured.
func (i InstanceConfig) HasBasicAuth() bool {
	return i.Username != "" && i.Password != ""
}

// ParseList splits a comma-separated list, trimming blanks.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.BaseURL != "" {
		c.Instance.BaseURL = o.BaseURL
	}
	if o.Username != "" {
		c.Instance.Username = o.Username
	}
	if o.Password != "" {
		c.Instance.Password = o.Password
	}
	if o.OAuthToken != "" {
		c.Instance.OAuthToken = o.OAuthToken
	}
	if o.RateLimit > 0 {
		c.HTTP.RateLimitPerSecond = o.RateLimit
	}
	if o.Insecure {
		c.HTTP.VerifyTLS = false
	}
	if o.StateDir != "" {
		c.Run.StateDir = o.StateDir
	}
	if o.SpecsDir != "" {
		c.Run.SpecsDir = o.SpecsDir
	}
	if o.Allowlist != "" {
		c.Filters.Allowlist = ParseList(o.Allowlist)
	}
	if o.Denylist != "" {
		c.Filters.Denylist = ParseList(o.Denylist)
	}
	if o.Resume {
		c.Run.Resume = true
	}
	if o.Force {
		c.Run.Force = true
	}
}

// Overrides contains flag values that override config file settings.
type Overrides struct {
	LogLevel   string
	LogFormat  string
	BaseURL    string
	Username   string
	Password   string
	OAuthToken string
	RateLimit  float64
	Insecure   bool
	StateDir   string
	SpecsDir   string
	Allowlist  string
	Denylist   string
	Resume     bool
	Force      bool
}
