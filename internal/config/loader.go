package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps config keys to the environment variables recognised in
// addition to the YAML file. The names match the API_DISCOVERY_* variables used
// by existing deployments.
var envBindings = map[string]string{
	"platform":                   "API_DISCOVERY_PLATFORM",
	"instance.base_url":          "API_DISCOVERY_SERVICENOW_BASE_URL",
	"instance.username":          "API_DISCOVERY_SERVICENOW_USERNAME",
	"instance.password":          "API_DISCOVERY_SERVICENOW_PASSWORD",
	"instance.oauth_token":       "API_DISCOVERY_SERVICENOW_OAUTH_TOKEN",
	"filters.allowlist":          "API_DISCOVERY_SERVICENOW_ALLOWLIST",
	"filters.denylist":           "API_DISCOVERY_SERVICENOW_DENYLIST",
	"http.verify_tls":            "API_DISCOVERY_VERIFY_TLS",
	"http.timeout_seconds":       "API_DISCOVERY_REQUEST_TIMEOUT_SECONDS",
	"http.user_agent":            "API_DISCOVERY_USER_AGENT",
	"http.rate_limit_per_second": "API_DISCOVERY_RATE_LIMIT_PER_SECOND",
	"http.max_attempts":          "API_DISCOVERY_MAX_ATTEMPTS",
	"run.state_dir":              "API_DISCOVERY_STATE_DIR",
	"run.specs_dir":              "API_DISCOVERY_SPECS_DIR",
	"run.browser_catalog":        "API_DISCOVERY_BROWSER_CATALOG",
	"logging.level":              "API_DISCOVERY_LOG_LEVEL",
}

// Load reads configuration from the specified file path.
// It supports YAML files, environment variable substitution inside values and
// API_DISCOVERY_* environment bindings. An empty path loads defaults and
// environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	cfg.Filters.Allowlist = normalizeList(cfg.Filters.Allowlist)
	cfg.Filters.Denylist = normalizeList(cfg.Filters.Denylist)
	cfg.Instance.BaseURL = strings.TrimRight(cfg.Instance.BaseURL, "/")

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	cfg.Instance.BaseURL = expandEnvVar(cfg.Instance.BaseURL)
	cfg.Instance.Username = expandEnvVar(cfg.Instance.Username)
	cfg.Instance.Password = expandEnvVar(cfg.Instance.Password)
	cfg.Instance.OAuthToken = expandEnvVar(cfg.Instance.OAuthToken)

	cfg.Run.StateDir = expandEnvVar(cfg.Run.StateDir)
	cfg.Run.SpecsDir = expandEnvVar(cfg.Run.SpecsDir)
	cfg.Run.BrowserCatalog = expandEnvVar(cfg.Run.BrowserCatalog)

	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// normalizeList trims entries and drops empty ones. A single entry holding a
// comma-separated list (as delivered by environment variables) is split.
func normalizeList(in []string) []string {
	var out []string
	for _, item := range in {
		out = append(out, ParseList(item)...)
	}
	return out
}
