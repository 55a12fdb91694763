package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/goapidiscovery/internal/config"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile    string
	logLevel   string
	logFormat  string
	baseURL    string
	username   string
	password   string
	oauthToken string
	rateLimit  float64
	insecure   bool
	stateDir   string
	specsDir   string
	allowlist  string
	denylist   string
	resume     bool
	force      bool
)

var rootCmd = &cobra.Command{
	Use:   "goapidiscovery",
	Short: "ServiceNow REST surface discovery and OpenAPI synthesis",
	Long: `A CLI tool that discovers the REST surface of a ServiceNow instance and
synthesizes OpenAPI 3 documents from its table metadata.

Features:
  - Rate-limited, retrying REST client
  - Resumable per-table field dictionary cache
  - Catalog resolution with authoritative, browser, scrape and default fallbacks
  - Deterministic OpenAPI output with structural validation
  - Runtime reachability probe of discovered tables`,
	Version: Version,
}

// ExitError carries a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to configuration file (defaults and API_DISCOVERY_* environment when empty)")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Instance overrides
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "",
		"Override instance base URL")
	rootCmd.PersistentFlags().StringVar(&username, "username", "",
		"Override basic auth username")
	rootCmd.PersistentFlags().StringVar(&password, "password", "",
		"Override basic auth password")
	rootCmd.PersistentFlags().StringVar(&oauthToken, "oauth-token", "",
		"Override bearer token (basic auth wins when both are set)")

	// HTTP overrides
	rootCmd.PersistentFlags().Float64Var(&rateLimit, "rate-limit", 0,
		"Override requests per second")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false,
		"Skip TLS certificate verification")

	// Run overrides
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "",
		"Override state directory")
	rootCmd.PersistentFlags().StringVar(&specsDir, "specs-dir", "",
		"Override specs output directory")
	rootCmd.PersistentFlags().StringVar(&allowlist, "allowlist", "",
		"Comma-separated tables to include (empty means all)")
	rootCmd.PersistentFlags().StringVar(&denylist, "denylist", "",
		"Comma-separated tables to exclude (wins over allowlist)")
	rootCmd.PersistentFlags().BoolVar(&resume, "resume", false,
		"Reuse cached field dictionaries")
	rootCmd.PersistentFlags().BoolVar(&force, "force", false,
		"Always refetch field dictionaries, overriding --resume")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() config.Overrides {
	return config.Overrides{
		LogLevel:   logLevel,
		LogFormat:  logFormat,
		BaseURL:    baseURL,
		Username:   username,
		Password:   password,
		OAuthToken: oauthToken,
		RateLimit:  rateLimit,
		Insecure:   insecure,
		StateDir:   stateDir,
		SpecsDir:   specsDir,
		Allowlist:  allowlist,
		Denylist:   denylist,
		Resume:     resume,
		Force:      force,
	}
}

// validationFailed wraps a spec validation message as exit code 2.
func validationFailed(msg string) error {
	return &ExitError{Code: 2, Err: fmt.Errorf("spec validation failed: %s", msg)}
}
