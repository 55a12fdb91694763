package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// supportedPlatforms lists platforms with an implemented discovery pipeline.
var supportedPlatforms = map[string]bool{"servicenow": true}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	if !supportedPlatforms[strings.ToLower(c.Platform)] {
		errors = append(errors, ValidationError{
			Field:   "platform",
			Message: fmt.Sprintf("unsupported platform %q (supported: servicenow)", c.Platform),
		})
	}

	errors = append(errors, c.validateInstance()...)
	errors = append(errors, c.validateHTTP()...)
	errors = append(errors, c.validateRun()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateInstance() ValidationErrors {
	var errors ValidationErrors

	if c.Instance.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "instance.base_url",
			Message: "base_url is required",
		})
		return errors
	}

	u, err := url.Parse(c.Instance.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "instance.base_url",
			Message: "base_url must be an absolute http(s) URL",
		})
	}

	if (c.Instance.Username == "") != (c.Instance.Password == "") && c.Instance.OAuthToken == "" {
		errors = append(errors, ValidationError{
			Field:   "instance.username",
			Message: "username and password must be set together",
		})
	}

	return errors
}

func (c *Config) validateHTTP() ValidationErrors {
	var errors ValidationErrors

	if c.HTTP.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "http.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.HTTP.RateLimitPerSecond < 0 {
		errors = append(errors, ValidationError{
			Field:   "http.rate_limit_per_second",
			Message: "rate_limit_per_second cannot be negative",
		})
	}

	if c.HTTP.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "http.max_attempts",
			Message: "max_attempts must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateRun() ValidationErrors {
	var errors ValidationErrors

	if c.Run.StateDir == "" {
		errors = append(errors, ValidationError{
			Field:   "run.state_dir",
			Message: "state_dir is required",
		})
	}

	if c.Run.SpecsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "run.specs_dir",
			Message: "specs_dir is required",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
