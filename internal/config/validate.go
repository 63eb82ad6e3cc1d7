package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMissingStreamURL is returned by Validate when no stream URL was given.
// Callers print the usage message for it.
var ErrMissingStreamURL = errors.New("stream URL is required")

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing the problem.
func Validate(cfg *Config) error {
	var errs []error

	// Stream URL is required (unless --print-cmd or --print-metrics)
	if cfg.StreamURL == "" && !cfg.PrintCmd && !cfg.PrintMetrics {
		errs = append(errs, ErrMissingStreamURL)
	}

	if cfg.StreamURL != "" {
		if err := validateURL(cfg.StreamURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "stream_url",
				Message: err.Error(),
			})
		}
	}

	if cfg.StatusURL != "" {
		if err := validateURL(cfg.StatusURL); err != nil {
			errs = append(errs, ValidationError{
				Field:   "status_url",
				Message: err.Error(),
			})
		}
		if cfg.ListenerPollInterval <= 0 {
			errs = append(errs, ValidationError{
				Field:   "listener_poll_interval",
				Message: "must be positive",
			})
		}
	}

	if cfg.MetricsPort < 1 || cfg.MetricsPort > 65535 {
		errs = append(errs, ValidationError{
			Field:   "metrics_port",
			Message: fmt.Sprintf("must be between 1 and 65535 (got %d)", cfg.MetricsPort),
		})
	}

	if cfg.ReconnectDelay <= 0 {
		errs = append(errs, ValidationError{
			Field:   "reconnect_delay",
			Message: "must be positive",
		})
	}

	if cfg.StallTimeout <= 0 {
		errs = append(errs, ValidationError{
			Field:   "stall_timeout",
			Message: "must be positive",
		})
	}

	// Backoff settings
	// Zero leaves the delay uncapped.
	if cfg.BackoffMax < 0 || (cfg.BackoffMax > 0 && cfg.BackoffMax < cfg.ReconnectDelay) {
		errs = append(errs, ValidationError{
			Field:   "backoff_max",
			Message: "must be 0 (no cap) or >= reconnect_delay",
		})
	}
	if cfg.BackoffMultiply < 1.0 {
		errs = append(errs, ValidationError{
			Field:   "backoff_multiply",
			Message: "must be >= 1.0",
		})
	}
	if cfg.BackoffJitter < 0 || cfg.BackoffJitter > 1 {
		errs = append(errs, ValidationError{
			Field:   "backoff_jitter",
			Message: "must be between 0 and 1",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.FFmpegPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ffmpeg_path",
			Message: "must not be empty",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// validateURL checks if the URL is valid and uses http or https.
func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https (got %q)", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must have a host")
	}

	return nil
}
