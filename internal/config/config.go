// Package config provides configuration management for go-icecast-monitor.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration options for the monitor.
type Config struct {
	// Stream
	StreamURL    string        `json:"stream_url"`
	UserAgent    string        `json:"user_agent"`
	StallTimeout time.Duration `json:"stall_timeout"`

	// Reconnect policy. With the defaults every retry waits exactly ReconnectDelay.
	ReconnectDelay  time.Duration `json:"reconnect_delay"`
	BackoffMax      time.Duration `json:"backoff_max"`
	BackoffMultiply float64       `json:"backoff_multiply"`
	BackoffJitter   float64       `json:"backoff_jitter"`

	// Decoder
	FFmpegPath     string `json:"ffmpeg_path"`
	FFmpegLogLevel string `json:"ffmpeg_log_level"`

	// Listener poller (disabled when StatusURL is empty)
	StatusURL            string        `json:"status_url"`
	ListenerPollInterval time.Duration `json:"listener_poll_interval"`

	// Observability
	MetricsPort int    `json:"metrics_port"`
	MetricsHost string `json:"metrics_host"`
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	TUIEnabled  bool   `json:"tui"`

	// Diagnostic modes
	PrintCmd      bool `json:"print_cmd"`
	PrintMetrics  bool `json:"print_metrics"`
	SkipPreflight bool `json:"skip_preflight"`

	// ConfigFile is the YAML file the other fields were layered from, if any.
	ConfigFile string `json:"config_file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		UserAgent:    "monitor-icecast/1.0",
		StallTimeout: 10 * time.Second,

		ReconnectDelay:  3 * time.Second,
		BackoffMax:      0,   // no cap
		BackoffMultiply: 1.0, // fixed delay
		BackoffJitter:   0,

		FFmpegPath:     "ffmpeg",
		FFmpegLogLevel: "info",

		ListenerPollInterval: 15 * time.Second,

		MetricsPort: 9101,
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// MetricsAddr returns the listen address of the metrics server.
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// ListenersEnabled reports whether the listener poller should run.
func (c *Config) ListenersEnabled() bool {
	return c.StatusURL != ""
}
