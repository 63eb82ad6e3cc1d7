package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk YAML shape. Durations are Go duration strings
// ("3s", "1500ms"); pointer fields distinguish unset from false/zero.
type fileConfig struct {
	StreamURL            string   `yaml:"stream_url"`
	UserAgent            string   `yaml:"user_agent"`
	StallTimeout         string   `yaml:"stall_timeout"`
	ReconnectDelay       string   `yaml:"reconnect_delay"`
	BackoffMax           string   `yaml:"backoff_max"`
	BackoffMultiply      *float64 `yaml:"backoff_multiply"`
	BackoffJitter        *float64 `yaml:"backoff_jitter"`
	FFmpegPath           string   `yaml:"ffmpeg_path"`
	FFmpegLogLevel       string   `yaml:"ffmpeg_log_level"`
	StatusURL            string   `yaml:"status_url"`
	ListenerPollInterval string   `yaml:"listener_poll_interval"`
	MetricsPort          int      `yaml:"metrics_port"`
	MetricsHost          string   `yaml:"metrics_host"`
	LogFormat            string   `yaml:"log_format"`
	LogLevel             string   `yaml:"log_level"`
	Verbose              *bool    `yaml:"verbose"`
	TUI                  *bool    `yaml:"tui"`
	SkipPreflight        *bool    `yaml:"skip_preflight"`
}

// LoadFile overlays the YAML file at path onto cfg. Unset keys keep their
// current values.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	setStr := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setDur := func(field string, dst *time.Duration, v string) error {
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", v)}
		}
		*dst = d
		return nil
	}

	setStr(&cfg.StreamURL, fc.StreamURL)
	setStr(&cfg.UserAgent, fc.UserAgent)
	setStr(&cfg.FFmpegPath, fc.FFmpegPath)
	setStr(&cfg.FFmpegLogLevel, fc.FFmpegLogLevel)
	setStr(&cfg.StatusURL, fc.StatusURL)
	setStr(&cfg.MetricsHost, fc.MetricsHost)
	setStr(&cfg.LogFormat, fc.LogFormat)
	setStr(&cfg.LogLevel, fc.LogLevel)

	if fc.MetricsPort != 0 {
		cfg.MetricsPort = fc.MetricsPort
	}
	if fc.BackoffMultiply != nil {
		cfg.BackoffMultiply = *fc.BackoffMultiply
	}
	if fc.BackoffJitter != nil {
		cfg.BackoffJitter = *fc.BackoffJitter
	}
	if fc.Verbose != nil {
		cfg.Verbose = *fc.Verbose
	}
	if fc.TUI != nil {
		cfg.TUIEnabled = *fc.TUI
	}
	if fc.SkipPreflight != nil {
		cfg.SkipPreflight = *fc.SkipPreflight
	}

	if err := setDur("stall_timeout", &cfg.StallTimeout, fc.StallTimeout); err != nil {
		return err
	}
	if err := setDur("reconnect_delay", &cfg.ReconnectDelay, fc.ReconnectDelay); err != nil {
		return err
	}
	if err := setDur("backoff_max", &cfg.BackoffMax, fc.BackoffMax); err != nil {
		return err
	}
	return setDur("listener_poll_interval", &cfg.ListenerPollInterval, fc.ListenerPollInterval)
}
