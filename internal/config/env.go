package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment keys understood by ApplyEnv.
const (
	EnvStreamURL      = "ICECAST_URL"
	EnvMetricsPort    = "METRICS_PORT"
	EnvReconnectDelay = "RECONNECT_DELAY_MS"
	EnvStallTimeout   = "STALL_TIMEOUT_MS"
	EnvStatusURL      = "ICECAST_STATUS_URL"
	EnvListenerPoll   = "LISTENER_POLL_MS"
	EnvFFmpegPath     = "FFMPEG_PATH"
	EnvLogFormat      = "LOG_FORMAT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvConfigFile     = "ICECAST_MONITOR_CONFIG"
)

// LookupFunc matches os.LookupEnv so tests can supply their own environment.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv seeds the process environment from the given .env files.
// Variables already set in the environment win. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg.
// A malformed numeric value is reported as a ValidationError.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	millis := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, ValidationError{Field: key, Message: fmt.Sprintf("not an integer millisecond value (got %q)", v)})
			return
		}
		*dst = time.Duration(n) * time.Millisecond
	}

	str(EnvStreamURL, &cfg.StreamURL)
	str(EnvStatusURL, &cfg.StatusURL)
	str(EnvFFmpegPath, &cfg.FFmpegPath)
	str(EnvLogFormat, &cfg.LogFormat)
	str(EnvLogLevel, &cfg.LogLevel)

	if v, ok := lookup(EnvMetricsPort); ok && strings.TrimSpace(v) != "" {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, ValidationError{Field: EnvMetricsPort, Message: fmt.Sprintf("not an integer (got %q)", v)})
		} else {
			cfg.MetricsPort = port
		}
	}

	millis(EnvReconnectDelay, &cfg.ReconnectDelay)
	millis(EnvStallTimeout, &cfg.StallTimeout)
	millis(EnvListenerPoll, &cfg.ListenerPollInterval)

	return errors.Join(errs...)
}
