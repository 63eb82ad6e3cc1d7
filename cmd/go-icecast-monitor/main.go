// Package main provides the go-icecast-monitor CLI entry point.
//
// go-icecast-monitor keeps a single Icecast stream connected, decodes it with
// FFmpeg to measure stereo peak levels, and exports stream health as
// Prometheus metrics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/randomizedcoder/go-icecast-monitor/internal/config"
	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
	"github.com/randomizedcoder/go-icecast-monitor/internal/metrics"
	"github.com/randomizedcoder/go-icecast-monitor/internal/orchestrator"
	"github.com/randomizedcoder/go-icecast-monitor/internal/process"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/go-icecast-monitor
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("go-icecast-monitor %s\n", version)
			return 0
		}
	}

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		return 1
	}

	cfg, err := config.ParseFlags(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// When TUI is enabled, suppress logs to avoid interfering with TUI rendering
	var logger *slog.Logger
	if cfg.TUIEnabled {
		logger = logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.LogLevel)
	} else {
		logger = logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		if errors.Is(err, config.ErrMissingStreamURL) {
			config.PrintUsage(os.Stderr)
		}
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.PrintCmd {
		printFFmpegCommand(cfg)
		return 0
	}

	orch := orchestrator.New(cfg, logger)

	if cfg.PrintMetrics {
		if err := metrics.WriteText(os.Stdout, orch.Registry().Gatherer()); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing metrics: %v\n", err)
			return 1
		}
		return 0
	}

	logger.Info("starting",
		"version", version,
		"stream_url", cfg.StreamURL,
		"metrics_addr", cfg.MetricsAddr(),
		"config_file", cfg.ConfigFile,
	)

	if !cfg.TUIEnabled {
		printBanner(cfg)
	}

	if err := orch.Run(context.Background()); err != nil {
		logger.Error("monitor_failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       go-icecast-monitor                          ║")
	fmt.Println("║        Icecast stream health and audio level exporter             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Stream:      %s\n", cfg.StreamURL)
	fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr())
	if cfg.ListenersEnabled() {
		fmt.Printf("  Listeners:   %s (every %s)\n", cfg.StatusURL, cfg.ListenerPollInterval)
	}
	fmt.Printf("  Stall:       %s, reconnect after %s\n", cfg.StallTimeout, cfg.ReconnectDelay)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}

// printFFmpegCommand prints the decoder command for each possible input hint.
func printFFmpegCommand(cfg *config.Config) {
	runner := process.NewFFmpegRunner(&process.FFmpegConfig{
		BinaryPath: cfg.FFmpegPath,
		LogLevel:   cfg.FFmpegLogLevel,
	})

	fmt.Println("# FFmpeg command run for each session; the stream is written to stdin.")
	fmt.Println("# The input format is forced from the response Content-Type:")
	fmt.Println()
	for _, h := range []process.FormatHint{process.FormatNone, process.FormatOgg, process.FormatMP3, process.FormatAAC} {
		label := string(h)
		if label == "" {
			label = "unknown (probe)"
		}
		fmt.Printf("# %s\n%s\n\n", label, runner.CommandString(h))
	}
}
