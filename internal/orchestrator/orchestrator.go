// Package orchestrator wires the monitor's components together and runs them
// until the process is told to stop.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-icecast-monitor/internal/config"
	"github.com/randomizedcoder/go-icecast-monitor/internal/listeners"
	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
	"github.com/randomizedcoder/go-icecast-monitor/internal/metrics"
	"github.com/randomizedcoder/go-icecast-monitor/internal/preflight"
	"github.com/randomizedcoder/go-icecast-monitor/internal/process"
	"github.com/randomizedcoder/go-icecast-monitor/internal/supervisor"
	"github.com/randomizedcoder/go-icecast-monitor/internal/timeseries"
	"github.com/randomizedcoder/go-icecast-monitor/internal/tui"
)

// shutdownTimeout bounds how long Run waits for loops and the metrics server
// once the root context is cancelled.
const shutdownTimeout = 10 * time.Second

// Orchestrator owns every long-running loop of the monitor.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	runner        *process.FFmpegRunner
	registry      *metrics.Registry
	rates         *timeseries.RateWindow
	meter         *metrics.RateMeter
	metricsServer *metrics.Server
	poller        *listeners.Poller
	supervisor    *supervisor.Supervisor

	startTime time.Time
}

// New creates a new Orchestrator with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Discard()
	}

	runner := process.NewFFmpegRunner(&process.FFmpegConfig{
		BinaryPath: cfg.FFmpegPath,
		LogLevel:   cfg.FFmpegLogLevel,
		WaitDelay:  process.DefaultFFmpegConfig().WaitDelay,
	})

	registry := metrics.NewRegistry(metrics.RegistryConfig{
		Listeners: cfg.ListenersEnabled(),
		Runtime:   true,
	})
	rates := timeseries.NewRateWindow(timeseries.DefaultWindow)
	meter := metrics.NewRateMeter(metrics.DefaultRateInterval, registry, rates)

	o := &Orchestrator{
		config:        cfg,
		logger:        logger,
		out:           os.Stdout,
		runner:        runner,
		registry:      registry,
		rates:         rates,
		meter:         meter,
		metricsServer: metrics.NewServer(cfg.MetricsAddr(), registry, logging.Component(logger, "metrics")),
		poller: listeners.NewPoller(listeners.Config{
			StatusURL: cfg.StatusURL,
			Interval:  cfg.ListenerPollInterval,
			UserAgent: cfg.UserAgent,
			Sink:      registry,
			Logger:    logging.Component(logger, "listeners"),
		}),
	}

	o.supervisor = supervisor.New(supervisor.Config{
		URL:          cfg.StreamURL,
		UserAgent:    cfg.UserAgent,
		StallTimeout: cfg.StallTimeout,
		Backoff: supervisor.NewBackoff(time.Now().UnixNano(), supervisor.BackoffConfig{
			Initial:    cfg.ReconnectDelay,
			Max:        cfg.BackoffMax,
			Multiplier: cfg.BackoffMultiply,
			JitterPct:  cfg.BackoffJitter,
		}),
		Decoder: runner,
		Metrics: registry,
		Bytes:   meter,
		Logger:  logging.Component(logger, "supervisor"),
		Callbacks: supervisor.Callbacks{
			OnStateChange: o.onStateChange,
		},
	})

	return o
}

// SetOutput redirects the preflight report and exit summary (default stdout).
func (o *Orchestrator) SetOutput(w io.Writer) {
	o.out = w
}

// Run starts every loop and blocks until SIGINT/SIGTERM, ctx cancellation,
// or the dashboard being closed.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.config.FFmpegPath)
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger.Info("monitor_starting",
		"stream_url", o.config.StreamURL,
		"metrics_addr", o.metricsServer.Addr(),
		"status_url", o.config.StatusURL,
		"stall_timeout", o.config.StallTimeout.String(),
		"reconnect_delay", o.config.ReconnectDelay.String(),
	)

	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			o.logger.Debug("loop_stopped", "loop", name)
		}()
	}

	start("rate_meter", o.meter.Run)
	start("listener_poller", o.poller.Run)
	start("supervisor", func(ctx context.Context) {
		o.supervisor.Run(ctx)
	})

	if o.config.TUIEnabled {
		o.runDashboard(ctx, cancel)
	}

	<-ctx.Done()
	o.logger.Info("monitor_stopping", "reason", context.Cause(ctx))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	loopsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(loopsDone)
	}()
	select {
	case <-loopsDone:
	case <-shutdownCtx.Done():
		o.logger.Warn("shutdown_incomplete", "error", shutdownCtx.Err())
	}

	if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}

	o.printExitSummary()
	return nil
}

// runDashboard blocks on the terminal dashboard. Closing it cancels the
// monitor; cancelling the monitor closes it.
func (o *Orchestrator) runDashboard(ctx context.Context, cancel context.CancelFunc) {
	model := tui.New(tui.Config{
		StreamURL:   o.config.StreamURL,
		StatusURL:   o.config.StatusURL,
		MetricsAddr: o.metricsServer.Addr(),
		Metrics:     o.registry,
		Stream:      o.supervisor,
		Rates:       o.rates,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		<-ctx.Done()
		tui.SendQuit(p)
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		o.logger.Error("tui_failed", "error", err)
	}
	cancel()
}

func (o *Orchestrator) onStateChange(oldState, newState supervisor.State) {
	o.logger.Debug("state_change", "from", oldState.String(), "to", newState.String())
}

// printExitSummary prints a summary of the monitoring run.
func (o *Orchestrator) printExitSummary() {
	snap := o.registry.Snapshot()
	w := o.out

	fmt.Fprintln(w)
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintln(w, "                  go-icecast-monitor Exit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
	fmt.Fprintf(w, "Run Duration:           %s\n", formatDuration(time.Since(o.startTime)))
	fmt.Fprintf(w, "Stream:                 %s\n", o.config.StreamURL)
	fmt.Fprintf(w, "Sessions:               %d\n", o.supervisor.Sessions())
	fmt.Fprintf(w, "Reconnect Attempts:     %d\n", snap.Reconnects)
	fmt.Fprintf(w, "Bytes Received:         %d\n", o.meter.TotalBytes())
	if err := o.supervisor.LastError(); err != nil {
		fmt.Fprintf(w, "Last Error:             %v\n", err)
	}
	if polls, failures := o.poller.Stats(); polls > 0 {
		fmt.Fprintf(w, "Status Polls:           %d (%d failed)\n", polls, failures)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Metrics endpoint was: http://%s/metrics\n", o.metricsServer.Addr())
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════════════════")
}

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Registry returns the metrics registry for external access.
func (o *Orchestrator) Registry() *metrics.Registry {
	return o.registry
}

// Runner returns the decoder command builder for external access.
func (o *Orchestrator) Runner() *process.FFmpegRunner {
	return o.runner
}

// Supervisor returns the stream supervisor for external access.
func (o *Orchestrator) Supervisor() *supervisor.Supervisor {
	return o.supervisor
}

// MetricsAddr returns the bound metrics address once Run has started it.
func (o *Orchestrator) MetricsAddr() string {
	return o.metricsServer.Addr()
}
