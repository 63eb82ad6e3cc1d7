package listeners

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
)

// Sink receives each successful snapshot.
type Sink interface {
	SetListeners(Snapshot)
}

// Config holds configuration for a Poller.
type Config struct {
	StatusURL string
	Interval  time.Duration
	UserAgent string
	Sink      Sink
	Logger    *slog.Logger

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

// Poller periodically fetches the status document and replaces the
// listener snapshot. A failed poll keeps the previous snapshot.
type Poller struct {
	statusURL string
	interval  time.Duration
	userAgent string
	sink      Sink
	logger    *slog.Logger
	client    *http.Client

	current  atomic.Pointer[Snapshot]
	polls    atomic.Int64
	failures atomic.Int64
}

// NewPoller creates a poller. Returns nil if no status URL is configured
// (feature disabled); all methods are nil-safe.
func NewPoller(cfg Config) *Poller {
	if cfg.StatusURL == "" {
		return nil
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}

	client := cfg.Client
	if client == nil {
		timeout := 10 * time.Second
		if interval < timeout {
			timeout = interval
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Poller{
		statusURL: cfg.StatusURL,
		interval:  interval,
		userAgent: cfg.UserAgent,
		sink:      cfg.Sink,
		logger:    logger,
		client:    client,
	}
}

// Run polls immediately and then on every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p == nil {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.pollAndLog(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAndLog(ctx)
		}
	}
}

func (p *Poller) pollAndLog(ctx context.Context) {
	if err := p.Poll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Warn("listener_poll_failed",
			"url", p.statusURL,
			"failures", p.failures.Load(),
			"error", err,
		)
	}
}

// Poll performs one fetch. On success the snapshot is replaced and pushed to
// the sink; on failure nothing changes.
func (p *Poller) Poll(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.polls.Add(1)

	snap, err := p.fetch(ctx)
	if err != nil {
		p.failures.Add(1)
		return err
	}

	p.current.Store(&snap)
	if p.sink != nil {
		p.sink.SetListeners(snap)
	}

	p.logger.Debug("listener_poll_ok",
		"mounts", len(snap.Mounts),
		"combined_current", snap.CombinedCurrent,
	)
	return nil
}

func (p *Poller) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.statusURL, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Snapshot{}, fmt.Errorf("http status %d", resp.StatusCode)
	}

	mounts, err := ParseStatus(resp.Body)
	if err != nil {
		return Snapshot{}, err
	}
	return NewSnapshot(mounts, time.Now()), nil
}

// Snapshot returns the latest successful snapshot, if any.
func (p *Poller) Snapshot() (Snapshot, bool) {
	if p == nil {
		return Snapshot{}, false
	}
	s := p.current.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Stats returns (polls, failures).
func (p *Poller) Stats() (polls, failures int64) {
	if p == nil {
		return 0, 0
	}
	return p.polls.Load(), p.failures.Load()
}
