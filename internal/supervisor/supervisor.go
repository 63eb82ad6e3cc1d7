package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
	"github.com/randomizedcoder/go-icecast-monitor/internal/parser"
	"github.com/randomizedcoder/go-icecast-monitor/internal/process"
)

// Metrics is the slice of the metrics registry the supervisor writes.
type Metrics interface {
	parser.PeakSink
	SetConnected(up bool)
	ResetSession()
	RecordReconnect() int64
}

// Callbacks contains optional callback functions for supervisor events.
type Callbacks struct {
	// OnStateChange is called when the supervisor state changes.
	OnStateChange func(oldState, newState State)

	// OnConnect is called once response headers are accepted.
	OnConnect func(sess *Session)

	// OnSessionEnd is called after every session, err is nil on a clean end.
	OnSessionEnd func(sess *Session, err error)

	// OnReconnect is called before the reconnect delay.
	OnReconnect func(attempt int64, delay time.Duration, err error)
}

// Config holds configuration for creating a new Supervisor.
type Config struct {
	URL          string
	UserAgent    string
	StallTimeout time.Duration
	Backoff      *Backoff
	Decoder      process.Decoder
	Metrics      Metrics
	Bytes        ByteCounter // may be nil
	Logger       *slog.Logger
	Callbacks    Callbacks

	// Client overrides the HTTP client (tests).
	Client *http.Client

	// Bridge tuning; zero values use defaults.
	WatchdogInterval time.Duration
	ExitGrace        time.Duration
	ParserBuffer     int
}

// Supervisor keeps the stream connected. Every session end, clean or not,
// resets the per-session metrics, counts a reconnect attempt and waits for
// the backoff delay before the next attempt.
type Supervisor struct {
	url       string
	userAgent string
	client    *http.Client
	backoff   *Backoff
	bridge    *Bridge
	metrics   Metrics
	bytes     ByteCounter
	logger    *slog.Logger
	callbacks Callbacks

	state   State
	stateMu sync.RWMutex

	current  atomic.Pointer[Session]
	lastErr  atomic.Pointer[sessionErr]
	sessions atomic.Int64
}

type sessionErr struct{ err error }

// New creates a new Supervisor with the given configuration.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = NewBackoff(time.Now().UnixNano(), DefaultBackoffConfig())
	}

	client := cfg.Client
	if client == nil {
		client = NewHTTPClient(cfg.StallTimeout)
	}

	return &Supervisor{
		url:       cfg.URL,
		userAgent: cfg.UserAgent,
		client:    client,
		backoff:   backoff,
		metrics:   cfg.Metrics,
		bytes:     cfg.Bytes,
		logger:    logger,
		callbacks: cfg.Callbacks,
		state:     StateIdle,
		bridge: NewBridge(BridgeConfig{
			Decoder:          cfg.Decoder,
			Peaks:            cfg.Metrics,
			Bytes:            cfg.Bytes,
			Logger:           logger,
			StallTimeout:     cfg.StallTimeout,
			WatchdogInterval: cfg.WatchdogInterval,
			ExitGrace:        cfg.ExitGrace,
			ParserBuffer:     cfg.ParserBuffer,
		}),
	}
}

// NewHTTPClient returns a client for long-lived streams: no overall timeout,
// but connect and response-header phases bounded by the stall timeout.
func NewHTTPClient(stallTimeout time.Duration) *http.Client {
	if stallTimeout <= 0 {
		stallTimeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: stallTimeout, KeepAlive: 30 * time.Second}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			TLSHandshakeTimeout:   stallTimeout,
			ResponseHeaderTimeout: stallTimeout,
			// Icecast serves raw audio; transparent gzip would only get in the way.
			DisableCompression: true,
		},
	}
}

// Run starts the supervision loop. It blocks until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor_starting", "url", s.url)

	for {
		if ctx.Err() != nil {
			return s.stop(ctx)
		}

		sess, err := s.runSession(ctx)
		if ctx.Err() != nil {
			return s.stop(ctx)
		}

		s.resetSession()
		attempt := s.metrics.RecordReconnect()
		s.lastErr.Store(&sessionErr{err: err})

		if sess != nil && ShouldReset(sess.Duration()) {
			s.backoff.Reset()
		}
		delay := s.backoff.Next()

		if s.callbacks.OnSessionEnd != nil {
			s.callbacks.OnSessionEnd(sess, err)
		}
		if s.callbacks.OnReconnect != nil {
			s.callbacks.OnReconnect(attempt, delay, err)
		}

		s.logReconnect(attempt, delay, sess, err)

		s.setState(StateBackoff)
		select {
		case <-ctx.Done():
			return s.stop(ctx)
		case <-time.After(delay):
		}
	}
}

// resetSession returns the rate and peaks to unknown. The meter goes first
// so a concurrent tick cannot republish the dead session's bytes.
func (s *Supervisor) resetSession() {
	if s.bytes != nil {
		s.bytes.Reset()
	}
	s.metrics.ResetSession()
}

func (s *Supervisor) stop(ctx context.Context) error {
	s.resetSession()
	s.current.Store(nil)
	s.setState(StateStopped)
	s.logger.Debug("supervisor_stopped", "reason", "context_cancelled")
	return ctx.Err()
}

func (s *Supervisor) logReconnect(attempt int64, delay time.Duration, sess *Session, err error) {
	attrs := []any{
		"attempt", attempt,
		"delay", delay.String(),
	}
	if sess != nil {
		attrs = append(attrs,
			"session_id", sess.ID,
			"session_bytes", sess.Bytes(),
			"session_duration", sess.Duration().Round(time.Millisecond).String(),
		)
	}
	if err == nil {
		s.logger.Info("stream_ended", attrs...)
		return
	}
	if kind, ok := KindOf(err); ok {
		attrs = append(attrs, "kind", kind.String())
	}
	attrs = append(attrs, "error", err)
	s.logger.Warn("stream_error", attrs...)
}

// runSession connects once and streams until the session ends. sess is nil
// if the connection never got past response headers.
func (s *Supervisor) runSession(ctx context.Context) (*Session, error) {
	s.setState(StateConnecting)

	sessCtx, abort := context.WithCancelCause(ctx)
	defer abort(nil)

	req, err := http.NewRequestWithContext(sessCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, &SessionError{Kind: KindOpen, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Icy-MetaData", "0")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &SessionError{Kind: KindOpen, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SessionError{
			Kind:       KindStatus,
			Err:        fmt.Errorf("http status %s", resp.Status),
			StatusCode: resp.StatusCode,
		}
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &SessionError{Kind: KindOpen, Err: errors.New("empty response body")}
	}

	sess := NewSession(s.url, resp.Header.Get("Content-Type"))
	s.current.Store(sess)
	defer s.current.Store(nil)
	s.sessions.Add(1)

	s.metrics.SetConnected(true)
	s.setState(StateStreaming)
	s.logger.Info("stream_connected",
		"session_id", sess.ID,
		"content_type", sess.ContentType,
		"format", string(sess.Format),
	)
	if s.callbacks.OnConnect != nil {
		s.callbacks.OnConnect(sess)
	}

	return sess, s.bridge.Run(sessCtx, abort, sess, resp.Body)
}

// State returns the current state of the supervisor.
func (s *Supervisor) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// setState updates the state and calls the callback if registered.
func (s *Supervisor) setState(newState State) {
	s.stateMu.Lock()
	oldState := s.state
	s.state = newState
	s.stateMu.Unlock()

	if s.callbacks.OnStateChange != nil && oldState != newState {
		s.callbacks.OnStateChange(oldState, newState)
	}
}

// Session returns the live session, or nil between sessions.
func (s *Supervisor) Session() *Session {
	return s.current.Load()
}

// LastError returns the error that ended the previous session, if any.
func (s *Supervisor) LastError() error {
	if e := s.lastErr.Load(); e != nil {
		return e.err
	}
	return nil
}

// Sessions returns how many sessions got past response headers.
func (s *Supervisor) Sessions() int64 {
	return s.sessions.Load()
}
