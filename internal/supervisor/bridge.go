package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-icecast-monitor/internal/logging"
	"github.com/randomizedcoder/go-icecast-monitor/internal/parser"
	"github.com/randomizedcoder/go-icecast-monitor/internal/process"
)

const (
	// DefaultExitGrace is how long the decoder may take to exit after its
	// stdin is closed (or after a stall) before it is killed.
	DefaultExitGrace = 5 * time.Second

	chunkSize = 32 * 1024

	// recentStderrLines is how many decoder lines a decoder failure carries.
	recentStderrLines = 5
)

// ByteCounter receives the size of every chunk read from the stream.
// Reset is called at every session boundary.
type ByteCounter interface {
	AddBytes(n int)
	Reset()
}

// BridgeConfig holds configuration for a Bridge.
type BridgeConfig struct {
	Decoder          process.Decoder
	Peaks            parser.PeakSink
	Bytes            ByteCounter // may be nil
	Logger           *slog.Logger
	StallTimeout     time.Duration
	WatchdogInterval time.Duration // default 1s
	ExitGrace        time.Duration // default 5s
	ParserBuffer     int
}

// Bridge pipes one stream session through the decoder and turns its
// diagnostic output into peak levels. The decoded audio is discarded.
type Bridge struct {
	decoder          process.Decoder
	peaks            parser.PeakSink
	bytes            ByteCounter
	logger           *slog.Logger
	stallTimeout     time.Duration
	watchdogInterval time.Duration
	exitGrace        time.Duration
	parserBuffer     int
}

// NewBridge creates a bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	grace := cfg.ExitGrace
	if grace <= 0 {
		grace = DefaultExitGrace
	}
	return &Bridge{
		decoder:          cfg.Decoder,
		peaks:            cfg.Peaks,
		bytes:            cfg.Bytes,
		logger:           logger,
		stallTimeout:     cfg.StallTimeout,
		watchdogInterval: cfg.WatchdogInterval,
		exitGrace:        grace,
		parserBuffer:     cfg.ParserBuffer,
	}
}

// errDecoderExited is the abort cause used when the decoder exits while the
// network read is still blocked.
var errDecoderExited = errors.New("decoder exited before stream ended")

// Run feeds body into a new decoder process until the body ends, the stream
// stalls, or the decoder exits. ctx is the session context and abort cancels
// the in-flight request that body belongs to.
//
// The decoder is not bound to ctx. It is stopped by closing its stdin, and
// killed only if it has not exited ExitGrace later. Run returns once the
// writer, the stderr drain and the exit wait have all finished.
func (b *Bridge) Run(ctx context.Context, abort context.CancelCauseFunc, sess *Session, body io.Reader) error {
	killCtx, kill := context.WithCancel(context.WithoutCancel(ctx))
	defer kill()

	cmd, err := b.decoder.BuildCommand(killCtx, sess.Format)
	if err != nil {
		return &SessionError{Kind: KindDecoder, Err: fmt.Errorf("build %s command: %w", b.decoder.Name(), err)}
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &SessionError{Kind: KindDecoder, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &SessionError{Kind: KindDecoder, Err: fmt.Errorf("stderr pipe: %w", err)}
	}
	cmd.Stdout = nil // null device

	if err := cmd.Start(); err != nil {
		return &SessionError{Kind: KindDecoder, Err: fmt.Errorf("start %s: %w", b.decoder.Name(), err)}
	}

	log := b.logger.With("session_id", sess.ID)
	log.Debug("decoder_started", "pid", cmd.Process.Pid, "format", string(sess.Format))

	killer := newKillSwitch(b.exitGrace, kill)
	defer killer.stop()

	// Watchdog
	wd := NewWatchdog(b.stallTimeout, b.watchdogInterval)
	wdCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go wd.Run(wdCtx, func(idle time.Duration) {
		log.Warn("stream_stalled", "idle", idle.String(), "timeout", b.stallTimeout.String())
		abort(ErrStalled)
		// A decoder that stopped reading would leave the writer blocked in
		// Write, where the request abort cannot reach it.
		killer.arm()
	})

	// Diagnostic drain
	diag := logging.NewDiagnosticHandler(log)
	peakParser := parser.NewPeakParser(b.peaks, parser.LineParserFunc(diag.HandleLine))
	pipeline := parser.NewPipeline(b.parserBuffer)
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		pipeline.Drain(stderr, peakParser)
	}()

	// Exit wait. Wait must not run before stderr is fully read.
	var writerDone, decoderFirst atomic.Bool
	exitCh := make(chan error, 1)
	go func() {
		<-drainDone
		waitErr := cmd.Wait()
		if !writerDone.Load() {
			decoderFirst.Store(true)
			abort(errDecoderExited)
		}
		exitCh <- waitErr
	}()

	// Writer
	readErr := b.pump(body, stdin, sess, wd)
	writerDone.Store(true)
	stdin.Close()
	stopWatchdog()
	killer.arm()

	<-drainDone
	waitErr := <-exitCh

	read, dropped, _ := pipeline.Stats()
	peaks, _ := peakParser.Stats()
	log.Debug("decoder_exited",
		"exit_code", extractExitCode(waitErr),
		"stderr_lines", read,
		"stderr_dropped", dropped,
		"peak_lines", peaks,
	)

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrStalled):
		return &SessionError{Kind: KindStall, Err: ErrStalled}
	case readErr != nil && !decoderFirst.Load():
		return &SessionError{Kind: KindStream, Err: readErr}
	case waitErr != nil:
		return &SessionError{
			Kind:     KindDecoder,
			Err:      fmt.Errorf("%s exited: %w", b.decoder.Name(), waitErr),
			ExitCode: extractExitCode(waitErr),
			Stderr:   diag.RecentLines(recentStderrLines),
		}
	case decoderFirst.Load():
		return &SessionError{
			Kind:   KindDecoder,
			Err:    errDecoderExited,
			Stderr: diag.RecentLines(recentStderrLines),
		}
	}
	return nil
}

// pump copies body into the decoder. Every chunk touches the watchdog and
// is counted before it is forwarded. A write failure stops forwarding
// silently; the decoder has gone and the exit wait reports why. Returns the
// read error, or nil at EOF.
func (b *Bridge) pump(body io.Reader, stdin io.Writer, sess *Session, wd *Watchdog) error {
	// Disarm before anything else sees the end of the stream, so a tick
	// landing after EOF cannot report a stall.
	defer wd.Stop()

	buf := make([]byte, chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			wd.Touch()
			sess.addBytes(n)
			if b.bytes != nil {
				b.bytes.AddBytes(n)
			}
			if _, werr := stdin.Write(buf[:n]); werr != nil {
				b.logger.Debug("decoder_write_failed", "session_id", sess.ID, "error", werr)
				return nil
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// killSwitch kills the decoder a grace period after it is armed. Arming is
// idempotent and stop cancels a pending kill.
type killSwitch struct {
	grace time.Duration
	kill  func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func newKillSwitch(grace time.Duration, kill func()) *killSwitch {
	return &killSwitch{grace: grace, kill: kill}
}

func (k *killSwitch) arm() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped || k.timer != nil {
		return
	}
	k.timer = time.AfterFunc(k.grace, k.kill)
}

func (k *killSwitch) stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopped = true
	if k.timer != nil {
		k.timer.Stop()
	}
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
	}

	// Unknown error, assume exit code 1
	return 1
}
