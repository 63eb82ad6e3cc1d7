package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-icecast-monitor/internal/timeseries"
)

// DefaultRateInterval is how often the download rate is recomputed.
const DefaultRateInterval = 2 * time.Second

// RateSink receives computed rates.
type RateSink interface {
	SetDownloadRate(bytesPerSec float64)
	SetRateWindow(p50, max float64)
}

// RateMeter accumulates received bytes and converts them into a rate on a
// fixed interval, independent of how chunks arrive.
type RateMeter struct {
	interval time.Duration
	clock    timeseries.Clock
	sink     RateSink
	window   *timeseries.RateWindow

	bytes atomic.Int64
	total atomic.Int64

	mu       sync.Mutex
	lastCalc time.Time
}

// NewRateMeter creates a meter. sink and window may be nil.
func NewRateMeter(interval time.Duration, sink RateSink, window *timeseries.RateWindow) *RateMeter {
	return NewRateMeterWithClock(interval, sink, window, systemClock{})
}

// NewRateMeterWithClock creates a meter with a custom clock for testing.
func NewRateMeterWithClock(interval time.Duration, sink RateSink, window *timeseries.RateWindow, clock timeseries.Clock) *RateMeter {
	if interval <= 0 {
		interval = DefaultRateInterval
	}
	return &RateMeter{
		interval: interval,
		clock:    clock,
		sink:     sink,
		window:   window,
		lastCalc: clock.Now(),
	}
}

// AddBytes records n received bytes. Lock-free; called per chunk.
func (m *RateMeter) AddBytes(n int) {
	if n > 0 {
		m.bytes.Add(int64(n))
		m.total.Add(int64(n))
	}
}

// Pending returns the bytes accumulated since the last tick.
func (m *RateMeter) Pending() int64 {
	return m.bytes.Load()
}

// TotalBytes returns all bytes ever recorded.
func (m *RateMeter) TotalBytes() int64 {
	return m.total.Load()
}

// Tick computes bytes/elapsed since the previous tick, resets the
// accumulator and publishes the result. If no time has elapsed the
// accumulator is kept and the previous rate is not republished.
func (m *RateMeter) Tick() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	elapsed := now.Sub(m.lastCalc).Seconds()
	if elapsed <= 0 {
		return 0, false
	}
	m.lastCalc = now

	rate := float64(m.bytes.Swap(0)) / elapsed

	if m.sink != nil {
		m.sink.SetDownloadRate(rate)
	}
	if m.window != nil {
		m.window.Add(rate)
		if m.sink != nil {
			s := m.window.Stats()
			m.sink.SetRateWindow(s.P50, s.Max)
		}
	}
	return rate, true
}

// Reset drops bytes not yet turned into a rate and restarts the interval.
// Called at a session boundary so a dead session's bytes are never
// published. The rolling window keeps its history.
func (m *RateMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bytes.Store(0)
	m.lastCalc = m.clock.Now()
	if m.sink != nil {
		m.sink.SetDownloadRate(0)
	}
}

// Run ticks every interval until ctx is cancelled.
func (m *RateMeter) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
