// Package timeseries keeps a rolling window of download rate samples.
//
// Samples are fed once per rate interval. Quantiles come from a T-Digest
// rebuilt only when samples expire, so Add stays cheap.
package timeseries

import (
	"math"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// DefaultWindow is the rolling window used for the rate quantiles.
const DefaultWindow = 60 * time.Second

// Clock interface for testing with deterministic time.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type sample struct {
	time  time.Time
	value float64
}

// RateStats summarises the samples currently in the window.
type RateStats struct {
	Current float64 // most recent sample
	P50     float64
	Max     float64
	Samples int
}

// RateWindow tracks download rate samples over a rolling time window.
type RateWindow struct {
	window time.Duration
	clock  Clock

	mu      sync.Mutex
	samples []sample
	digest  *tdigest.TDigest
	max     float64
}

// NewRateWindow creates a window of the given length (DefaultWindow if <= 0).
func NewRateWindow(window time.Duration) *RateWindow {
	return NewRateWindowWithClock(window, realClock{})
}

// NewRateWindowWithClock creates a window with a custom clock for testing.
func NewRateWindowWithClock(window time.Duration, clock Clock) *RateWindow {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RateWindow{
		window: window,
		clock:  clock,
		digest: tdigest.NewWithCompression(100),
	}
}

// Add records one rate sample. NaN and negative values are ignored.
func (w *RateWindow) Add(rate float64) {
	if math.IsNaN(rate) || rate < 0 {
		return
	}
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples = append(w.samples, sample{time: now, value: rate})
	w.digest.Add(rate, 1)
	if rate > w.max {
		w.max = rate
	}
	w.expire(now)
}

// Stats returns the window summary. All fields are zero when empty.
func (w *RateWindow) Stats() RateStats {
	now := w.clock.Now()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.expire(now)
	if len(w.samples) == 0 {
		return RateStats{}
	}
	return RateStats{
		Current: w.samples[len(w.samples)-1].value,
		P50:     w.digest.Quantile(0.5),
		Max:     w.max,
		Samples: len(w.samples),
	}
}

// Reset drops all samples.
func (w *RateWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = w.samples[:0]
	w.digest = tdigest.NewWithCompression(100)
	w.max = 0
}

// expire removes samples older than the window and rebuilds the digest
// only when something actually expired. Caller holds mu.
func (w *RateWindow) expire(now time.Time) {
	cutoff := now.Add(-w.window)

	expired := 0
	for expired < len(w.samples) && !w.samples[expired].time.After(cutoff) {
		expired++
	}
	if expired == 0 {
		return
	}

	w.samples = append(w.samples[:0], w.samples[expired:]...)
	w.digest = tdigest.NewWithCompression(100)
	w.max = 0
	for _, s := range w.samples {
		w.digest.Add(s.value, 1)
		if s.value > w.max {
			w.max = s.value
		}
	}
}
