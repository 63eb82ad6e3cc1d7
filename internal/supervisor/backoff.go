package supervisor

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for reconnect delays.
// Multiplier 1.0 with no jitter gives a fixed delay.
type BackoffConfig struct {
	Initial    time.Duration // First delay (default: 3s)
	Max        time.Duration // Maximum delay, 0 for none (default: 30s)
	Multiplier float64       // Growth per attempt (default: 1.0)
	JitterPct  float64       // Jitter as a fraction of delay, centred (default: 0)
}

// DefaultBackoffConfig returns a fixed 3s reconnect delay.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    3 * time.Second,
		Max:        30 * time.Second,
		Multiplier: 1.0,
		JitterPct:  0,
	}
}

// Backoff calculates reconnect delays. Not safe for concurrent use; owned
// by the supervisor loop.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a new Backoff. seed drives the jitter sequence.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	// A cap below the first delay would shorten the configured delay.
	if cfg.Max > 0 && cfg.Max < cfg.Initial {
		cfg.Max = cfg.Initial
	}
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	attempts := b.attempts
	if attempts < 0 {
		attempts = 0
	}

	// initial * multiplier^attempts
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(attempts))

	if b.config.Max > 0 && delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}

	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// BackoffResetThreshold is the minimum streaming time after which a session
// counts as healthy and the delay sequence starts over.
const BackoffResetThreshold = 30 * time.Second

// ShouldReset reports whether a session that streamed for d should reset
// the backoff.
func ShouldReset(d time.Duration) bool {
	return d >= BackoffResetThreshold
}
