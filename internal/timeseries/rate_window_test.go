package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Unix(1700000000, 0)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateWindow_Empty(t *testing.T) {
	w := NewRateWindow(0)
	if w.window != DefaultWindow {
		t.Errorf("window = %v, want %v", w.window, DefaultWindow)
	}
	if got := w.Stats(); got != (RateStats{}) {
		t.Errorf("Stats() on empty window = %+v", got)
	}
}

func TestRateWindow_Stats(t *testing.T) {
	clock := newMockClock()
	w := NewRateWindowWithClock(time.Minute, clock)

	for _, r := range []float64{100, 200, 300, 400, 500} {
		w.Add(r)
		clock.Advance(2 * time.Second)
	}

	s := w.Stats()
	if s.Samples != 5 {
		t.Errorf("Samples = %d, want 5", s.Samples)
	}
	if s.Current != 500 {
		t.Errorf("Current = %v, want 500", s.Current)
	}
	if s.Max != 500 {
		t.Errorf("Max = %v, want 500", s.Max)
	}
	if s.P50 < 250 || s.P50 > 350 {
		t.Errorf("P50 = %v, want ~300", s.P50)
	}
}

func TestRateWindow_Expiry(t *testing.T) {
	clock := newMockClock()
	w := NewRateWindowWithClock(10*time.Second, clock)

	w.Add(9000)
	clock.Advance(5 * time.Second)
	w.Add(100)
	clock.Advance(6 * time.Second)

	s := w.Stats()
	if s.Samples != 1 {
		t.Fatalf("Samples = %d, want 1 after expiry", s.Samples)
	}
	if s.Max != 100 {
		t.Errorf("Max = %v, want 100 once the 9000 sample expired", s.Max)
	}
	if s.P50 != 100 {
		t.Errorf("P50 = %v, want 100", s.P50)
	}

	clock.Advance(10 * time.Second)
	if got := w.Stats(); got.Samples != 0 {
		t.Errorf("Samples = %d, want 0", got.Samples)
	}
}

func TestRateWindow_IgnoresInvalid(t *testing.T) {
	w := NewRateWindowWithClock(time.Minute, newMockClock())
	w.Add(math.NaN())
	w.Add(-1)
	if got := w.Stats().Samples; got != 0 {
		t.Errorf("Samples = %d, want 0", got)
	}
}

func TestRateWindow_Reset(t *testing.T) {
	w := NewRateWindowWithClock(time.Minute, newMockClock())
	w.Add(10)
	w.Add(20)
	w.Reset()
	if got := w.Stats(); got != (RateStats{}) {
		t.Errorf("Stats() after Reset = %+v", got)
	}
	w.Add(5)
	if got := w.Stats(); got.Max != 5 || got.Samples != 1 {
		t.Errorf("Stats() after re-add = %+v", got)
	}
}

func TestRateWindow_Concurrent(t *testing.T) {
	w := NewRateWindow(time.Minute)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				w.Add(float64(i))
				_ = w.Stats()
			}
		}()
	}
	wg.Wait()
	if got := w.Stats().Samples; got != 400 {
		t.Errorf("Samples = %d, want 400", got)
	}
}
