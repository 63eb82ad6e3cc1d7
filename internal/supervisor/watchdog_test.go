package supervisor

import (
	"context"
	"testing"
	"time"
)

func TestWatchdog_Touch(t *testing.T) {
	w := NewWatchdog(50*time.Millisecond, 10*time.Millisecond)
	if w.Stalled() {
		t.Fatal("new watchdog should not be stalled")
	}
	time.Sleep(70 * time.Millisecond)
	if !w.Stalled() {
		t.Fatal("watchdog should be stalled after the timeout")
	}
	w.Touch()
	if w.Stalled() {
		t.Error("Touch should clear the stall")
	}
	if w.Idle() > 50*time.Millisecond {
		t.Errorf("Idle() = %v after Touch", w.Idle())
	}
}

func TestWatchdog_RunFires(t *testing.T) {
	w := NewWatchdog(30*time.Millisecond, 5*time.Millisecond)

	fired := make(chan time.Duration, 2)
	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), func(idle time.Duration) { fired <- idle })
		close(done)
	}()

	select {
	case idle := <-fired:
		if idle <= 30*time.Millisecond {
			t.Errorf("idle = %v, want > timeout", idle)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watchdog did not fire")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return after firing")
	}
	if len(fired) != 0 {
		t.Error("onStall called more than once")
	}
}

func TestWatchdog_KeptAlive(t *testing.T) {
	w := NewWatchdog(40*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	fired := make(chan struct{}, 1)
	go w.Run(ctx, func(time.Duration) { fired <- struct{}{} })

	stop := time.After(150 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(10 * time.Millisecond):
			w.Touch()
		}
	}
	cancel()

	select {
	case <-fired:
		t.Error("watchdog fired while chunks kept arriving")
	default:
	}
}

func TestWatchdog_CancelledBeforeStall(t *testing.T) {
	w := NewWatchdog(20*time.Millisecond, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	w.Run(ctx, func(time.Duration) { called = true })
	if called {
		t.Error("cancelled watchdog must not fire")
	}
}

func TestWatchdog_StoppedAfterStreamEnd(t *testing.T) {
	w := NewWatchdog(time.Millisecond, time.Millisecond)
	w.last.Store(time.Now().Add(-time.Second).UnixNano())

	if !w.Stop() {
		t.Fatal("Stop() = false before any stall")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	called := false
	w.Run(ctx, func(time.Duration) { called = true })
	if called {
		t.Error("stopped watchdog must not report a stall")
	}
	if ctx.Err() != nil {
		t.Error("Run should return on its first tick once stopped")
	}
}

func TestWatchdog_StopAfterStall(t *testing.T) {
	w := NewWatchdog(time.Millisecond, time.Millisecond)
	w.last.Store(time.Now().Add(-time.Second).UnixNano())

	fired := 0
	w.Run(context.Background(), func(time.Duration) { fired++ })
	if fired != 1 {
		t.Fatalf("onStall called %d times, want 1", fired)
	}
	if w.Stop() {
		t.Error("Stop() = true after the stall was reported")
	}
}

func TestNewWatchdog_DefaultInterval(t *testing.T) {
	if w := NewWatchdog(time.Second, 0); w.interval != DefaultWatchdogInterval {
		t.Errorf("interval = %v, want %v", w.interval, DefaultWatchdogInterval)
	}
}
