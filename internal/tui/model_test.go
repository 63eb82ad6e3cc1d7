package tui

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-icecast-monitor/internal/listeners"
	"github.com/randomizedcoder/go-icecast-monitor/internal/metrics"
	"github.com/randomizedcoder/go-icecast-monitor/internal/supervisor"
	"github.com/randomizedcoder/go-icecast-monitor/internal/timeseries"
)

// =============================================================================
// Mock sources
// =============================================================================

type mockMetrics struct{ snap metrics.Snapshot }

func (m *mockMetrics) Snapshot() metrics.Snapshot { return m.snap }

type mockStream struct {
	state   supervisor.State
	session *supervisor.Session
	err     error
}

func (m *mockStream) State() supervisor.State      { return m.state }
func (m *mockStream) Session() *supervisor.Session { return m.session }
func (m *mockStream) LastError() error             { return m.err }

type mockRates struct{ stats timeseries.RateStats }

func (m *mockRates) Stats() timeseries.RateStats { return m.stats }

func liveModel() (Model, *mockMetrics, *mockStream) {
	mm := &mockMetrics{snap: metrics.Snapshot{
		Connected:    true,
		DownloadRate: 16000,
		PeakLeft:     -3.2,
		PeakRight:    -4.8,
		Reconnects:   2,
		StartTime:    time.Now().Add(-time.Minute),
	}}
	ms := &mockStream{
		state:   supervisor.StateStreaming,
		session: supervisor.NewSession("http://radio.example/live", "audio/mpeg"),
	}
	model := New(Config{
		StreamURL:   "http://radio.example/live",
		MetricsAddr: "localhost:9101",
		Metrics:     mm,
		Stream:      ms,
		Rates:       &mockRates{stats: timeseries.RateStats{Current: 16000, P50: 15800, Max: 17000, Samples: 30}},
	})
	model.width = 120
	model.height = 40
	return model, mm, ms
}

func tick(t *testing.T, m Model) Model {
	t.Helper()
	next, cmd := m.Update(TickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	return next.(Model)
}

// =============================================================================
// Tests: New / Init
// =============================================================================

func TestNew(t *testing.T) {
	model := New(Config{
		StreamURL:   "http://radio.example/live",
		MetricsAddr: "localhost:9101",
	})

	if model.streamURL != "http://radio.example/live" {
		t.Errorf("streamURL = %s", model.streamURL)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
	if !math.IsNaN(model.snap.PeakLeft) || !math.IsNaN(model.snap.PeakRight) {
		t.Error("peaks should start unknown")
	}
	if model.Connected() {
		t.Error("should start disconnected")
	}
	if model.Init() == nil {
		t.Error("Init() returned nil cmd")
	}
}

// =============================================================================
// Tests: Update
// =============================================================================

func TestModel_Update_Keys(t *testing.T) {
	tests := []struct {
		name     string
		msg      tea.KeyMsg
		wantQuit bool
	}{
		{"q", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, true},
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, true},
		{"esc", tea.KeyMsg{Type: tea.KeyEsc}, true},
		{"l", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")}, false},
		{"r", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")}, false},
		{"x", tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := New(Config{}).Update(tt.msg)
			m := next.(Model)
			if m.quitting != tt.wantQuit {
				t.Errorf("quitting = %v, want %v", m.quitting, tt.wantQuit)
			}
			if tt.wantQuit && cmd == nil {
				t.Error("expected tea.Quit cmd")
			}
			if tt.wantQuit && m.View() != "" {
				t.Error("View should be empty once quitting")
			}
		})
	}
}

func TestModel_Update_ToggleMounts(t *testing.T) {
	model := New(Config{})
	if !model.showMounts {
		t.Fatal("mount table should be shown by default")
	}
	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	if next.(Model).showMounts {
		t.Error("'l' should hide the mount table")
	}
}

func TestModel_Update_WindowSize(t *testing.T) {
	next, _ := New(Config{}).Update(tea.WindowSizeMsg{Width: 132, Height: 50})
	m := next.(Model)
	if m.width != 132 || m.height != 50 {
		t.Errorf("size = %dx%d", m.width, m.height)
	}
}

func TestModel_Update_QuitMsg(t *testing.T) {
	next, cmd := New(Config{}).Update(QuitMsg{})
	if !next.(Model).quitting || cmd == nil {
		t.Error("QuitMsg should quit")
	}
}

func TestModel_Tick_PullsSources(t *testing.T) {
	model, mm, ms := liveModel()
	model = tick(t, model)

	if !model.Connected() {
		t.Error("Connected() = false after tick")
	}
	if model.State() != supervisor.StateStreaming {
		t.Errorf("State() = %s", model.State())
	}
	if model.session == nil || model.session.Format != "mp3" {
		t.Errorf("session = %+v", model.session)
	}
	if model.rates.Samples != 30 {
		t.Errorf("rates = %+v", model.rates)
	}
	if model.Elapsed() < time.Minute {
		t.Errorf("Elapsed() = %v, should follow the registry start time", model.Elapsed())
	}

	// Session ends: the next tick drops the session and shows the error.
	mm.snap.Connected = false
	mm.snap.PeakLeft = math.NaN()
	ms.state = supervisor.StateBackoff
	ms.session = nil
	ms.err = errors.New("stall: no data")

	model = tick(t, model)
	if model.session != nil {
		t.Error("session should be cleared")
	}
	if model.lastErr != "stall: no data" {
		t.Errorf("lastErr = %q", model.lastErr)
	}
}

func TestModel_NilSources(t *testing.T) {
	model := New(Config{})
	model = tick(t, model)
	if model.View() == "" {
		t.Error("View should render without sources")
	}
}

// =============================================================================
// Tests: View
// =============================================================================

func TestView_Live(t *testing.T) {
	model, _, _ := liveModel()
	model = tick(t, model)
	view := model.View()

	for _, want := range []string{
		"go-icecast-monitor",
		"LIVE",
		"Reconnects: 2",
		"audio/mpeg",
		"-3.2 dBFS",
		"-4.8 dBFS",
		"16.00 KB/s",
		"Samples",
		"localhost:9101",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Contains(view, "Listeners") {
		t.Error("listener section should be hidden when polling is off")
	}
}

func TestView_UnknownPeaks(t *testing.T) {
	model, mm, ms := liveModel()
	mm.snap.PeakLeft = math.NaN()
	mm.snap.PeakRight = math.NaN()
	ms.state = supervisor.StateBackoff
	ms.session = nil
	model = tick(t, model)
	view := model.View()

	if strings.Count(view, "-- dBFS") != 2 {
		t.Errorf("want both meters unknown, got:\n%s", view)
	}
	if !strings.Contains(view, "RECONNECTING") {
		t.Error("state label missing")
	}
	if !strings.Contains(view, "No active session") {
		t.Error("missing no-session row")
	}
}

func TestView_Listeners(t *testing.T) {
	model, mm, _ := liveModel()
	mm.snap.ListenersOn = true
	model = tick(t, model)

	if !strings.Contains(model.View(), "Waiting for first status poll") {
		t.Error("expected waiting message before the first poll")
	}

	snap := listeners.NewSnapshot(map[string]listeners.Counts{
		"live":   {Current: 12, Peak: 40},
		"backup": {Current: 1, Peak: 2},
		"mobile": {Current: 3, Peak: 5},
	}, time.Now())
	mm.snap.Listeners = &snap
	model = tick(t, model)
	view := model.View()

	for _, want := range []string{"Combined", "16 (peak 47)", "backup", "live", "mobile", "l: toggle mounts"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if strings.Index(view, "backup") > strings.Index(view, "mobile") {
		t.Error("mounts should be sorted")
	}

	next, _ := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("l")})
	if strings.Contains(next.(Model).View(), "backup") {
		t.Error("mount table should be hidden after toggle")
	}
}

// =============================================================================
// Tests: formatting
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00"},
		{90 * time.Second, "00:01:30"},
		{25*time.Hour + 61*time.Second, "25:01:01"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1_500, "1.50 KB"},
		{2_500_000, "2.50 MB"},
		{3_000_000_000, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatByteRate(t *testing.T) {
	if got := formatByteRate(16000); got != "16.00 KB/s (128 kbit/s)" {
		t.Errorf("formatByteRate(16000) = %q", got)
	}
	for _, v := range []float64{0, -1, math.NaN()} {
		if got := formatByteRate(v); got != "0 B/s" {
			t.Errorf("formatByteRate(%v) = %q", v, got)
		}
	}
}

func TestFormatDBFS(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{-3.25, "-3.2 dBFS"},
		{0, "0.0 dBFS"},
		{math.NaN(), "-- dBFS"},
		{math.Inf(-1), "-inf dBFS"},
	}
	for _, tt := range tests {
		if got := formatDBFS(tt.v); got != tt.want {
			t.Errorf("formatDBFS(%v) = %q, want %q", tt.v, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("a", 50)
	if got := truncate(long, 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate(long, 5); got != long {
		t.Error("tiny limits should be ignored")
	}
	if got := truncate("short", 20); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
