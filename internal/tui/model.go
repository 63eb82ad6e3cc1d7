package tui

import (
	"fmt"
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-icecast-monitor/internal/metrics"
	"github.com/randomizedcoder/go-icecast-monitor/internal/supervisor"
	"github.com/randomizedcoder/go-icecast-monitor/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// refreshInterval matches the /ws/levels push rate so the meters move at the
// same speed in both places.
const refreshInterval = 250 * time.Millisecond

// =============================================================================
// Sources
// =============================================================================

// MetricsSource provides the exported monitor state.
type MetricsSource interface {
	Snapshot() metrics.Snapshot
}

// StreamSource provides the supervisor's view of the connection.
type StreamSource interface {
	State() supervisor.State
	Session() *supervisor.Session
	LastError() error
}

// RateSource provides the rolling download rate summary.
type RateSource interface {
	Stats() timeseries.RateStats
}

// sessionView is a copy of the live session taken on each tick.
type sessionView struct {
	ID          string
	ContentType string
	Format      string
	Uptime      time.Duration
	Bytes       int64
}

// =============================================================================
// Model
// =============================================================================

// Model represents the TUI state.
type Model struct {
	// Configuration
	streamURL   string
	statusURL   string
	metricsAddr string

	// Sources
	metricsSource MetricsSource
	streamSource  StreamSource
	rateSource    RateSource

	// Current state
	snap       metrics.Snapshot
	state      supervisor.State
	session    *sessionView
	lastErr    string
	rates      timeseries.RateStats
	startTime  time.Time
	lastUpdate time.Time
	showMounts bool

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	StreamURL   string
	StatusURL   string
	MetricsAddr string
	Metrics     MetricsSource
	Stream      StreamSource
	Rates       RateSource
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	return Model{
		streamURL:     cfg.StreamURL,
		statusURL:     cfg.StatusURL,
		metricsAddr:   cfg.MetricsAddr,
		metricsSource: cfg.Metrics,
		streamSource:  cfg.Stream,
		rateSource:    cfg.Rates,
		snap: metrics.Snapshot{
			PeakLeft:  math.NaN(),
			PeakRight: math.NaN(),
		},
		startTime:  now,
		lastUpdate: now,
		showMounts: true,
		width:      80,
		height:     24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "l":
			m.showMounts = !m.showMounts
			return m, nil
		case "r":
			m.refresh()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.refresh()
		return m, tickCmd()

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh pulls the latest values from every source.
func (m *Model) refresh() {
	if m.metricsSource != nil {
		m.snap = m.metricsSource.Snapshot()
		if !m.snap.StartTime.IsZero() {
			m.startTime = m.snap.StartTime
		}
	}
	if m.streamSource != nil {
		m.state = m.streamSource.State()
		m.session = nil
		if sess := m.streamSource.Session(); sess != nil {
			m.session = &sessionView{
				ID:          sess.ID,
				ContentType: sess.ContentType,
				Format:      string(sess.Format),
				Uptime:      sess.Duration(),
				Bytes:       sess.Bytes(),
			}
		}
		m.lastErr = ""
		if err := m.streamSource.LastError(); err != nil {
			m.lastErr = err.Error()
		}
	}
	if m.rateSource != nil {
		m.rates = m.rateSource.Stats()
	}
	m.lastUpdate = time.Now()
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the monitor started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Connected reports whether the last refresh saw the stream up.
func (m Model) Connected() bool {
	return m.snap.Connected
}

// State returns the supervisor state seen on the last refresh.
func (m Model) State() supervisor.State {
	return m.state
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// formatBytes formats bytes with KB/MB/GB suffixes.
func formatBytes(n int64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// formatByteRate formats bytes/sec, with the bitrate listeners usually quote.
func formatByteRate(bps float64) string {
	if math.IsNaN(bps) || bps <= 0 {
		return "0 B/s"
	}
	return fmt.Sprintf("%s/s (%.0f kbit/s)", formatBytes(int64(bps)), bps*8/1000)
}

// formatDBFS formats a peak level; NaN means no signal seen this session.
func formatDBFS(v float64) string {
	if math.IsNaN(v) {
		return "-- dBFS"
	}
	if math.IsInf(v, -1) {
		return "-inf dBFS"
	}
	return fmt.Sprintf("%.1f dBFS", v)
}
