// Package tui provides a live terminal dashboard for a monitored Icecast stream.
//
// The TUI uses Bubble Tea for the application framework and Lipgloss for styling.
// It shows connection state, stereo peak meters, download rate and listener
// counts, all read from the same state the metrics endpoint exposes.
package tui

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-icecast-monitor/internal/supervisor"
)

// =============================================================================
// Color Palette
// =============================================================================

var (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan

	colorSuccess = lipgloss.Color("#10B981") // Green
	colorWarning = lipgloss.Color("#F59E0B") // Amber
	colorError   = lipgloss.Color("#EF4444") // Red
	colorInfo    = lipgloss.Color("#3B82F6") // Blue

	colorText      = lipgloss.Color("#E5E7EB") // Light gray
	colorTextMuted = lipgloss.Color("#9CA3AF") // Medium gray
	colorTextDim   = lipgloss.Color("#6B7280") // Dark gray
	colorBorder    = lipgloss.Color("#374151") // Border gray
)

// =============================================================================
// Base Styles
// =============================================================================

var (
	mutedStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted)

	dimStyle = lipgloss.NewStyle().
			Foreground(colorTextDim)

	statusOK = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	statusWarning = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	statusError = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	statusInfo = lipgloss.NewStyle().
			Foreground(colorInfo).
			Bold(true)
)

// =============================================================================
// Layout Styles
// =============================================================================

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Background(colorPrimary).
			Bold(true).
			Padding(0, 1).
			MarginBottom(1)

	sectionHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(colorBorder)

	footerStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			MarginTop(1)
)

// =============================================================================
// Value Styles
// =============================================================================

var (
	valueStyle = lipgloss.NewStyle().
			Foreground(colorText).
			Bold(true)

	valueGoodStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	valueBadStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	valueWarnStyle = lipgloss.NewStyle().
			Foreground(colorWarning).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorTextMuted).
			Width(20)

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(colorSecondary).
				Bold(true)

	tableRowEvenStyle = lipgloss.NewStyle().
				Foreground(colorText)

	tableRowOddStyle = lipgloss.NewStyle().
				Foreground(colorTextMuted)

	meterEmptyStyle = lipgloss.NewStyle().
			Foreground(colorBorder)
)

// =============================================================================
// Stream State Indicator
// =============================================================================

// GetStateStyle returns the style for a supervisor state.
func GetStateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateStreaming:
		return statusOK
	case supervisor.StateConnecting:
		return statusInfo
	case supervisor.StateBackoff:
		return statusWarning
	default:
		return statusError
	}
}

// GetStateLabel returns a styled indicator for a supervisor state.
func GetStateLabel(s supervisor.State) string {
	label := "DOWN"
	switch s {
	case supervisor.StateStreaming:
		label = "LIVE"
	case supervisor.StateConnecting:
		label = "CONNECTING"
	case supervisor.StateBackoff:
		label = "RECONNECTING"
	case supervisor.StateIdle:
		label = "IDLE"
	}
	return GetStateStyle(s).Render("● " + label)
}

// =============================================================================
// Level Meter
// =============================================================================

// Meter range. Levels at or below meterFloor draw an empty bar.
const (
	meterFloor   = -60.0
	levelHot     = -6.0
	levelClipped = -0.5
)

// GetLevelStyle returns a style based on a peak level in dBFS.
func GetLevelStyle(dbfs float64) lipgloss.Style {
	switch {
	case math.IsNaN(dbfs):
		return dimStyle
	case dbfs >= levelClipped:
		return valueBadStyle
	case dbfs >= levelHot:
		return valueWarnStyle
	default:
		return valueGoodStyle
	}
}

// levelFraction maps dBFS linearly onto 0..1 across the meter range.
func levelFraction(dbfs float64) float64 {
	if math.IsNaN(dbfs) || dbfs <= meterFloor {
		return 0
	}
	if dbfs >= 0 {
		return 1
	}
	return (dbfs - meterFloor) / -meterFloor
}

// RenderLevelBar renders a horizontal peak meter followed by the level.
func RenderLevelBar(dbfs float64, width int) string {
	if width < 10 {
		width = 10
	}

	filled := int(levelFraction(dbfs) * float64(width))
	if filled > width {
		filled = width
	}

	style := GetLevelStyle(dbfs)
	bar := style.Render(repeatChar('█', filled)) +
		meterEmptyStyle.Render(repeatChar('░', width-filled))

	return bar + " " + style.Render(fmt.Sprintf("%10s", formatDBFS(dbfs)))
}

// =============================================================================
// Helper Functions
// =============================================================================

// RenderKeyValue renders a label-value pair.
func RenderKeyValue(label string, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		labelStyle.Render(label+":"),
		valueStyle.Render(value),
	)
}

func repeatChar(char rune, count int) string {
	if count <= 0 {
		return ""
	}
	result := make([]rune, count)
	for i := range result {
		result[i] = char
	}
	return string(result)
}
