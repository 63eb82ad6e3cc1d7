package tui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-icecast-monitor/internal/listeners"
)

// =============================================================================
// Main View Rendering
// =============================================================================

func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderStream(),
		m.renderLevels(),
		m.renderThroughput(),
	}

	if m.snap.ListenersOn {
		sections = append(sections, m.renderListeners())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" go-icecast-monitor │ %s │ Reconnects: %d │ Uptime: %s ",
		GetStateLabel(m.state),
		m.snap.Reconnects,
		formatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Stream
// =============================================================================

func (m Model) renderStream() string {
	rows := []string{
		RenderKeyValue("State", m.state.String()),
	}

	if s := m.session; s != nil {
		format := s.Format
		if format == "" {
			format = "probe"
		}
		rows = append(rows,
			RenderKeyValue("Session", shortID(s.ID)),
			RenderKeyValue("Connected For", formatDuration(s.Uptime)),
			RenderKeyValue("Content-Type", orDash(s.ContentType)),
			RenderKeyValue("Demuxer", format),
			RenderKeyValue("Received", formatBytes(s.Bytes)),
		)
	} else {
		rows = append(rows, dimStyle.Render("No active session"))
	}

	if m.lastErr != "" {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Last Error:"),
			valueWarnStyle.Render(truncate(m.lastErr, m.width-26)),
		))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Stream")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Peak Levels
// =============================================================================

func (m Model) renderLevels() string {
	barWidth := m.width - 20
	if barWidth > 60 {
		barWidth = 60
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left, mutedStyle.Render(" L "), RenderLevelBar(m.snap.PeakLeft, barWidth)),
		lipgloss.JoinHorizontal(lipgloss.Left, mutedStyle.Render(" R "), RenderLevelBar(m.snap.PeakRight, barWidth)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Peak Levels")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Throughput
// =============================================================================

func (m Model) renderThroughput() string {
	rateStyle := valueStyle
	if m.snap.Connected && m.snap.DownloadRate == 0 {
		rateStyle = valueWarnStyle
	}

	rows := []string{
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Current:"),
			rateStyle.Render(formatByteRate(m.snap.DownloadRate)),
		),
		RenderKeyValue("P50 (window)", formatByteRate(m.rates.P50)),
		RenderKeyValue("Max (window)", formatByteRate(m.rates.Max)),
		RenderKeyValue("Samples", fmt.Sprintf("%d", m.rates.Samples)),
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Download Rate")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Listeners
// =============================================================================

func (m Model) renderListeners() string {
	snap := m.snap.Listeners
	if snap == nil {
		return boxStyle.Width(m.width - 2).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				sectionHeaderStyle.Render("Listeners"),
				dimStyle.Render("Waiting for first status poll..."),
			),
		)
	}

	rows := []string{
		RenderKeyValue("Combined", fmt.Sprintf("%d (peak %d)", snap.CombinedCurrent, snap.CombinedPeak)),
		RenderKeyValue("Updated", fmt.Sprintf("%s ago", time.Since(snap.UpdatedAt).Round(time.Second))),
	}
	if m.statusURL != "" {
		rows = append(rows, RenderKeyValue("Source", truncate(m.statusURL, m.width-26)))
	}

	if m.showMounts {
		rows = append(rows, m.renderMountTable(snap)...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{sectionHeaderStyle.Render("Listeners")}, rows...)...,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

func (m Model) renderMountTable(snap *listeners.Snapshot) []string {
	if len(snap.Mounts) == 0 {
		return []string{dimStyle.Render("No mounts reported")}
	}

	names := make([]string, 0, len(snap.Mounts))
	for name := range snap.Mounts {
		names = append(names, name)
	}
	slices.Sort(names)

	maxRows := m.height - 24
	if maxRows < 3 {
		maxRows = 3
	}

	rows := []string{
		tableHeaderStyle.Render(fmt.Sprintf("%-30s %10s %10s", "Mount", "Current", "Peak")),
	}
	for i, name := range names {
		if i >= maxRows {
			rows = append(rows, dimStyle.Render(fmt.Sprintf("... and %d more mounts", len(names)-maxRows)))
			break
		}
		rowStyle := tableRowEvenStyle
		if i%2 == 1 {
			rowStyle = tableRowOddStyle
		}
		c := snap.Mounts[name]
		rows = append(rows, rowStyle.Render(
			fmt.Sprintf("%-30s %10d %10d", truncate(name, 30), c.Current, c.Peak),
		))
	}
	return rows
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{"q: quit", "r: refresh"}
	if m.snap.ListenersOn {
		shortcuts = append(shortcuts, "l: toggle mounts")
	}

	url := truncate(m.streamURL, m.width-60)

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	right := dimStyle.Render(fmt.Sprintf("Stream: %s │ Metrics: http://%s/metrics", url, m.metricsAddr))

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			right,
		),
	)
}

// =============================================================================
// Helpers
// =============================================================================

// truncate shortens s to max runes with an ellipsis. Short limits are ignored.
func truncate(s string, max int) string {
	r := []rune(s)
	if max <= 10 || len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
