package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent decoder lines kept for error reports.
	MaxBufferedLines = 50
)

// DiagnosticHandler receives the decoder's stderr lines that are not audio
// statistics. It logs them at a level derived from their content and keeps
// the most recent ones so a failed session can report why the decoder died.
type DiagnosticHandler struct {
	logger *slog.Logger

	mu     sync.Mutex
	buffer []string
	next   int
	filled bool
}

// NewDiagnosticHandler creates a handler that logs through logger.
func NewDiagnosticHandler(logger *slog.Logger) *DiagnosticHandler {
	if logger == nil {
		logger = Discard()
	}
	return &DiagnosticHandler{
		logger: logger,
		buffer: make([]string, MaxBufferedLines),
	}
}

// HandleLine records and logs a single line.
func (h *DiagnosticHandler) HandleLine(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.next] = line
	h.next = (h.next + 1) % MaxBufferedLines
	if h.next == 0 {
		h.filled = true
	}
	h.mu.Unlock()

	h.logger.Log(context.Background(), ClassifyLine(line), "decoder_stderr", "line", line)
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *DiagnosticHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := h.next
	if h.filled {
		count = MaxBufferedLines
	}
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.next - n + i + MaxBufferedLines) % MaxBufferedLines
		lines = append(lines, h.buffer[idx])
	}
	return lines
}

// ClassifyLine picks a log level for a decoder line based on its content.
func ClassifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	switch {
	case strings.Contains(lower, "[error]"),
		strings.Contains(lower, "invalid data found"),
		strings.Contains(lower, "error while decoding"),
		strings.Contains(lower, "could not find codec"),
		strings.Contains(lower, "conversion failed"):
		return slog.LevelWarn
	case strings.Contains(lower, "[warning]"),
		strings.Contains(lower, "header missing"),
		strings.Contains(lower, "estimating duration"):
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
