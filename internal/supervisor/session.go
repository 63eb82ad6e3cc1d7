package supervisor

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randomizedcoder/go-icecast-monitor/internal/process"
)

// Session is one connected stream, from response headers to teardown.
type Session struct {
	ID          string
	URL         string
	ContentType string
	Format      process.FormatHint
	StartedAt   time.Time

	bytes atomic.Int64
}

// NewSession creates a session with a fresh ID.
func NewSession(url, contentType string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		URL:         url,
		ContentType: contentType,
		Format:      process.FormatFromContentType(contentType),
		StartedAt:   time.Now(),
	}
}

// Bytes returns the bytes received in this session.
func (s *Session) Bytes() int64 {
	return s.bytes.Load()
}

// Duration returns the time since the session started.
func (s *Session) Duration() time.Duration {
	return time.Since(s.StartedAt)
}

func (s *Session) addBytes(n int) {
	s.bytes.Add(int64(n))
}
