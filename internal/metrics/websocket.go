package metrics

import (
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader accepts same-origin and local browser connections.
var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin allows requests without an Origin header, origins whose host
// matches the request host, and loopback origins. Hosts are compared exactly.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	switch host := u.Hostname(); host {
	case "localhost":
		return true
	default:
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
}

// LevelsMessage is one frame pushed on /ws/levels. Unknown peaks are null.
type LevelsMessage struct {
	Type         string   `json:"type"`
	Connected    bool     `json:"connected"`
	PeakLeft     *float64 `json:"peak_left_dbfs"`
	PeakRight    *float64 `json:"peak_right_dbfs"`
	DownloadRate float64  `json:"download_rate_bytes_per_second"`
	Reconnects   int64    `json:"reconnect_attempts"`
	Timestamp    int64    `json:"ts"`
}

// NewLevelsMessage builds a frame from a registry snapshot.
func NewLevelsMessage(snap Snapshot, now time.Time) LevelsMessage {
	return LevelsMessage{
		Type:         "levels",
		Connected:    snap.Connected,
		PeakLeft:     finite(snap.PeakLeft),
		PeakRight:    finite(snap.PeakRight),
		DownloadRate: snap.DownloadRate,
		Reconnects:   snap.Reconnects,
		Timestamp:    now.UnixMilli(),
	}
}

// finite returns nil for NaN and ±Inf, which encoding/json cannot represent.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (s *Server) handleLevels(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	s.logger.Debug("ws_client_connected", "remote", r.RemoteAddr)

	// Reader goroutine only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.levelsInterval)
	defer ticker.Stop()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		return conn.WriteJSON(NewLevelsMessage(s.registry.Snapshot(), time.Now()))
	}

	if err := send(); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := send(); err != nil {
				return
			}
		}
	}
}
