// Package listeners polls the Icecast status document for per-mount
// listener counts.
package listeners

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Counts holds the listener numbers reported for one mount.
type Counts struct {
	Current int `json:"current"`
	Peak    int `json:"peak"`
}

// Snapshot is the full result of one successful poll. It is replaced
// wholesale on every poll, never merged.
type Snapshot struct {
	Mounts          map[string]Counts `json:"mounts"`
	CombinedCurrent int               `json:"combined_current"`
	CombinedPeak    int               `json:"combined_peak"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// NewSnapshot builds a snapshot and derives the combined totals.
func NewSnapshot(mounts map[string]Counts, now time.Time) Snapshot {
	s := Snapshot{
		Mounts:    make(map[string]Counts, len(mounts)),
		UpdatedAt: now,
	}
	for name, c := range mounts {
		s.Mounts[name] = c
		s.CombinedCurrent += c.Current
		s.CombinedPeak += c.Peak
	}
	return s
}

// statusDocument is the subset of status-json.xsl we read.
// "source" is an object when one mount is live and an array otherwise.
type statusDocument struct {
	Icestats struct {
		Source json.RawMessage `json:"source"`
	} `json:"icestats"`
}

type source struct {
	ListenURL    string `json:"listenurl"`
	ServerName   string `json:"server_name"`
	Listeners    count  `json:"listeners"`
	ListenerPeak count  `json:"listener_peak"`
}

// count accepts both JSON numbers and numeric strings; some Icecast builds
// emit the latter.
type count int

func (c *count) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*c = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*c = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("listener count %q: %w", s, err)
	}
	*c = count(f)
	return nil
}

// ErrNoIcestats is returned when the document has no "icestats" object.
var ErrNoIcestats = errors.New("status document has no icestats object")

// ParseStatus decodes an Icecast status document into per-mount counts keyed
// by the sanitized mount name. Mounts that sanitize to the same name are summed.
func ParseStatus(r io.Reader) (map[string]Counts, error) {
	var raw map[string]json.RawMessage
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	if _, ok := raw["icestats"]; !ok {
		return nil, ErrNoIcestats
	}

	var doc statusDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode icestats: %w", err)
	}

	sources, err := decodeSources(doc.Icestats.Source)
	if err != nil {
		return nil, err
	}

	mounts := make(map[string]Counts, len(sources))
	for _, src := range sources {
		id := src.ListenURL
		if id == "" {
			id = src.ServerName
		}
		name := SanitizeMount(id)
		c := mounts[name]
		c.Current += int(src.Listeners)
		c.Peak += int(src.ListenerPeak)
		mounts[name] = c
	}
	return mounts, nil
}

func decodeSources(raw json.RawMessage) ([]source, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var list []source
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("decode sources: %w", err)
		}
		return list, nil
	case '{':
		var one source
		if err := json.Unmarshal(raw, &one); err != nil {
			return nil, fmt.Errorf("decode source: %w", err)
		}
		return []source{one}, nil
	default:
		return nil, fmt.Errorf("unexpected source value %.20q", raw)
	}
}

// SanitizeMount turns a listen URL (or any raw identifier) into a label-safe
// token: the URL path, lowercased, with every character outside [a-z0-9_]
// replaced by an underscore. Inputs that are not absolute URLs are sanitized
// as-is. An empty result becomes "unknown".
func SanitizeMount(raw string) string {
	s := strings.TrimSpace(raw)
	if u, err := url.Parse(s); err == nil && u.Scheme != "" && u.Host != "" {
		s = u.Path
	}
	s = strings.TrimPrefix(strings.ToLower(s), "/")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
