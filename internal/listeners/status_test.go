package listeners

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSanitizeMount(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want string
	}{
		{"listen url", "http://host:8000/Stream.MP3", "stream_mp3"},
		{"https url", "https://radio.example/live/hq", "live_hq"},
		{"bare path", "/live", "live"},
		{"server name", "My Radio!", "my_radio_"},
		{"underscore kept", "/a_b", "a_b"},
		{"url without path", "http://host:8000", "unknown"},
		{"empty", "", "unknown"},
		{"slash only", "/", "unknown"},
		{"unicode", "/café", "caf_"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeMount(tc.raw); got != tc.want {
				t.Errorf("SanitizeMount(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseStatus_Array(t *testing.T) {
	doc := `{"icestats":{"admin":"x","source":[
		{"listenurl":"http://h:8000/a","listeners":5,"listener_peak":10},
		{"listenurl":"http://h:8000/b","listeners":"3","listener_peak":"7"}
	]}}`

	mounts, err := ParseStatus(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if len(mounts) != 2 {
		t.Fatalf("got %d mounts, want 2: %v", len(mounts), mounts)
	}
	if got := mounts["a"]; got != (Counts{Current: 5, Peak: 10}) {
		t.Errorf("a = %+v", got)
	}
	if got := mounts["b"]; got != (Counts{Current: 3, Peak: 7}) {
		t.Errorf("b = %+v (string counts should parse)", got)
	}
}

func TestParseStatus_SingleObject(t *testing.T) {
	doc := `{"icestats":{"source":{"listenurl":"http://h/live","listeners":2,"listener_peak":4}}}`

	mounts, err := ParseStatus(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if got := mounts["live"]; got != (Counts{Current: 2, Peak: 4}) {
		t.Errorf("live = %+v", got)
	}
}

func TestParseStatus_ServerNameFallback(t *testing.T) {
	doc := `{"icestats":{"source":{"server_name":"Night Show","listeners":1}}}`

	mounts, err := ParseStatus(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if got := mounts["night_show"]; got != (Counts{Current: 1}) {
		t.Errorf("night_show = %+v, mounts = %v", got, mounts)
	}
}

func TestParseStatus_NoSources(t *testing.T) {
	for _, doc := range []string{
		`{"icestats":{}}`,
		`{"icestats":{"source":null}}`,
	} {
		mounts, err := ParseStatus(strings.NewReader(doc))
		if err != nil {
			t.Errorf("ParseStatus(%s): %v", doc, err)
			continue
		}
		if len(mounts) != 0 {
			t.Errorf("ParseStatus(%s) = %v, want empty", doc, mounts)
		}
	}
}

func TestParseStatus_DuplicateMountsSummed(t *testing.T) {
	doc := `{"icestats":{"source":[
		{"listenurl":"http://h/Live","listeners":1,"listener_peak":2},
		{"listenurl":"http://h/live","listeners":3,"listener_peak":4}
	]}}`

	mounts, err := ParseStatus(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if got := mounts["live"]; got != (Counts{Current: 4, Peak: 6}) {
		t.Errorf("live = %+v, want summed 4/6", got)
	}
}

func TestParseStatus_Errors(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"not json", `<html>`},
		{"no icestats", `{"foo":1}`},
		{"bad source", `{"icestats":{"source":42}}`},
		{"bad count", `{"icestats":{"source":{"listenurl":"/a","listeners":"many"}}}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseStatus(strings.NewReader(tc.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ParseStatus(strings.NewReader(`{"foo":1}`))
	if !errors.Is(err, ErrNoIcestats) {
		t.Errorf("err = %v, want ErrNoIcestats", err)
	}
}

func TestNewSnapshot_Combined(t *testing.T) {
	now := time.Unix(1700000000, 0)
	snap := NewSnapshot(map[string]Counts{
		"a": {Current: 5, Peak: 10},
		"b": {Current: 3, Peak: 3},
	}, now)

	if snap.CombinedCurrent != 8 {
		t.Errorf("CombinedCurrent = %d, want 8", snap.CombinedCurrent)
	}
	if snap.CombinedPeak != 13 {
		t.Errorf("CombinedPeak = %d, want 13", snap.CombinedPeak)
	}
	if !snap.UpdatedAt.Equal(now) {
		t.Errorf("UpdatedAt = %v", snap.UpdatedAt)
	}
}
