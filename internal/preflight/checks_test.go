package preflight

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const filterTable = `Filters:
  T.. = Timeline support
  ------
 ... aformat           A->A       Convert the input audio to one of the specified formats.
 ... ametadata         A->A       Manipulate audio frame metadata.
 T.. astats            A->A       Show time domain statistics about audio frames.
 ... anullsink         A->|       Do absolutely nothing with the input audio.
`

// fakeFFmpeg writes an executable script that answers -version and -filters.
func fakeFFmpeg(t *testing.T, filters string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "filters.txt"), []byte(filters), 0o644); err != nil {
		t.Fatal(err)
	}
	script := `#!/bin/sh
for a in "$@"; do
  case "$a" in
    -version) echo "ffmpeg version 6.1.1 Copyright (c) 2000-2023 the FFmpeg developers"; exit 0 ;;
    -filters) cat "` + filepath.Join(dir, "filters.txt") + `"; exit 0 ;;
  esac
done
exit 1
`
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func findCheck(t *testing.T, r *Result, name string) Check {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no %s check in %+v", name, r.Checks)
	return Check{}
}

func TestCheck_String(t *testing.T) {
	tests := []struct {
		name  string
		check Check
		want  []string
	}{
		{
			name:  "passed_with_required",
			check: Check{Name: "fd", Required: 64, Actual: 1024, Passed: true},
			want:  []string{"✓", "1024", "64"},
		},
		{
			name:  "failed",
			check: Check{Name: "fd", Required: 64, Actual: 16, Passed: false},
			want:  []string{"✗"},
		},
		{
			name:  "warning",
			check: Check{Name: "fd", Passed: true, Warning: true, Message: "unable to check"},
			want:  []string{"⚠", "unable to check"},
		},
		{
			name:  "message_only",
			check: Check{Name: "ffmpeg", Passed: true, Message: "all good"},
			want:  []string{"✓", "all good"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.check.String()
			for _, w := range tt.want {
				if !strings.Contains(s, w) {
					t.Errorf("String() = %q, want it to contain %q", s, w)
				}
			}
		})
	}
}

func TestRunAll_FakeFFmpeg(t *testing.T) {
	result := RunAll(fakeFFmpeg(t, filterTable))

	ff := findCheck(t, result, "ffmpeg")
	if !ff.Passed {
		t.Fatalf("ffmpeg check failed: %s", ff.Message)
	}
	if !strings.Contains(ff.Message, "6.1.1") {
		t.Errorf("version missing from %q", ff.Message)
	}

	filters := findCheck(t, result, "ffmpeg_filters")
	if !filters.Passed {
		t.Errorf("filters check failed: %s", filters.Message)
	}

	fd := findCheck(t, result, "file_descriptors")
	if fd.Passed != result.Passed {
		t.Errorf("overall Passed = %v, but only the fd check could fail (fd passed=%v)", result.Passed, fd.Passed)
	}
}

func TestRunAll_MissingFilters(t *testing.T) {
	table := " ... aformat           A->A       Convert the input audio.\n"
	result := RunAll(fakeFFmpeg(t, table))

	c := findCheck(t, result, "ffmpeg_filters")
	if c.Passed {
		t.Fatal("filters check should fail")
	}
	if !strings.Contains(c.Message, "astats") || !strings.Contains(c.Message, "ametadata") {
		t.Errorf("Message = %q, want both filters named", c.Message)
	}
	if result.Passed {
		t.Error("result should fail when filters are missing")
	}
}

func TestRunAll_InvalidFFmpegPath(t *testing.T) {
	result := RunAll("/nonexistent/ffmpeg/path")

	c := findCheck(t, result, "ffmpeg")
	if c.Passed {
		t.Error("ffmpeg check should fail with invalid path")
	}
	if !strings.Contains(c.Message, "not found") {
		t.Errorf("Message should mention 'not found': %s", c.Message)
	}
	if result.Passed {
		t.Error("result should fail when ffmpeg is not found")
	}
	for _, ch := range result.Checks {
		if ch.Name == "ffmpeg_filters" {
			t.Error("filters check should be skipped without a binary")
		}
	}
}

func TestCheckFFmpeg_EdgeCases(t *testing.T) {
	for name, path := range map[string]string{
		"empty_path":        "",
		"directory_as_path": t.TempDir(),
	} {
		t.Run(name, func(t *testing.T) {
			if checkFFmpeg(path).Passed {
				t.Errorf("checkFFmpeg(%q) should fail", path)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ffmpeg version 6.1 Copyright (c) 2000-2023\nbuilt with gcc", "6.1"},
		{"ffmpeg version n7.0-12-gabc", "n7.0-12-gabc"},
		{"something else entirely", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := parseVersion([]byte(tt.in)); got != tt.want {
			t.Errorf("parseVersion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseFilters(t *testing.T) {
	got := parseFilters([]byte(filterTable))
	for _, name := range []string{"aformat", "ametadata", "astats", "anullsink"} {
		if !got[name] {
			t.Errorf("filter %q not parsed", name)
		}
	}
	if got["Timeline"] || got["T.."] {
		t.Error("legend rows should not be parsed as filters")
	}
}

func TestCheckFileDescriptors(t *testing.T) {
	c := checkFileDescriptors()
	if c.Name != "file_descriptors" {
		t.Errorf("Name = %q", c.Name)
	}
	if c.Warning {
		return
	}
	if c.Actual <= 0 {
		t.Errorf("Actual should be positive: %d", c.Actual)
	}
	if c.Required != requiredFDs {
		t.Errorf("Required = %d, want %d", c.Required, requiredFDs)
	}
	if c.Passed != (c.Actual >= c.Required) {
		t.Errorf("Passed = %v for actual=%d required=%d", c.Passed, c.Actual, c.Required)
	}
}

func TestSuggestFix(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"file_descriptors", "ulimit -n"},
		{"ffmpeg", "install ffmpeg"},
		{"ffmpeg_filters", "libavfilter"},
		{"unknown", "documentation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if fix := suggestFix(tt.name); !strings.Contains(fix, tt.expected) {
				t.Errorf("suggestFix(%q) = %q, should contain %q", tt.name, fix, tt.expected)
			}
		})
	}
}

func TestPrintResults(t *testing.T) {
	result := &Result{
		Checks: []Check{
			{Name: "ffmpeg", Passed: true, Message: "ok"},
			{Name: "file_descriptors", Passed: false, Required: 64, Actual: 16},
		},
		Passed: false,
	}

	var buf bytes.Buffer
	PrintResults(&buf, result)
	out := buf.String()

	if !strings.HasPrefix(out, "Preflight checks:") {
		t.Errorf("missing header: %q", out)
	}
	if strings.Count(out, "Fix:") != 1 {
		t.Errorf("want exactly one fix line, got:\n%s", out)
	}
	if !strings.Contains(out, "ulimit -n") {
		t.Errorf("fd fix missing:\n%s", out)
	}
}
