// Package preflight provides startup validation checks.
package preflight

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
)

// requiredFDs covers the stream socket, three decoder pipes, the metrics
// listener with a handful of scrapers and websocket clients, and the poller.
const requiredFDs = 64

// requiredFilters are the decoder filters the peak pipeline depends on.
var requiredFilters = []string{"astats", "ametadata"}

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// RunAll executes all preflight checks against the given decoder binary.
func RunAll(ffmpegPath string) *Result {
	result := &Result{
		Checks: make([]Check, 0, 3),
		Passed: true,
	}

	result.add(checkFileDescriptors())

	ffmpegCheck := checkFFmpeg(ffmpegPath)
	result.add(ffmpegCheck)

	// Filter listing is meaningless without a working binary.
	if ffmpegCheck.Passed {
		result.add(checkFilters(ffmpegPath))
	}

	return result
}

// checkFileDescriptors verifies the open-file limit is not absurdly low.
func checkFileDescriptors() Check {
	var limit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to check: %v", err),
		}
	}

	actual := int(limit.Cur)
	if limit.Cur > 1<<30 {
		actual = 1 << 30
	}

	return Check{
		Name:     "file_descriptors",
		Required: requiredFDs,
		Actual:   actual,
		Passed:   actual >= requiredFDs,
		Message:  fmt.Sprintf("ulimit -n %d (need %d)", actual, requiredFDs),
	}
}

// checkFFmpeg verifies the decoder is available and working.
func checkFFmpeg(path string) Check {
	if path == "" {
		return Check{
			Name:    "ffmpeg",
			Passed:  false,
			Message: "not found: empty path",
		}
	}

	output, err := exec.Command(path, "-version").Output()
	if err != nil {
		return Check{
			Name:    "ffmpeg",
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	return Check{
		Name:    "ffmpeg",
		Passed:  true,
		Message: fmt.Sprintf("found at %s (version %s)", path, parseVersion(output)),
	}
}

// parseVersion extracts the version from "ffmpeg version 6.1 Copyright ...".
func parseVersion(output []byte) string {
	line, _, _ := bytes.Cut(output, []byte("\n"))
	parts := strings.Fields(string(line))
	if len(parts) >= 3 && parts[1] == "version" {
		return parts[2]
	}
	return "unknown"
}

// checkFilters verifies the decoder was built with the level filters.
func checkFilters(path string) Check {
	output, err := exec.Command(path, "-hide_banner", "-filters").Output()
	if err != nil {
		return Check{
			Name:    "ffmpeg_filters",
			Passed:  false,
			Message: fmt.Sprintf("%s -filters failed: %v", path, err),
		}
	}

	have := parseFilters(output)
	var missing []string
	for _, f := range requiredFilters {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Check{
			Name:    "ffmpeg_filters",
			Passed:  false,
			Message: "missing " + strings.Join(missing, ", "),
		}
	}

	return Check{
		Name:    "ffmpeg_filters",
		Passed:  true,
		Message: strings.Join(requiredFilters, ", "),
	}
}

// parseFilters reads the "-filters" table. Rows look like
//
//	... astats            A->A       Show time domain statistics about audio frames.
func parseFilters(output []byte) map[string]bool {
	names := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || !strings.Contains(fields[2], "->") {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 1024 (or edit /etc/security/limits.conf)"
	case "ffmpeg":
		return "install ffmpeg (apt install ffmpeg / brew install ffmpeg) or set -ffmpeg"
	case "ffmpeg_filters":
		return "use a full ffmpeg build with libavfilter enabled"
	default:
		return "see documentation"
	}
}
