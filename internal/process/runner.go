// Package process builds the external decoder command used for audio
// analysis.
package process

import (
	"context"
	"os/exec"
)

// Decoder creates the analysis subprocess for one session.
// This interface allows the supervisor to be decoder-agnostic.
type Decoder interface {
	// BuildCommand returns a ready-to-start command that reads raw stream
	// bytes on stdin and writes statistics to stderr. The command should
	// NOT be started yet, and its stdio must not be wired.
	BuildCommand(ctx context.Context, hint FormatHint) (*exec.Cmd, error)

	// Name returns a human-readable name for this decoder.
	Name() string
}
