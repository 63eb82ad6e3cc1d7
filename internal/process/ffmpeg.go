package process

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// AstatsFilter emits per-channel statistics every second as frame metadata,
// then prints that metadata to stderr.
const AstatsFilter = "astats=metadata=1:reset=1,ametadata=mode=print"

// FFmpegConfig holds configuration for the analysis process.
type FFmpegConfig struct {
	// BinaryPath is the path to the FFmpeg binary.
	BinaryPath string

	// LogLevel is the FFmpeg log level. ametadata prints at "info", so
	// anything quieter suppresses the peak lines.
	LogLevel string

	// WaitDelay bounds how long Wait blocks on stdio after the process is
	// killed by context cancellation.
	WaitDelay time.Duration
}

// DefaultFFmpegConfig returns an FFmpegConfig with sensible defaults.
func DefaultFFmpegConfig() *FFmpegConfig {
	return &FFmpegConfig{
		BinaryPath: "ffmpeg",
		LogLevel:   "info",
		WaitDelay:  2 * time.Second,
	}
}

// FFmpegRunner implements Decoder using ffmpeg's astats filter.
type FFmpegRunner struct {
	config *FFmpegConfig
}

// NewFFmpegRunner creates a new FFmpeg runner with the given configuration.
func NewFFmpegRunner(cfg *FFmpegConfig) *FFmpegRunner {
	if cfg == nil {
		cfg = DefaultFFmpegConfig()
	}
	return &FFmpegRunner{config: cfg}
}

// Name returns "ffmpeg".
func (r *FFmpegRunner) Name() string {
	return "ffmpeg"
}

// BuildCommand creates the exec.Cmd for one session. The process is killed
// when ctx is cancelled.
func (r *FFmpegRunner) BuildCommand(ctx context.Context, hint FormatHint) (*exec.Cmd, error) {
	if r.config.BinaryPath == "" {
		return nil, fmt.Errorf("ffmpeg binary path is empty")
	}
	cmd := exec.CommandContext(ctx, r.config.BinaryPath, r.buildArgs(hint)...)
	cmd.WaitDelay = r.config.WaitDelay
	return cmd, nil
}

// buildArgs constructs the FFmpeg command-line arguments:
//
//	-hide_banner -loglevel info [-f fmt] -i pipe:0 -af <astats> -f null -
func (r *FFmpegRunner) buildArgs(hint FormatHint) []string {
	logLevel := r.config.LogLevel
	if logLevel == "" {
		logLevel = "info"
	}

	args := []string{
		"-hide_banner",
		"-loglevel", logLevel,
	}

	// Input format hint (must come before -i)
	args = append(args, hint.Args()...)

	args = append(args, "-i", "pipe:0")
	args = append(args, "-af", AstatsFilter)

	// Decoded audio goes nowhere
	args = append(args, "-f", "null", "-")

	return args
}

// Config returns the FFmpeg configuration.
func (r *FFmpegRunner) Config() *FFmpegConfig {
	return r.config
}

// CommandString returns the command that would be executed (for debugging).
func (r *FFmpegRunner) CommandString(hint FormatHint) string {
	return r.config.BinaryPath + " " + strings.Join(r.buildArgs(hint), " ")
}

// Ensure FFmpegRunner implements Decoder
var _ Decoder = (*FFmpegRunner)(nil)
