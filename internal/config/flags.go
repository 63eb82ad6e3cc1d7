package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

const programName = "go-icecast-monitor"

// ParseFlags builds a Config from defaults, an optional YAML file, the
// environment and the given command-line arguments, in that order of
// precedence. A positional argument overrides the stream URL.
//
// flag.ErrHelp is returned unchanged when -h or -help is given.
func ParseFlags(args []string, lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	cfg := DefaultConfig()

	path := configPathFromArgs(args)
	if path == "" {
		if v, ok := lookup(EnvConfigFile); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, err
		}
		cfg.ConfigFile = path
	}

	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}

	fs := newFlagSet(cfg, os.Stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if rest := fs.Args(); len(rest) >= 1 {
		cfg.StreamURL = rest[0]
	}

	return cfg, nil
}

// PrintUsage writes the usage message to w.
func PrintUsage(w io.Writer) {
	fs := newFlagSet(DefaultConfig(), w)
	fs.Usage()
}

// newFlagSet registers every flag against cfg, using the current cfg values
// as defaults so that flags only override what was explicitly passed.
func newFlagSet(cfg *Config, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(out)

	fs.Usage = func() {
		fmt.Fprintf(out, `%s - Icecast stream health and audio level exporter

Usage:
  %s [flags] <icecast-url>

Stream:
`, programName, programName)
		printFlagCategory(fs, out, []string{"url", "user-agent", "stall-timeout"})

		fmt.Fprintf(out, "\nReconnect:\n")
		printFlagCategory(fs, out, []string{"reconnect-delay", "backoff-max", "backoff-multiply", "backoff-jitter"})

		fmt.Fprintf(out, "\nDecoder:\n")
		printFlagCategory(fs, out, []string{"ffmpeg", "ffmpeg-loglevel"})

		fmt.Fprintf(out, "\nListeners:\n")
		printFlagCategory(fs, out, []string{"status-url", "listener-poll"})

		fmt.Fprintf(out, "\nObservability:\n")
		printFlagCategory(fs, out, []string{"port", "metrics-host", "v", "log-format", "log-level", "tui"})

		fmt.Fprintf(out, "\nDiagnostics:\n")
		printFlagCategory(fs, out, []string{"config", "print-cmd", "print-metrics", "skip-preflight"})

		fmt.Fprintf(out, `
Environment:
  %s, %s (default 9101), %s (default 3000),
  %s (default 10000), %s, %s (default 15000),
  %s, %s, %s, %s
  A .env file in the working directory is loaded first if present.

Examples:
  %s http://radio.example.com:8000/live.mp3
  %s -status-url http://radio.example.com:8000/status-json.xsl http://radio.example.com:8000/live.ogg

`,
			EnvStreamURL, EnvMetricsPort, EnvReconnectDelay,
			EnvStallTimeout, EnvStatusURL, EnvListenerPoll,
			EnvFFmpegPath, EnvLogFormat, EnvLogLevel, EnvConfigFile,
			programName, programName)
	}

	// Stream
	fs.StringVar(&cfg.StreamURL, "url", cfg.StreamURL, "Icecast stream URL (or pass as the first argument)")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "HTTP User-Agent header")
	fs.DurationVar(&cfg.StallTimeout, "stall-timeout", cfg.StallTimeout, "Abort the session when no bytes arrive for this long")

	// Reconnect
	fs.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "Delay before reconnecting")
	fs.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "Upper bound for the reconnect delay (0 = no cap)")
	fs.Float64Var(&cfg.BackoffMultiply, "backoff-multiply", cfg.BackoffMultiply, "Reconnect delay multiplier per consecutive failure (1 = fixed)")
	fs.Float64Var(&cfg.BackoffJitter, "backoff-jitter", cfg.BackoffJitter, "Reconnect delay jitter as a fraction of the delay")

	// Decoder
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to FFmpeg binary")
	fs.StringVar(&cfg.FFmpegLogLevel, "ffmpeg-loglevel", cfg.FFmpegLogLevel, "FFmpeg -loglevel (astats metadata needs info or higher)")

	// Listeners
	fs.StringVar(&cfg.StatusURL, "status-url", cfg.StatusURL, "Icecast status-json.xsl URL (empty disables listener polling)")
	fs.DurationVar(&cfg.ListenerPollInterval, "listener-poll", cfg.ListenerPollInterval, "Listener poll interval")

	// Observability
	fs.IntVar(&cfg.MetricsPort, "port", cfg.MetricsPort, "Prometheus metrics port")
	fs.StringVar(&cfg.MetricsHost, "metrics-host", cfg.MetricsHost, "Metrics listen host (empty = all interfaces)")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error"`)
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Show a live terminal dashboard (logs are suppressed)")

	// Diagnostics
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the FFmpeg command and exit")
	fs.BoolVar(&cfg.PrintMetrics, "print-metrics", cfg.PrintMetrics, "Print the initial metrics exposition and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	return fs
}

// configPathFromArgs finds -config/--config before full flag parsing, so the
// file can be loaded underneath the environment and the other flags.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return ""
		}
		name := strings.TrimLeft(a, "-")
		if name == a {
			continue
		}
		if name == "config" && i+1 < len(args) {
			return args[i+1]
		}
		if v, ok := strings.CutPrefix(name, "config="); ok {
			return v
		}
	}
	return ""
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, out io.Writer, names []string) {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		fmt.Fprintf(out, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
			fmt.Fprintf(out, " (default %s)", f.DefValue)
		}
		fmt.Fprintln(out)
	}
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if strings.HasSuffix(f.DefValue, "s") || strings.HasSuffix(f.DefValue, "m") || strings.HasSuffix(f.DefValue, "h") {
		return "duration"
	}

	if _, err := fmt.Sscanf(f.DefValue, "%d", new(int)); err == nil {
		return "int"
	}

	return "string"
}
