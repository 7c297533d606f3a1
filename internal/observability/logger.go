package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const redacted = "<redacted>"

type Options struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text or json
	File   string
	// attribute values equal to any of these are logged as <redacted>
	Secrets []string
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q", s)
	}
}

// New builds the process logger. The returned closer releases the log file, if any.
func New(stderr io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = stderr
	var closer io.Closer = io.NopCloser(nil)
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
		closer = f
	}

	hopts := &slog.HandlerOptions{Level: level, ReplaceAttr: redactor(opts.Secrets)}
	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "text":
		h = slog.NewTextHandler(out, hopts)
	case "json":
		h = slog.NewJSONHandler(out, hopts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}
	return slog.New(h), closer, nil
}

func redactor(secrets []string) func(groups []string, a slog.Attr) slog.Attr {
	set := make(map[string]struct{}, len(secrets))
	for _, s := range secrets {
		if strings.TrimSpace(s) != "" {
			set[s] = struct{}{}
		}
	}
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(set) == 0 || a.Value.Kind() != slog.KindString {
			return a
		}
		if _, ok := set[a.Value.String()]; ok {
			return slog.String(a.Key, redacted)
		}
		return a
	}
}
