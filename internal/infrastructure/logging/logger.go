package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/gray-logic-ezviz/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "ezvizbridge"

// Logger is a slog.Logger carrying the bridge's service and version fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger for cfg, writing to stderr when cfg.Output says so
// and to stdout otherwise.
//
// Parameters:
//   - cfg: Logging configuration from config.yaml
//   - version: Application version for the default field
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	w := io.Writer(os.Stdout)
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter creates a Logger writing to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	handler := newHandler(w, cfg.Format, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return &Logger{Logger: slog.New(handler).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// newHandler picks the text handler for format "text" and JSON for anything else.
func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel accepts slog's level names in any case plus "warning".
// Anything unparseable is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		level = "warn"
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// With returns a Logger that adds args to every entry.
//
//	pollLogger := logger.With("component", "coordinator", "serial", serial)
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used until configuration is loaded: JSON, info, stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
