package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/calimero/internal/config"
)

// Logger is the narrow logging interface accepted by knx/tunnel, knx/secure
// and knx/keyring. *StructuredLogger (below) implements it, and so does any other
// structured logger a caller already has.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StructuredLogger wraps slog.Logger with Calimero-specific defaults.
//
// Thread Safety: all methods are safe for concurrent use.
type StructuredLogger struct {
	*slog.Logger
}

var _ Logger = (*StructuredLogger)(nil)

// New creates a Logger from the given configuration.
func New(cfg config.LoggingConfig, version string) *StructuredLogger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("component", "calimero"),
		slog.String("version", version),
	})

	return &StructuredLogger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger carrying additional default attributes.
func (l *StructuredLogger) With(args ...any) *StructuredLogger {
	return &StructuredLogger{Logger: l.Logger.With(args...)}
}

// Default returns a logger suitable for use before configuration is loaded:
// JSON output to stdout at info level.
func Default() *StructuredLogger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Noop returns a Logger that discards everything. Useful as the zero value
// for components that accept an optional Logger.
func Noop() Logger { return noopLogger{} }

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
