package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/jsonwp-core/internal/infrastructure/config"
)

const serviceName = "jsonwp-gateway"

// Logger is a *slog.Logger whose entries carry the service name and
// build version. It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to cfg.Output ("stderr", otherwise stdout).
func New(cfg config.LoggingConfig, version string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(cfg, version, out)
}

// NewWithWriter is New with an explicit destination. cfg.Format "text"
// selects slog's text handler; anything else is JSON.
func NewWithWriter(cfg config.LoggingConfig, version string, out io.Writer) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(out, opts)
	}

	return &Logger{Logger: slog.New(h).With(
		slog.String("service", serviceName),
		slog.String("version", version),
	)}
}

// parseLevel accepts slog's level names in any case, plus "warning".
// Anything unrecognised is info.
func parseLevel(s string) slog.Level {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "warning") {
		return slog.LevelWarn
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// With returns a child Logger, e.g. logger.With("component", "upstream").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before configuration is loaded: JSON on
// stdout at info.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
