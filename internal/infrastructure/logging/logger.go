package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nerrad567/astrobridge/internal/infrastructure/config"
)

const serviceName = "astrobridge"

// Logger is a slog.Logger carrying the service and version attributes,
// plus the rotating log file it may own. Safe for concurrent use.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New builds the process logger from cfg. When logging.file.path is set,
// every line is also written to a lumberjack-rotated file; call Close on
// shutdown to release it.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, closer := output(cfg)
	l := NewWithWriter(w, cfg, version)
	l.closer = closer
	return l
}

func output(cfg config.LoggingConfig) (io.Writer, io.Closer) {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		w = os.Stderr
	case "none":
		w = io.Discard
	default:
		w = os.Stdout
	}

	if cfg.File.Path == "" {
		return w, nil
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File.Path,
		MaxSize:    cfg.File.MaxSize,
		MaxBackups: cfg.File.MaxBackups,
		MaxAge:     cfg.File.MaxAge,
		Compress:   cfg.File.Compress,
	}
	if w == io.Discard {
		return rotator, rotator
	}
	return io.MultiWriter(w, rotator), rotator
}

// NewWithWriter builds a Logger writing to w. cfg.Output and cfg.File are
// ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	h := newHandler(w, cfg).WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(h)}
}

func newHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps debug, info, warn(ing) and error to slog levels, case
// insensitively. Anything else is info.
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

// With returns a child logger with extra attributes. The child shares the
// parent's log file.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), closer: l.closer}
}

// Component returns a child logger tagged component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close releases the rotating log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default is the logger used before configuration is loaded: JSON at info
// level on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a logger that drops everything. Intended for tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, config.LoggingConfig{Level: "error"}, "test")
}
