package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Logger defines a minimal, printf-style logging contract.
//
// It intentionally stays decoupled from slog so packages can depend on
// this interface without caring how the process logger is configured.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if logger == nil {
		return Nop()
	}
	return logger
}

// Config controls how the process-wide logger is built.
type Config struct {
	Level  string // DEBUG, INFO, WARNING, ERROR, CRITICAL
	Format string // json, text
	Output io.Writer
}

// LevelCritical sits above slog's built-in error level; it exists so the
// CRITICAL setting level has a distinct severity.
const LevelCritical = slog.LevelError + 4

// ParseLevel maps a settings-style level name onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

var (
	mu   sync.RWMutex
	root = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
)

// Configure rebuilds the process-wide logger. Unknown levels fall back
// to INFO rather than failing, so a bad value can never silence logging.
func Configure(cfg Config) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	mu.Lock()
	root = slog.New(handler)
	mu.Unlock()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

type componentLogger struct {
	component string
}

// New returns a printf-style logger scoped to a component. The returned
// logger always emits through the current process logger, so it picks up
// reconfiguration without being rebuilt.
func New(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) Debug(format string, args ...any) {
	current().Debug(fmt.Sprintf(format, args...), "component", l.component)
}

func (l *componentLogger) Info(format string, args ...any) {
	current().Info(fmt.Sprintf(format, args...), "component", l.component)
}

func (l *componentLogger) Warn(format string, args ...any) {
	current().Warn(fmt.Sprintf(format, args...), "component", l.component)
}

func (l *componentLogger) Error(format string, args ...any) {
	current().Error(fmt.Sprintf(format, args...), "component", l.component)
}
