package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	mu     sync.RWMutex
	global = newLogger(os.Stderr, "info", "text")
)

func newLogger(w io.Writer, level, format string) *log.Logger {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}

	l := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
		Prefix:          "calcore",
	})
	if strings.EqualFold(format, "json") {
		l.SetFormatter(log.JSONFormatter)
	}
	return l
}

// Init replaces the process logger. Level is one of debug, info, warn, error;
// format is "text" or "json".
func Init(level, format string) {
	SetOutput(os.Stderr, level, format)
}

// SetOutput is Init with an explicit writer, used by tests.
func SetOutput(w io.Writer, level, format string) {
	l := newLogger(w, level, format)
	mu.Lock()
	global = l
	mu.Unlock()
}

func get() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// normalize lets callers pass a lone error the way the rest of the codebase
// historically did, e.g. logger.Error("X:Y:Error", err).
func normalize(keyvals []any) []any {
	if len(keyvals)%2 == 1 {
		if err, ok := keyvals[0].(error); ok && len(keyvals) == 1 {
			return []any{"error", err.Error()}
		}
		keyvals = append(keyvals, "(missing)")
	}
	for i := 1; i < len(keyvals); i += 2 {
		if err, ok := keyvals[i].(error); ok && err != nil {
			keyvals[i] = err.Error()
		}
	}
	return keyvals
}

func Debug(msg string, keyvals ...any) {
	get().Debug(msg, normalize(keyvals)...)
}

func Info(msg string, keyvals ...any) {
	get().Info(msg, normalize(keyvals)...)
}

func Warn(msg string, keyvals ...any) {
	get().Warn(msg, normalize(keyvals)...)
}

func Error(msg string, keyvals ...any) {
	get().Error(msg, normalize(keyvals)...)
}

// With returns a child logger carrying the given key/value pairs.
func With(keyvals ...any) *log.Logger {
	return get().With(normalize(keyvals)...)
}
