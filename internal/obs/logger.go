package obs

import (
	"log"
	"sync/atomic"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger is a minimal logging interface for observability.
// Delivery is best-effort; implementations must not block the caller on
// anything slower than a buffered write.
type Logger interface {
	Logf(level Level, format string, args ...interface{})
}

// NopLogger discards all logs.
type NopLogger struct{}

func (NopLogger) Logf(level Level, format string, args ...interface{}) {}

// StdLogger adapts the standard library logger.
type StdLogger struct {
	L    *log.Logger
	Min  Level
	Pref string // optional prefix per log line
}

func (s StdLogger) Logf(level Level, format string, args ...interface{}) {
	if s.L == nil {
		return
	}
	if level < s.Min {
		return
	}
	if s.Pref != "" {
		s.L.Printf("%s[%s] "+format, append([]interface{}{s.Pref, level.String()}, args...)...)
	} else {
		s.L.Printf("[%s] "+format, append([]interface{}{level.String()}, args...)...)
	}
}

// defaultLogger holds the process-wide sink. It starts as a no-op and is
// only ever replaced by an explicit SetDefault call.
var defaultLogger atomic.Value

func init() {
	defaultLogger.Store(Logger(NopLogger{}))
}

// SetDefault installs l as the process-wide diagnostic sink.
// Passing nil restores the no-op sink.
func SetDefault(l Logger) {
	if l == nil {
		l = NopLogger{}
	}
	defaultLogger.Store(l)
}

// Default returns the current process-wide sink.
func Default() Logger {
	return defaultLogger.Load().(Logger)
}

// Logf logs through the process-wide sink.
func Logf(level Level, format string, args ...interface{}) {
	Default().Logf(level, format, args...)
}
