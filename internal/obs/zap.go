package obs

import (
	"go.uber.org/zap"
)

// ZapLogger bridges the Logger interface to a zap.SugaredLogger.
type ZapLogger struct {
	S *zap.SugaredLogger
}

// NewZapLogger wraps a zap.Logger.
func NewZapLogger(l *zap.Logger) ZapLogger {
	return ZapLogger{S: l.Sugar()}
}

func (z ZapLogger) Logf(level Level, format string, args ...interface{}) {
	if z.S == nil {
		return
	}
	switch level {
	case Debug:
		z.S.Debugf(format, args...)
	case Info:
		z.S.Infof(format, args...)
	case Warn:
		z.S.Warnf(format, args...)
	default:
		z.S.Errorf(format, args...)
	}
}
