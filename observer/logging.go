package observer

import (
	"go.uber.org/zap"

	"gostomp/frame"
)

// LoggingObserver logs connection traffic at debug level.
type LoggingObserver struct {
	Base

	log *zap.Logger
}

// NewLoggingObserver wraps the given logger; a nil logger is replaced by a
// no-op one.
func NewLoggingObserver(log *zap.Logger) *LoggingObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LoggingObserver{log: log}
}

func (l *LoggingObserver) SentFrame(f *frame.Frame) {
	l.log.Debug("frame sent",
		zap.String("command", f.Command),
		zap.Int("body_bytes", len(f.Body)),
	)
}

func (l *LoggingObserver) ReceivedFrame(f *frame.Frame) {
	l.log.Debug("frame received",
		zap.String("command", f.Command),
		zap.Int("body_bytes", len(f.Body)),
	)
}

func (l *LoggingObserver) EmptyLineRead() {
	l.log.Debug("server heartbeat received")
}
