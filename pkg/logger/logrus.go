package logger

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger on logrus with JSON output, chain ids become a chain_id field
type LogrusLogger struct {
	entry *logrus.Logger
}

var _ Logger = (*LogrusLogger)(nil)

// NewLogrusLogger creates a JSON logger writing to out
func NewLogrusLogger(out io.Writer, level Level) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(toLogrusLevel(level))
	return &LogrusLogger{entry: l}
}

// notice has no logrus equivalent and maps to warn
func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case NoticeLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

// Logrus exposes the underlying logger, used by the HTTP request logger
func (l *LogrusLogger) Logrus() *logrus.Logger {
	return l.entry
}

func (l *LogrusLogger) withChain(chainID int) *logrus.Entry {
	return l.entry.WithFields(logrus.Fields{
		"chain_id": chainID,
		"chain":    ChainName(chainID),
	})
}

func (l *LogrusLogger) Info(format string, args ...interface{}) {
	l.entry.Infof(format, args...)
}

func (l *LogrusLogger) InfoWithChain(chainID int, format string, args ...interface{}) {
	l.withChain(chainID).Infof(format, args...)
}

func (l *LogrusLogger) Error(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
}

func (l *LogrusLogger) ErrorWithChain(chainID int, format string, args ...interface{}) {
	l.withChain(chainID).Errorf(format, args...)
}

func (l *LogrusLogger) Debug(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
}

func (l *LogrusLogger) DebugWithChain(chainID int, format string, args ...interface{}) {
	l.withChain(chainID).Debugf(format, args...)
}

func (l *LogrusLogger) Notice(format string, args ...interface{}) {
	l.entry.Warnf(format, args...)
}

func (l *LogrusLogger) NoticeWithChain(chainID int, format string, args ...interface{}) {
	l.withChain(chainID).Warnf(format, args...)
}
