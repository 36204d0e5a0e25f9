package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogrusLogger implements Logger on top of sirupsen/logrus with the JSON
// formatter. Select it with LOG_BACKEND=logrus.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger writes JSON lines to stdout at the LOG_LEVEL level.
func NewLogrusLogger(component string) Logger {
	return NewLogrusLoggerWithWriter(os.Stdout, component, os.Getenv("LOG_LEVEL"))
}

// NewLogrusLoggerWithWriter builds a logrus logger on an arbitrary writer.
func NewLogrusLoggerWithWriter(w io.Writer, component, level string) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &LogrusLogger{entry: l.WithField("component", component)}
}

func (l *LogrusLogger) Debugf(format string, args ...any) { l.entry.Debugf(format, args...) }

func (l *LogrusLogger) Debugw(msg string, fields map[string]any) {
	l.entry.WithFields(logrus.Fields(fields)).Debug(msg)
}

func (l *LogrusLogger) Infof(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *LogrusLogger) Warnf(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *LogrusLogger) Errorf(format string, args ...any) { l.entry.Errorf(format, args...) }
