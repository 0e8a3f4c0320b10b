// Package logging adapts github.com/sirupsen/logrus to the small
// logging surfaces the analysis packages consume (dflow.Logger and
// friends), so none of them import logrus directly.
package logging

import "github.com/sirupsen/logrus"

// Logger is the structured logger used throughout the pipeline.
type Logger struct {
	entry *logrus.Entry
}

// New creates a Logger writing through base, defaulting to a plain
// text formatter with no timestamp noise for CLI use.
func New(base *logrus.Logger) *Logger {
	if base == nil {
		base = logrus.New()
		base.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return &Logger{entry: logrus.NewEntry(base)}
}

// WithFunction returns a Logger that tags every message with the
// function it concerns, e.g. for per-goroutine driver logging.
func (l *Logger) WithFunction(name string) *Logger {
	return &Logger{entry: l.entry.WithField("function", name)}
}

// WithField returns a Logger that tags every message with key/value.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Debugf(format string, args ...interface{})   { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { l.entry.Infof(format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.entry.Warningf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.entry.Errorf(format, args...) }
