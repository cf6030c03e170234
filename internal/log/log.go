// Package log provides a category-aware logger on top of logrus.
package log

import (
	"io"
	"regexp"

	"github.com/sirupsen/logrus"
)

// Logger writes leveled log entries tagged with a category.
// A nil *Logger is valid and discards everything.
type Logger struct {
	*logrus.Logger

	categoryFilter *regexp.Regexp
	fields         logrus.Fields
}

// New returns a Logger writing to out at the given level. If categoryFilter is
// non-nil only categories matching it are logged.
func New(out io.Writer, level logrus.Level, categoryFilter *regexp.Regexp) *Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)
	return &Logger{
		Logger:         l,
		categoryFilter: categoryFilter,
	}
}

// NewNullLogger returns a Logger that discards all output.
func NewNullLogger() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// WithField returns a copy of l that adds key=value to every entry.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	if l == nil {
		return nil
	}
	fields := make(logrus.Fields, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{
		Logger:         l.Logger,
		categoryFilter: l.categoryFilter,
		fields:         fields,
	}
}

func (l *Logger) Debugf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

func (l *Logger) Infof(category string, msg string, args ...interface{}) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

func (l *Logger) Warnf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

func (l *Logger) Errorf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Logf logs msg at level under category.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...interface{}) {
	if l == nil || l.Logger == nil {
		return
	}
	if !l.IsLevelEnabled(level) {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}
	entry := l.Logger.WithField("category", category)
	if len(l.fields) > 0 {
		entry = entry.WithFields(l.fields)
	}
	entry.Logf(level, msg, args...)
}

// DebugMode reports whether debug entries are written.
func (l *Logger) DebugMode() bool {
	return l != nil && l.Logger != nil && l.GetLevel() >= logrus.DebugLevel
}
