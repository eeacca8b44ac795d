// Package gatewaylog is a thin, level-gated wrapper around the standard
// library logger. Components take a *Logger by injection rather than
// reaching for a package-level global, so tests can run hermetically.
package gatewaylog

import (
	"fmt"
	"log"
	"os"
)

type Level int

const (
	Debug Level = iota
	Info
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger filters messages below a configured level before handing them to an
// underlying *log.Logger.
type Logger struct {
	level   Level
	std     *log.Logger
	prefix  string
}

// New wraps std (or a default stderr logger if std is nil) with level
// filtering. prefix is prepended to every message, e.g. a component name.
func New(prefix string, level Level, std *log.Logger) *Logger {
	if std == nil {
		std = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Logger{level: level, std: std, prefix: prefix}
}

func (l *Logger) SetLevel(level Level) { l.level = level }

func (l *Logger) Debugf(format string, args ...interface{})   { l.logf(Debug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})    { l.logf(Info, format, args...) }
func (l *Logger) Warningf(format string, args ...interface{}) { l.logf(Warning, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})   { l.logf(Error, format, args...) }

func (l *Logger) logf(level Level, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if l.prefix != "" {
		l.std.Printf("[%s] %s: %s", level, l.prefix, msg)
		return
	}
	l.std.Printf("[%s] %s", level, msg)
}
