package core

import (
	"fmt"
	"os"
	"time"
)

var loggerInstance = *NewDevelopmentLogger()

// SetLogger sets the global logger instance.
func SetLogger(logger Logger) {
	loggerInstance = logger
}

// GetLogger retrieves the global logger instance.
func GetLogger() *Logger {
	return &loggerInstance
}

// Logger is a small structured logger: a handler function plus a set of
// attributes inherited by children created via With.
type Logger struct {
	handlerFunc func(level string, msg string, attrs map[string]any)
	attrs       map[string]any
}

func NewLogger(handler func(level string, msg string, attrs map[string]any)) *Logger {
	return &Logger{
		handlerFunc: handler,
		attrs:       make(map[string]any),
	}
}

// NewDevelopmentLogger creates a logger with plain console output.
func NewDevelopmentLogger() *Logger {
	handler := func(level string, msg string, attrs map[string]any) {
		timestamp := time.Now().Format(time.RFC3339)
		attrStr := ""
		for k, v := range attrs {
			attrStr += fmt.Sprintf(" %s=%v", k, v)
		}
		logLine := fmt.Sprintf("%s [%s] %s%s\n", timestamp, level, msg, attrStr)
		if level == "ERROR" || level == "FATAL" {
			fmt.Fprint(os.Stderr, logLine)
		} else {
			fmt.Print(logLine)
		}
		if level == "FATAL" {
			os.Exit(1)
		}
	}
	return NewLogger(handler)
}

func (l *Logger) log(level string, msg string, args ...any) {
	if l.handlerFunc == nil {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	l.handlerFunc(level, msg, l.attrs)
}

func (l *Logger) Debug(msg string, args ...any)  { l.log("DEBUG", msg, args...) }
func (l *Logger) Debugf(msg string, args ...any) { l.log("DEBUG", msg, args...) }
func (l *Logger) Info(msg string, args ...any)   { l.log("INFO", msg, args...) }
func (l *Logger) Infof(msg string, args ...any)  { l.log("INFO", msg, args...) }
func (l *Logger) Warn(msg string, args ...any)   { l.log("WARN", msg, args...) }
func (l *Logger) Warnf(msg string, args ...any)  { l.log("WARN", msg, args...) }
func (l *Logger) Error(msg string, args ...any)  { l.log("ERROR", msg, args...) }
func (l *Logger) Errorf(msg string, args ...any) { l.log("ERROR", msg, args...) }
func (l *Logger) Fatal(msg string, args ...any)  { l.log("FATAL", msg, args...) }

// With returns a child logger that carries the combined attribute set.
func (l *Logger) With(attrs map[string]any) *Logger {
	combined := make(map[string]any, len(l.attrs)+len(attrs))
	for k, v := range l.attrs {
		combined[k] = v
	}
	for k, v := range attrs {
		combined[k] = v
	}
	return &Logger{
		handlerFunc: l.handlerFunc,
		attrs:       combined,
	}
}
