package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Logger receives printf-style messages at four levels. Implement it to
// route sbomkit messages to another logging backend.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// LogLevel is the minimum level a DefaultLogger writes.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelSilent
)

var levelNames = [...]string{"debug", "info", "warn", "error", "silent"}

func (l LogLevel) String() string {
	if l >= 0 && int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "silent"
}

// ParseLogLevel converts a config value to a LogLevel. An empty value is
// info.
func ParseLogLevel(s string) (LogLevel, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return LogLevelInfo, nil
	case "warning":
		return LogLevelWarn, nil
	case "off", "none":
		return LogLevelSilent, nil
	default:
		for i, name := range levelNames {
			if v == name {
				return LogLevel(i), nil
			}
		}
	}
	return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
}

// DefaultLogger writes "[prefix] [LEVEL] message" lines through a
// standard library logger, stderr by default. It is safe for concurrent
// use.
type DefaultLogger struct {
	mu     sync.RWMutex
	level  LogLevel
	prefix string
	out    *log.Logger
}

func NewDefaultLogger(prefix string, level LogLevel) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		prefix: prefix,
		out:    log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *DefaultLogger) SetOutput(w io.Writer) { l.out.SetOutput(w) }

// SetFlags sets the log package flags (log.LstdFlags by default).
func (l *DefaultLogger) SetFlags(flags int) { l.out.SetFlags(flags) }

func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.logf(LogLevelDebug, format, args)
}

func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.logf(LogLevelInfo, format, args)
}

func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.logf(LogLevelWarn, format, args)
}

func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.logf(LogLevelError, format, args)
}

func (l *DefaultLogger) logf(level LogLevel, format string, args []interface{}) {
	l.mu.RLock()
	threshold := l.level
	l.mu.RUnlock()
	if level < threshold {
		return
	}

	tag := "[" + strings.ToUpper(level.String()) + "] "
	if l.prefix != "" {
		tag = "[" + l.prefix + "] " + tag
	}
	l.out.Print(tag + fmt.Sprintf(format, args...))
}

// NopLogger discards everything.
type NopLogger struct{}

func (*NopLogger) Debug(string, ...interface{}) {}
func (*NopLogger) Info(string, ...interface{})  {}
func (*NopLogger) Warn(string, ...interface{})  {}
func (*NopLogger) Error(string, ...interface{}) {}

// The package default is silent until the CLI installs a configured
// logger.
var (
	defaultLogger   Logger = &NopLogger{}
	defaultLoggerMu sync.RWMutex
)

// SetDefaultLogger replaces the package default; nil restores the silent
// logger.
func SetDefaultLogger(logger Logger) {
	if logger == nil {
		logger = &NopLogger{}
	}
	defaultLoggerMu.Lock()
	defaultLogger = logger
	defaultLoggerMu.Unlock()
}

func GetDefaultLogger() Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// LoggerOrDefault returns l, or the package default when l is nil.
func LoggerOrDefault(l Logger) Logger {
	if l == nil {
		return GetDefaultLogger()
	}
	return l
}

var (
	_ Logger = (*DefaultLogger)(nil)
	_ Logger = (*NopLogger)(nil)
)
