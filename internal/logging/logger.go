package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"reflect"
	"sync"
	"time"
)

// Logger defines a minimal, printf-style logging contract.
//
// Transports and the task facade depend on this interface so callers can plug
// in their own logger without this package imposing a backend.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Level represents the severity of a log message.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger {
	return nopLogger{}
}

// IsNil reports whether logger is nil or wraps a nil pointer receiver.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	val := reflect.ValueOf(logger)
	switch val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func:
		return val.IsNil()
	default:
		return false
	}
}

// OrNop returns logger when non-nil, otherwise a no-op logger.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

var (
	defaultOutput   io.Writer = os.Stderr
	defaultLevel              = LevelInfo
	defaultSinkOnce sync.Once
	defaultSink     *log.Logger
	defaultMu       sync.RWMutex
)

// SetOutput redirects all component loggers created afterwards. Intended for
// embedding applications that want the SDK's logs in their own sink.
func SetOutput(w io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if w == nil {
		w = io.Discard
	}
	defaultOutput = w
	defaultSink = log.New(w, "", 0)
}

// SetLevel sets the minimum level for component loggers.
func SetLevel(level Level) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLevel = level
}

func sink() *log.Logger {
	defaultSinkOnce.Do(func() {
		defaultMu.Lock()
		defer defaultMu.Unlock()
		if defaultSink == nil {
			defaultSink = log.New(defaultOutput, "", 0)
		}
	})
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultSink
}

type componentLogger struct {
	component string
}

// NewComponentLogger returns the default SDK logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{component: component}
}

func (l *componentLogger) log(level Level, format string, args ...any) {
	defaultMu.RLock()
	min := defaultLevel
	defaultMu.RUnlock()
	if level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	sink().Printf("[%s] [%s] [%s] %s", time.Now().Format("2006-01-02 15:04:05.000"), level, l.component, msg)
}

func (l *componentLogger) Debug(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.log(LevelError, format, args...) }

type multiLogger struct {
	loggers []Logger
}

// Multi returns a logger fan-out that calls every non-nil logger in order.
func Multi(loggers ...Logger) Logger {
	flattened := make([]Logger, 0, len(loggers))
	for _, logger := range loggers {
		if IsNil(logger) {
			continue
		}
		if ml, ok := logger.(*multiLogger); ok {
			flattened = append(flattened, ml.loggers...)
			continue
		}
		flattened = append(flattened, logger)
	}
	if len(flattened) == 0 {
		return Nop()
	}
	if len(flattened) == 1 {
		return flattened[0]
	}
	return &multiLogger{loggers: flattened}
}

func (l *multiLogger) Debug(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Debug(format, args...)
	}
}

func (l *multiLogger) Info(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Info(format, args...)
	}
}

func (l *multiLogger) Warn(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Warn(format, args...)
	}
}

func (l *multiLogger) Error(format string, args ...any) {
	for _, logger := range l.loggers {
		logger.Error(format, args...)
	}
}
