// Package logging provides the small logging indirection every other
// package in this module depends on instead of a logging framework,
// mirroring the teacher's own "stdlib log.Logger behind a tiny interface"
// approach (see the teacher's pipeline/3_DATA_TRAINER/internal/logging and
// its internal/config local-indirection style).
package logging

import (
	"log"
	"os"
)

// Logger is the narrow surface every package here calls through, so tests
// can inject a recording logger instead of writing to stderr.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// stdLogger backs Logger with the standard library's log.Logger, same as
// the teacher's device driver and deployment code (log.Printf throughout,
// no zap/logrus/slog).
type stdLogger struct {
	*log.Logger
}

func (l *stdLogger) Debugf(format string, args ...interface{}) { l.Printf("[DEBUG] "+format, args...) }
func (l *stdLogger) Infof(format string, args ...interface{})  { l.Printf("[INFO] "+format, args...) }
func (l *stdLogger) Warnf(format string, args ...interface{})  { l.Printf("[WARN] "+format, args...) }
func (l *stdLogger) Errorf(format string, args ...interface{}) { l.Printf("[ERROR] "+format, args...) }

// Default is the process-wide logger used when a caller does not supply
// one explicitly.
var Default Logger = &stdLogger{log.New(os.Stderr, "", log.LstdFlags)}

// NoOp discards everything; useful for tests that don't care about log
// output but still need to satisfy the Logger parameter.
var NoOp Logger = noop{}

type noop struct{}

func (noop) Debugf(string, ...interface{}) {}
func (noop) Infof(string, ...interface{})  {}
func (noop) Warnf(string, ...interface{})  {}
func (noop) Errorf(string, ...interface{}) {}
