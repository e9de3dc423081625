// Package ulogger provides the logging interface used across all BitCell
// services, with a zerolog-backed implementation and a test logger.
package ulogger

import "testing"

// Logger is the minimal logging surface a service depends on.
type Logger interface {
	LogLevel() int
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// TestLogger discards everything except Fatalf, which fails the test if one
// was attached.
type TestLogger struct {
	T *testing.T
}

func (l TestLogger) LogLevel() int { return 0 }

func (l TestLogger) Debugf(format string, args ...interface{}) {}

func (l TestLogger) Infof(format string, args ...interface{}) {}

func (l TestLogger) Warnf(format string, args ...interface{}) {}

func (l TestLogger) Errorf(format string, args ...interface{}) {}

func (l TestLogger) Fatalf(format string, args ...interface{}) {
	if l.T != nil {
		l.T.Fatalf(format, args...)
	}
}
