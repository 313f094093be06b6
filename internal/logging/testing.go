package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger wraps Logger with observation of every entry.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a debug-level logger whose entries can be inspected.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core)},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// Count returns how many entries contain msg.
func (t *TestLogger) Count(msg string) int {
	n := 0
	for _, e := range t.observed.All() {
		if strings.Contains(e.Message, msg) {
			n++
		}
	}
	return n
}

// AssertLogged fails the test unless an entry at level containing msg exists.
func (t *TestLogger) AssertLogged(tb testing.TB, level LogLevel, msg string) {
	tb.Helper()
	want := zapLevels[level]
	for _, e := range t.observed.All() {
		if e.Level == want && strings.Contains(e.Message, msg) {
			return
		}
	}
	tb.Errorf("expected %s log containing %q, got %+v", level, msg, t.observed.All())
}
