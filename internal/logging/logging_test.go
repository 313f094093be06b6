package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("with default output", func(t *testing.T) {
		logger := NewLogger(Config{Level: InfoLevel})
		if logger == nil {
			t.Fatal("NewLogger returned nil")
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewLogger(Config{Level: "loud", Output: buf, Format: JSONFormat})
		logger.Debug("hidden", nil)
		logger.Info("shown", nil)
		if strings.Contains(buf.String(), "hidden") {
			t.Error("debug entry should be filtered at info level")
		}
		if !strings.Contains(buf.String(), "shown") {
			t.Error("info entry should be written")
		}
	})
}

func TestLogLevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		configLvl LogLevel
		logLvl    LogLevel
		shouldLog bool
	}{
		{"debug logs debug", DebugLevel, DebugLevel, true},
		{"info skips debug", InfoLevel, DebugLevel, false},
		{"info logs warn", InfoLevel, WarnLevel, true},
		{"warn skips info", WarnLevel, InfoLevel, false},
		{"error logs error", ErrorLevel, ErrorLevel, true},
		{"silent skips error", SilentLevel, ErrorLevel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewLogger(Config{Level: tt.configLvl, Output: buf, Format: JSONFormat})

			switch tt.logLvl {
			case DebugLevel:
				logger.Debug("msg", nil)
			case InfoLevel:
				logger.Info("msg", nil)
			case WarnLevel:
				logger.Warn("msg", nil)
			case ErrorLevel:
				logger.Error("msg", nil)
			}

			if got := buf.Len() > 0; got != tt.shouldLog {
				t.Errorf("logged = %v, want %v", got, tt.shouldLog)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: DebugLevel, Output: buf, Format: JSONFormat})

	logger.Info("relocated", map[string]interface{}{
		"project": "L",
		"count":   2,
		"error":   errors.New("boom"),
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["message"] != "relocated" {
		t.Errorf("message = %v, want %q", entry["message"], "relocated")
	}
	if entry["project"] != "L" {
		t.Errorf("project = %v, want %q", entry["project"], "L")
	}
	if entry["error"] != "boom" {
		t.Errorf("error = %v, want %q", entry["error"], "boom")
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("timestamp should be present")
	}
}

func TestHumanFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(Config{Level: InfoLevel, Output: buf, Format: HumanFormat})

	logger.Warn("duplicate edge", map[string]interface{}{"holder": "A"})

	out := buf.String()
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "duplicate edge") {
		t.Errorf("unexpected human output: %q", out)
	}
	if !strings.Contains(out, `"holder": "A"`) {
		t.Errorf("fields missing from human output: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":    DebugLevel,
		"WARNING":  WarnLevel,
		"error":    ErrorLevel,
		"off":      SilentLevel,
		"":         InfoLevel,
		"nonsense": InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	if got := LevelFromVerbosity(3, true); got != SilentLevel {
		t.Errorf("quiet = %q, want silent", got)
	}
	if got := LevelFromVerbosity(0, false); got != WarnLevel {
		t.Errorf("v0 = %q, want warn", got)
	}
	if got := LevelFromVerbosity(1, false); got != InfoLevel {
		t.Errorf("v1 = %q, want info", got)
	}
	if got := LevelFromVerbosity(2, false); got != DebugLevel {
		t.Errorf("v2 = %q, want debug", got)
	}
}

func TestTestLogger(t *testing.T) {
	logger := NewTestLogger()
	logger.With(map[string]interface{}{"request": "r1"}).Warn("holder skipped", nil)

	logger.AssertLogged(t, WarnLevel, "holder skipped")
	if logger.Count("holder") != 1 {
		t.Errorf("Count = %d, want 1", logger.Count("holder"))
	}
	if len(logger.All()[0].Context) != 1 {
		t.Errorf("With fields not carried: %+v", logger.All()[0].Context)
	}
}

// syncWriter records entries and fails Sync with err.
type syncWriter struct {
	bytes.Buffer
	err error
}

func (w *syncWriter) Sync() error {
	return w.err
}

func TestSync(t *testing.T) {
	tests := []struct {
		name    string
		syncErr error
		wantErr bool
	}{
		{"ok", nil, false},
		{"terminal EINVAL", &os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}, false},
		{"pipe ENOTTY", &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.ENOTTY}, false},
		{"closed file", os.ErrClosed, true},
		{"disk error", &os.PathError{Op: "sync", Path: "/var/log/solmove.log", Err: syscall.EIO}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &syncWriter{err: tt.syncErr}
			logger := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: w})
			logger.Info("flushed", nil)

			err := logger.Sync()
			if tt.wantErr {
				if !errors.Is(err, tt.syncErr) {
					t.Errorf("Sync() = %v, want %v", err, tt.syncErr)
				}
				return
			}
			if err != nil {
				t.Errorf("Sync() = %v, want nil", err)
			}
		})
	}
}
