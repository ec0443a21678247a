package logging

import (
	"testing"
)

func TestOrNopNilInterface(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
}

func TestOrNopNilPointer(t *testing.T) {
	var typed *componentLogger
	logger := OrNop(typed)
	if logger == nil {
		t.Fatal("OrNop returned nil for typed nil")
	}
	// Must not panic.
	logger.Info("hello %s", "world")
}

func TestMultiFlattensAndSkipsNil(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	combined := Multi(a, nil, Multi(b))
	combined.Error("boom")
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Fatalf("expected one entry each, got %d and %d", len(a.entries), len(b.entries))
	}
}

func TestMultiSingleCollapses(t *testing.T) {
	a := &recordingLogger{}
	if got := Multi(a, nil); got != Logger(a) {
		t.Fatalf("expected single logger to be returned directly, got %T", got)
	}
}

type recordingLogger struct {
	entries []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.entries = append(r.entries, format) }
func (r *recordingLogger) Info(format string, args ...any)  { r.entries = append(r.entries, format) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.entries = append(r.entries, format) }
func (r *recordingLogger) Error(format string, args ...any) { r.entries = append(r.entries, format) }
