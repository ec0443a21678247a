package async

import (
	"strings"
	"sync"
	"testing"
)

type panicRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (p *panicRecorder) Error(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, format)
}

func TestInvokeRecoversPanic(t *testing.T) {
	recorder := &panicRecorder{}
	Invoke(recorder, "callback", func() {
		panic("boom")
	})
	if len(recorder.entries) != 1 {
		t.Fatalf("expected one panic report, got %d", len(recorder.entries))
	}
	if !strings.Contains(recorder.entries[0], "panic") {
		t.Fatalf("unexpected report format: %s", recorder.entries[0])
	}
}

func TestInvokeRunsFunction(t *testing.T) {
	ran := false
	Invoke(nil, "callback", func() { ran = true })
	if !ran {
		t.Fatal("function did not run")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	recorder := &panicRecorder{}
	done := make(chan struct{})
	Go(recorder, "background", func() {
		defer close(done)
		panic("boom")
	})
	<-done
	// Recover runs after the deferred close; nothing to assert beyond no crash.
}
