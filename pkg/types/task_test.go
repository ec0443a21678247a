package types

import (
	"encoding/json"
	"testing"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusRunning, Status("unknown")} {
		if s.Terminal() {
			t.Fatalf("%s should not be terminal", s)
		}
	}
}

func TestParseStreamResult(t *testing.T) {
	payload := json.RawMessage(`{"event":"result","template_id":"t1","artifacts":{"pdf_url":"/u/t1.pdf"},"extra":"kept"}`)
	result := ParseStreamResult(payload)
	if result.TemplateID != "t1" {
		t.Fatalf("template id: %q", result.TemplateID)
	}
	if result.Artifacts["pdf_url"] != "/u/t1.pdf" {
		t.Fatalf("artifacts: %v", result.Artifacts)
	}
	var raw map[string]any
	if err := json.Unmarshal(result.Raw, &raw); err != nil || raw["extra"] != "kept" {
		t.Fatalf("trailing fields lost: %v %v", err, raw)
	}
}

func TestParseStreamResultMalformedFields(t *testing.T) {
	payload := json.RawMessage(`{"event":"result","artifacts":"not-an-object"}`)
	result := ParseStreamResult(payload)
	if len(result.Raw) == 0 {
		t.Fatal("raw payload must survive decode failure")
	}
}

func TestParseProgressShapes(t *testing.T) {
	chunked := ParseProgress(json.RawMessage(`{"event":"stage","pct":10,"name":"parsing"}`))
	if chunked.Percent != 10 || chunked.Stage != "parsing" {
		t.Fatalf("chunked shape: %+v", chunked)
	}

	push := ParseProgress(json.RawMessage(`{"percent":55.5,"stage":"mapping","metadata":{"page":3}}`))
	if push.Percent != 55.5 || push.Stage != "mapping" {
		t.Fatalf("push shape: %+v", push)
	}
	if push.Metadata["page"] != float64(3) {
		t.Fatalf("metadata lost: %v", push.Metadata)
	}

	opaque := ParseProgress(json.RawMessage(`"free-form"`))
	if len(opaque.Raw) == 0 {
		t.Fatal("raw must be preserved for opaque payloads")
	}
}

func TestResolveURL(t *testing.T) {
	cases := []struct {
		base, ref, want string
		wantErr         bool
	}{
		{"https://host:9000", "/uploads/a.pdf", "https://host:9000/uploads/a.pdf", false},
		{"https://host:9000", "https://cdn.example.com/a.pdf", "https://cdn.example.com/a.pdf", false},
		{"https://host:9000/app/", "relative.pdf", "https://host:9000/app/relative.pdf", false},
		{"", "/uploads/a.pdf", "", true},
		{"https://host:9000", "", "", true},
		{"not-a-base", "/x", "", true},
	}
	for _, tc := range cases {
		got, err := ResolveURL(tc.base, tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ResolveURL(%q, %q) expected error, got %q", tc.base, tc.ref, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ResolveURL(%q, %q): %v", tc.base, tc.ref, err)
		}
		if got != tc.want {
			t.Fatalf("ResolveURL(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}

func TestResolveArtifactsDropsBroken(t *testing.T) {
	artifacts := map[string]string{
		"pdf": "/u/t1.pdf",
		"bad": "",
	}
	ResolveArtifacts(artifacts, "https://host:9000")
	if artifacts["pdf"] != "https://host:9000/u/t1.pdf" {
		t.Fatalf("pdf not resolved: %v", artifacts)
	}
	if _, ok := artifacts["bad"]; ok {
		t.Fatal("unresolvable artifact should be dropped")
	}
}

func TestExtractArtifacts(t *testing.T) {
	got := ExtractArtifacts(json.RawMessage(`{"template_id":"t1","artifacts":{"pdf":"/a.pdf"}}`))
	if got["pdf"] != "/a.pdf" {
		t.Fatalf("unexpected artifacts: %v", got)
	}
	if ExtractArtifacts(nil) != nil {
		t.Fatal("nil payload should yield nil")
	}
	if ExtractArtifacts(json.RawMessage(`{"artifacts":{}}`)) != nil {
		t.Fatal("empty artifacts should yield nil")
	}
	if ExtractArtifacts(json.RawMessage(`not json`)) != nil {
		t.Fatal("malformed payload should yield nil")
	}
}
