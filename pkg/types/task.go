// Package types defines the task model shared between the client facade and
// its transports. It has no dependencies so both internal machinery and
// embedding applications can use it.
package types

import "encoding/json"

// Status is the lifecycle state of a backend task.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status ends the task lifecycle. Once a task
// is terminal, further progress events carry no meaning and consumers must
// ignore them.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Progress is one progress observation. Percent is not required to be
// monotonic; only arrival order is.
type Progress struct {
	Percent  float64        `json:"percent,omitempty"`
	Stage    string         `json:"stage,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Raw preserves the full wire record for streaming transports.
	Raw json.RawMessage `json:"-"`
}

// TaskError is the structured failure a task carries when Status is failed.
type TaskError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Task represents one backend long-running operation.
type Task struct {
	ID       string          `json:"id"`
	Status   Status          `json:"status"`
	Progress *Progress       `json:"progress,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    *TaskError      `json:"error,omitempty"`
	// Artifacts holds artifact name to URL mappings extracted from the
	// result, with relative URLs already resolved against the configured
	// base origin.
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// StreamResult is the terminal-success payload of a chunked progress stream.
type StreamResult struct {
	TemplateID string            `json:"template_id"`
	Artifacts  map[string]string `json:"artifacts"`
	// Raw preserves the full terminal record including operation-specific
	// trailing fields.
	Raw json.RawMessage `json:"-"`
}

// ParseStreamResult decodes a terminal result record. Unknown fields are
// preserved through Raw; a payload whose known fields fail to decode still
// yields a usable result carrying only Raw.
func ParseStreamResult(payload json.RawMessage) *StreamResult {
	result := &StreamResult{Raw: append(json.RawMessage(nil), payload...)}
	_ = json.Unmarshal(payload, result)
	return result
}

// ParseProgress decodes a progress record into a Progress observation,
// accepting both the chunked stage shape and the push payload shape.
// The original record is always preserved in Raw.
func ParseProgress(payload json.RawMessage) Progress {
	var wire struct {
		Percent  *float64       `json:"percent"`
		Pct      *float64       `json:"pct"`
		Stage    string         `json:"stage"`
		Name     string         `json:"name"`
		Metadata map[string]any `json:"metadata"`
	}
	progress := Progress{Raw: append(json.RawMessage(nil), payload...)}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return progress
	}
	switch {
	case wire.Percent != nil:
		progress.Percent = *wire.Percent
	case wire.Pct != nil:
		progress.Percent = *wire.Pct
	}
	// Chunked stage records carry the stage name under "name" with
	// event=stage; push payloads use "stage" directly.
	if wire.Stage != "" {
		progress.Stage = wire.Stage
	} else if wire.Name != "" {
		progress.Stage = wire.Name
	}
	progress.Metadata = wire.Metadata
	return progress
}
