package stream

import (
	"bytes"
	"encoding/json"
)

// EventKind is the closed set of classifications a stream record can receive.
type EventKind int

const (
	// KindIgnored - blank, malformed, or unknown records. Never fatal.
	KindIgnored EventKind = iota
	// KindProgress - a stage/progress notification; the stream continues.
	KindProgress
	// KindResult - terminal success; no further records are consumed.
	KindResult
	// KindError - terminal failure carrying a backend-supplied detail.
	KindError
)

func (k EventKind) String() string {
	switch k {
	case KindIgnored:
		return "ignored"
	case KindProgress:
		return "progress"
	case KindResult:
		return "result"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one classified stream record.
type Event struct {
	Kind EventKind
	// Payload is the full record for progress and result events.
	Payload json.RawMessage
	// Detail is the backend-supplied diagnostic for error events.
	Detail string
}

// record is the envelope shared by every chunked ND-JSON frame.
type record struct {
	Event  string `json:"event"`
	Detail string `json:"detail"`
}

// Classify parses one line as JSON and classifies it by its event
// discriminator. Anything that fails to parse is trailing noise from a
// truncated stream and is ignored rather than escalated.
func Classify(line []byte) Event {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Event{Kind: KindIgnored}
	}

	var rec record
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return Event{Kind: KindIgnored}
	}

	switch rec.Event {
	case "stage", "progress":
		return Event{Kind: KindProgress, Payload: append(json.RawMessage(nil), trimmed...)}
	case "result":
		return Event{Kind: KindResult, Payload: append(json.RawMessage(nil), trimmed...)}
	case "error":
		return Event{Kind: KindError, Detail: rec.Detail}
	default:
		return Event{Kind: KindIgnored}
	}
}
