package controller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Redundancy/go-scan/progress"
)

// EventType identifies the payload of an Event
type EventType string

const (
	ProgressEvent    EventType = "progress"
	FoundEvent       EventType = "found"
	NotFoundEvent    EventType = "not-found"
	CompletedEvent   EventType = "completed"
	CancelledEvent   EventType = "cancelled"
	ErrorEvent       EventType = "error"
	InitializedEvent EventType = "initialized"
)

// Terminal is true for the events that end a session
func (t EventType) Terminal() bool {
	switch t {
	case FoundEvent, NotFoundEvent, CompletedEvent, CancelledEvent, ErrorEvent:
		return true
	}
	return false
}

// Session kinds
const (
	SearchKind = "search"
	DigestKind = "digest"
	InlineKind = "inline"
)

// Event is emitted by the controller. Exactly one payload is set, matching Type;
// cancelled and not-found carry none.
type Event struct {
	Type EventType `json:"type"`
	// Empty for events that do not belong to a session
	Session string `json:"session,omitempty"`
	Kind    string `json:"kind,omitempty"`

	Progress    *ProgressPayload    `json:"progress,omitempty"`
	Found       *FoundPayload       `json:"found,omitempty"`
	Completed   *CompletedPayload   `json:"completed,omitempty"`
	Error       *ErrorPayload       `json:"error,omitempty"`
	Initialized *InitializedPayload `json:"initialized,omitempty"`

	ctx context.Context
}

// WithContext returns a copy of e carrying ctx, the trace of the session or request it belongs to
func (e Event) WithContext(ctx context.Context) Event {
	e.ctx = ctx
	return e
}

// Context is the trace context of the event, or context.Background if it has none
func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// Marshal encodes the event as JSON
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

type ProgressPayload struct {
	FractionComplete float64 `json:"fractionComplete"`
	CursorOffset     int64   `json:"cursorOffset"`
	ElapsedMs        int64   `json:"elapsedMs"`

	// Both are zero until there is enough elapsed time to estimate from
	ThroughputBytesPerSec float64 `json:"throughputBytesPerSec"`
	EstimatedRemainingMs  int64   `json:"estimatedRemainingMs"`

	Processed      int64 `json:"processed"`
	Total          int64 `json:"total"`
	ProcessedChunk int64 `json:"processedChunk"`
}

type FoundPayload struct {
	AbsoluteOffset int64 `json:"absoluteOffset"`
	ElapsedMs      int64 `json:"elapsedMs"`
}

type CompletedPayload struct {
	Algorithm  string `json:"algorithm"`
	DigestHex  string `json:"digestHex"`
	TotalBytes int64  `json:"totalBytes"`
	ElapsedMs  int64  `json:"elapsedMs"`
	// Class of the backend that produced the digest, "accelerated" or "portable"
	Backend string `json:"backend"`
	// Library behind the backend
	Implementation string `json:"implementation,omitempty"`

	// Set for inline digests only
	InputType   string `json:"inputType,omitempty"`
	InputLength *int   `json:"inputLength,omitempty"`
}

// Error codes
const (
	CodeMalformed = "malformed"
	CodeBusy      = "busy"
	CodeRead      = "read"
	CodeBackend   = "backend"
	CodeSource    = "source"
)

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	// Offset of a failed read
	Offset *int64 `json:"offset,omitempty"`
}

type InitializedPayload struct {
	SupportedAlgorithms []string `json:"supportedAlgorithms"`
	// "accelerated" when accelerated backends are preferred, otherwise "portable"
	Mode string `json:"mode"`
}

func milliseconds(d time.Duration) int64 {
	return d.Milliseconds()
}

func progressPayload(s progress.Snapshot) *ProgressPayload {
	return &ProgressPayload{
		FractionComplete:      s.Fraction,
		CursorOffset:          s.Cursor,
		ElapsedMs:             milliseconds(s.Elapsed),
		ThroughputBytesPerSec: s.BytesPerSecond,
		EstimatedRemainingMs:  milliseconds(s.Remaining),
		Processed:             s.Processed,
		Total:                 s.Total,
		ProcessedChunk:        s.Chunks,
	}
}

// EventSink receives events. Emit is called from session goroutines as well as the caller of Handle,
// so it must be safe for concurrent use, and should not block for long.
type EventSink interface {
	Emit(Event)
}

// SinkFunc adapts a function to an EventSink
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) {
	f(e)
}

// ChannelSink sends every event on ch, blocking when it is full
func ChannelSink(ch chan<- Event) EventSink {
	return SinkFunc(func(e Event) {
		ch <- e
	})
}

// Discard drops every event
var Discard EventSink = SinkFunc(func(Event) {})
