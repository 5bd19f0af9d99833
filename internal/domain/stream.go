package domain

// StreamEventKind discriminates the engine's emitted event stream. The set is
// closed: consumers can switch exhaustively over it.
type StreamEventKind string

const (
	StreamEventContext StreamEventKind = "context"
	StreamEventDelta   StreamEventKind = "delta"
	StreamEventDone    StreamEventKind = "done"
	StreamEventError   StreamEventKind = "error"
)

// ContextSource describes one source document backing the answer, surfaced to
// the caller before generation begins.
type ContextSource struct {
	SourceID   string     `json:"source_id"`
	SourceType SourceType `json:"source_type"`
	Title      string     `json:"title"`
	Similarity float32    `json:"similarity,omitempty"`
}

// Usage carries token accounting accumulated from provider events.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// StreamEvent is one event of the engine's output stream. Exactly one of the
// payload fields is meaningful for a given Kind:
//
//	context -> Sources
//	delta   -> Text
//	done    -> Usage
//	error   -> Message
//
// A stream carries at most one context event, any number of deltas, and
// terminates with exactly one of done or error.
type StreamEvent struct {
	Kind    StreamEventKind `json:"kind"`
	Sources []ContextSource `json:"sources,omitempty"`
	Text    string          `json:"text,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
	Message string          `json:"message,omitempty"`
}

// NewDeltaEvent builds a delta event carrying generated text.
func NewDeltaEvent(text string) StreamEvent {
	return StreamEvent{Kind: StreamEventDelta, Text: text}
}

// NewDoneEvent builds the terminal success event.
func NewDoneEvent(usage Usage) StreamEvent {
	return StreamEvent{Kind: StreamEventDone, Usage: &usage}
}

// NewErrorEvent builds the terminal error event.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{Kind: StreamEventError, Message: message}
}

// NewContextEvent builds the pre-generation context event.
func NewContextEvent(sources []ContextSource) StreamEvent {
	if sources == nil {
		sources = []ContextSource{}
	}
	return StreamEvent{Kind: StreamEventContext, Sources: sources}
}
