package chat

import "context"

// Role identifies who produced a message in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one ordered conversation turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONObject constrains the provider to emit a single JSON object.
	JSONObject bool
}

// Response is a complete (non-streamed) completion.
type Response struct {
	Content   string
	Reasoning string
}

// StreamEvent is one incremental delta from a streamed completion. At most
// one of the delta fields is populated per event; Err terminates the stream.
type StreamEvent struct {
	ContentDelta   string
	ReasoningDelta string
	Done           bool
	Err            error
}

// Completer performs a single blocking completion call.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Streamer performs a streamed completion call, delivering deltas in
// arrival order on the returned channel. The channel is closed after the
// final (Done or Err) event.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
