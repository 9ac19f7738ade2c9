package live

import "context"

// Chunk is one piece of realtime input: an audio buffer or a video frame.
type Chunk struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a model-issued request to invoke a declared tool.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolCallBatch is delivered as a single event from the session.
type ToolCallBatch struct {
	Calls []ToolCall
}

// ToolResponse answers one ToolCall by id.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// ToolResponseBatch answers a ToolCallBatch in one send.
type ToolResponseBatch struct {
	Responses []ToolResponse
}

// Transport is one realtime session with the conversational backend.
type Transport interface {
	Configure(cfg Config)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	SendRealtimeInput(chunk Chunk) error
	SendText(text string) error
	SendToolResponse(batch ToolResponseBatch) error
	ToolCalls() <-chan ToolCallBatch

	// Connected reports whether a session is currently open.
	Connected() bool
	// Drops receives the cause each time an open session ends without a
	// Disconnect call.
	Drops() <-chan error
}
