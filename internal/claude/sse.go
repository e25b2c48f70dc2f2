package claude

// ToolUseIDPrefix is the client dialect's convention for synthetic
// tool-use identifiers (glossary: "a client-assigned identifier
// (toolu_<uuid>)").
const ToolUseIDPrefix = "toolu_"

// Event type names emitted on the client-facing SSE stream.
const (
	EventMessageStart      = "message_start"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Usage mirrors the client dialect's token-count object.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageStartPayload is the data object of a message_start event.
type MessageStartPayload struct {
	Type    string        `json:"type"`
	Message MessageHeader `json:"message"`
}

type MessageHeader struct {
	ID           string   `json:"id"`
	Type         string   `json:"type"`
	Role         string   `json:"role"`
	Model        string   `json:"model"`
	Content      []any    `json:"content"`
	StopReason   *string  `json:"stop_reason"`
	StopSequence *string  `json:"stop_sequence"`
	Usage        Usage    `json:"usage"`
}

// ContentBlockStartPayload is the data object of a content_block_start event.
type ContentBlockStartPayload struct {
	Type         string             `json:"type"`
	Index        int                `json:"index"`
	ContentBlock ContentBlockHeader `json:"content_block"`
}

// ContentBlockHeader describes the newly opened block: either a text
// block (Text populated) or a tool_use block (ID/Name/Input populated).
type ContentBlockHeader struct {
	Type  string         `json:"type"`
	Text  *string        `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// ContentBlockDeltaPayload is the data object of a content_block_delta event.
type ContentBlockDeltaPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Delta Delta  `json:"delta"`
}

// Delta is either a text_delta or an input_json_delta, discriminated by Type.
type Delta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ContentBlockStopPayload is the data object of a content_block_stop event.
type ContentBlockStopPayload struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// MessageDeltaPayload is the data object of a message_delta event.
type MessageDeltaPayload struct {
	Type  string          `json:"type"`
	Delta MessageDeltaBody `json:"delta"`
	Usage MessageDeltaUsage `json:"usage"`
}

type MessageDeltaBody struct {
	StopReason   *string `json:"stop_reason"`
	StopSequence *string `json:"stop_sequence"`
}

type MessageDeltaUsage struct {
	OutputTokens int `json:"output_tokens"`
}

// MessageStopPayload is the data object of a message_stop event.
type MessageStopPayload struct {
	Type string `json:"type"`
}

// ErrorPayload is the data object of a standalone error event.
type ErrorPayload struct {
	Type  string    `json:"type"`
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
