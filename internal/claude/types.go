// Package claude defines the wire types for the Claude Messages API
// dialect that clients of this proxy speak.
package claude

import "encoding/json"

// Request is the body of a POST /v1/messages call.
type Request struct {
	Model         string         `json:"model"`
	Messages      []Message      `json:"messages"`
	System        *SystemPrompt  `json:"system,omitempty"`
	MaxTokens     *int           `json:"max_tokens,omitempty"`
	Temperature   *float64       `json:"temperature,omitempty"`
	StopSequences []string       `json:"stop_sequences,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	TopK          *int           `json:"top_k,omitempty"`
	Tools         []ToolDecl     `json:"tools,omitempty"`
}

// Message is one entry in the conversation history. Content is either a
// bare string or an array of ContentBlock values; UnmarshalJSON handles
// both shapes and Blocks() always normalizes to the block form.
type Message struct {
	Role    string `json:"role"`
	Content Content
}

type messageWire struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	content, err := unmarshalContent(w.Content)
	if err != nil {
		return err
	}
	m.Role = w.Role
	m.Content = content
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	content, err := m.Content.marshal()
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageWire{Role: m.Role, Content: content})
}

// Content holds either a plain-text message body or a list of content
// blocks, mirroring the client dialect's untagged union.
type Content struct {
	Text   string
	Blocks []ContentBlock
	isText bool
}

func TextContent(text string) Content {
	return Content{Text: text, isText: true}
}

func BlocksContent(blocks []ContentBlock) Content {
	return Content{Blocks: blocks}
}

// IsText reports whether this content was given as a plain string.
func (c Content) IsText() bool { return c.isText }

// AsBlocks normalizes plain-text content into a single Text block so
// callers can always iterate a block list.
func (c Content) AsBlocks() []ContentBlock {
	if c.isText {
		return []ContentBlock{{Type: BlockText, Text: c.Text}}
	}
	return c.Blocks
}

func unmarshalContent(raw json.RawMessage) (Content, error) {
	if len(raw) == 0 {
		return Content{}, nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Content{}, err
		}
		return TextContent(s), nil
	default:
		var blocks []ContentBlock
		if err := json.Unmarshal(raw, &blocks); err != nil {
			return Content{}, err
		}
		return BlocksContent(blocks), nil
	}
}

func (c Content) marshal() (json.RawMessage, error) {
	if c.isText {
		return json.Marshal(c.Text)
	}
	return json.Marshal(c.Blocks)
}

// Block type discriminators.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
)

// ContentBlock is the tagged-union content block of the client dialect:
// Text, ToolUse, or ToolResult depending on Type.
type ContentBlock struct {
	Type string `json:"type"`

	// Text block.
	Text string `json:"text,omitempty"`

	// ToolUse block.
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// ToolResult block.
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   *bool  `json:"is_error,omitempty"`
}

// SystemPrompt is either a bare string or a list of text-only blocks.
type SystemPrompt struct {
	Text   string
	Blocks []ContentBlock
	isText bool
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		s.Text = str
		s.isText = true
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	s.Blocks = blocks
	return nil
}

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.isText {
		return json.Marshal(s.Text)
	}
	return json.Marshal(s.Blocks)
}

func (s SystemPrompt) IsText() bool { return s.isText }

// ToolDecl is a client-declared tool the model may call.
type ToolDecl struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	InputSchema JSONSchema `json:"input_schema"`
}

// JSONSchema is the whitelisted subset of JSON Schema this proxy
// understands. Fields outside this set are preserved on decode (in
// Additional) but are never re-emitted toward upstream.
type JSONSchema struct {
	Type        string                `json:"type"`
	Description string                `json:"description,omitempty"`
	Properties  map[string]*JSONSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Enum        []any                 `json:"enum,omitempty"`
	Items       *JSONSchema           `json:"items,omitempty"`
	Minimum     *float64              `json:"minimum,omitempty"`
	Maximum     *float64              `json:"maximum,omitempty"`
	Pattern     string                `json:"pattern,omitempty"`

	Additional map[string]any `json:"-"`
}

func (j *JSONSchema) UnmarshalJSON(data []byte) error {
	type alias JSONSchema
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*j = JSONSchema(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	known := map[string]bool{
		"type": true, "description": true, "properties": true, "required": true,
		"enum": true, "items": true, "minimum": true, "maximum": true, "pattern": true,
	}
	for k, v := range raw {
		if known[k] {
			continue
		}
		if j.Additional == nil {
			j.Additional = make(map[string]any)
		}
		var val any
		if err := json.Unmarshal(v, &val); err == nil {
			j.Additional[k] = val
		}
	}
	return nil
}

// MarshalJSON emits only the whitelisted fields (spec §4.3 / §8.7).
func (j JSONSchema) MarshalJSON() ([]byte, error) {
	m := map[string]any{"type": j.Type}
	if j.Description != "" {
		m["description"] = j.Description
	}
	if len(j.Properties) > 0 {
		m["properties"] = j.Properties
	}
	if len(j.Required) > 0 {
		m["required"] = j.Required
	}
	if len(j.Enum) > 0 {
		m["enum"] = j.Enum
	}
	if j.Items != nil {
		m["items"] = j.Items
	}
	if j.Minimum != nil {
		m["minimum"] = *j.Minimum
	}
	if j.Maximum != nil {
		m["maximum"] = *j.Maximum
	}
	if j.Pattern != "" {
		m["pattern"] = j.Pattern
	}
	return json.Marshal(m)
}
