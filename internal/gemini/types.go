// Package gemini defines the wire types for the upstream
// streamGenerateContent dialect this proxy translates into.
package gemini

import "encoding/json"

// Request is the body sent to the upstream streamGenerateContent endpoint.
type Request struct {
	Contents          []Content          `json:"contents"`
	SystemInstruction *SystemInstruction `json:"systemInstruction,omitempty"`
	GenerationConfig  *GenerationConfig  `json:"generationConfig,omitempty"`
	Tools             []Tool             `json:"tools,omitempty"`
	SafetySettings    []SafetySetting    `json:"safetySettings,omitempty"`
}

// Content is one turn of the upstream conversation history.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// SystemInstruction wraps system-prompt parts the way upstream expects.
type SystemInstruction struct {
	Parts []Part `json:"parts"`
}

// Part is a tagged union of the upstream's content primitives. Exactly
// one of the pointer fields is set; MarshalJSON/UnmarshalJSON project to
// and from that shape.
type Part struct {
	Text             string
	HasText          bool
	ThoughtSignature string

	FunctionCall *FunctionCall
	InlineData   *InlineData
	FunctionResp *FunctionResponse
}

type partWire struct {
	Text             *string           `json:"text,omitempty"`
	ThoughtSignature string            `json:"thoughtSignature,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	InlineData       *InlineData       `json:"inlineData,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

func TextPart(text string) Part {
	return Part{Text: text, HasText: true}
}

func TextPartWithThought(text, signature string) Part {
	return Part{Text: text, HasText: true, ThoughtSignature: signature}
}

func FunctionCallPart(fc FunctionCall) Part {
	return Part{FunctionCall: &fc}
}

func FunctionCallPartWithThought(fc FunctionCall, signature string) Part {
	return Part{FunctionCall: &fc, ThoughtSignature: signature}
}

func FunctionResponsePart(fr FunctionResponse) Part {
	return Part{FunctionResp: &fr}
}

func (p Part) MarshalJSON() ([]byte, error) {
	w := partWire{
		ThoughtSignature: p.ThoughtSignature,
		FunctionCall:     p.FunctionCall,
		InlineData:       p.InlineData,
		FunctionResponse: p.FunctionResp,
	}
	if p.HasText {
		w.Text = &p.Text
	}
	return json.Marshal(w)
}

func (p *Part) UnmarshalJSON(data []byte) error {
	var w partWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Text != nil {
		p.Text = *w.Text
		p.HasText = true
	}
	p.ThoughtSignature = w.ThoughtSignature
	p.FunctionCall = w.FunctionCall
	p.InlineData = w.InlineData
	p.FunctionResp = w.FunctionResponse
	return nil
}

// IsFunctionCall reports whether this part carries a function call,
// regardless of whether a thought signature accompanies it.
func (p Part) IsFunctionCall() bool { return p.FunctionCall != nil }

// FunctionCall is a model-issued tool invocation.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse answers a prior FunctionCall.
type FunctionResponse struct {
	Name     string          `json:"name"`
	Response json.RawMessage `json:"response"`
}

// InlineData is base64-encoded binary content embedded in a part.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// GenerationConfig carries sampling/length parameters copied one-for-one
// from the client request.
type GenerationConfig struct {
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	TopK            *int     `json:"topK,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

// SafetySetting is passed through untouched; this proxy never sets one.
type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// Tool wraps one set of function declarations, always emitted as a
// single-element list per spec §4.2 step 6.
type Tool struct {
	FunctionDeclarations []FunctionDecl `json:"functionDeclarations"`
}

// FunctionDecl is a tool declaration translated into upstream's shape.
type FunctionDecl struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// StreamChunk is one element of the upstream's concatenated-JSON-array
// streaming response.
type StreamChunk struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Candidate is one generated alternative within a StreamChunk.
type Candidate struct {
	Content      *Content        `json:"content,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
	SafetyRating []SafetyRating  `json:"safetyRatings,omitempty"`
	Index        *int            `json:"index,omitempty"`
}

// UsageMetadata carries upstream's own token accounting, when present.
type UsageMetadata struct {
	PromptTokenCount     *int `json:"promptTokenCount,omitempty"`
	CandidatesTokenCount *int `json:"candidatesTokenCount,omitempty"`
	TotalTokenCount      *int `json:"totalTokenCount,omitempty"`
}

// PromptFeedback carries upstream safety-blocking metadata.
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
}

// HasFunctionCall reports whether any part of the candidate's content is
// a function call (spec §4.5 stop-reason override condition).
func (c Candidate) HasFunctionCall() bool {
	if c.Content == nil {
		return false
	}
	for _, p := range c.Content.Parts {
		if p.IsFunctionCall() {
			return true
		}
	}
	return false
}
