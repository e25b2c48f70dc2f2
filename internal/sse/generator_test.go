package sse

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

func textChunk(text string) gemini.StreamChunk {
	return gemini.StreamChunk{
		Candidates: []gemini.Candidate{
			{Content: &gemini.Content{Role: "model", Parts: []gemini.Part{gemini.TextPart(text)}}},
		},
	}
}

func finishChunk(reason string) gemini.StreamChunk {
	return gemini.StreamChunk{Candidates: []gemini.Candidate{{FinishReason: reason}}}
}

func eventNames(events []string) []string {
	var names []string
	for _, e := range events {
		for _, line := range strings.Split(e, "\n") {
			if strings.HasPrefix(line, "event: ") {
				names = append(names, strings.TrimPrefix(line, "event: "))
			}
		}
	}
	return names
}

func TestGeneratorPlainTextFlow(t *testing.T) {
	g := New("gemini-2.0-flash-exp", correlation.New(), "conv1", nil)

	e1 := g.GenerateEvents(textChunk("Hello"))
	assert.Equal(t, []string{"message_start", "content_block_start", "content_block_delta"}, eventNames(e1))

	e2 := g.GenerateEvents(textChunk(" world"))
	assert.Equal(t, []string{"content_block_delta"}, eventNames(e2))

	e3 := g.GenerateEvents(finishChunk("STOP"))
	assert.Equal(t, []string{"content_block_stop", "message_delta", "message_stop"}, eventNames(e3))
}

func TestGeneratorFragmentedTextKeepsSameFramingAsWhole(t *testing.T) {
	g1 := New("m", correlation.New(), "c", nil)
	var whole []string
	whole = append(whole, g1.GenerateEvents(textChunk("Hello world"))...)
	whole = append(whole, g1.GenerateEvents(finishChunk("STOP"))...)

	g2 := New("m", correlation.New(), "c", nil)
	var fragmented []string
	fragmented = append(fragmented, g2.GenerateEvents(textChunk("Hello"))...)
	fragmented = append(fragmented, g2.GenerateEvents(textChunk(" world"))...)
	fragmented = append(fragmented, g2.GenerateEvents(finishChunk("STOP"))...)

	assert.Equal(t, eventNames(whole), []string{"message_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"})
	assert.Equal(t, eventNames(whole)[:2], eventNames(fragmented)[:2])
	assert.Equal(t, eventNames(whole)[len(eventNames(whole))-3:], eventNames(fragmented)[len(eventNames(fragmented))-3:])
}

func TestGeneratorFunctionCallFlow(t *testing.T) {
	store := correlation.New()
	g := New("m", store, "conv1", nil)

	chunk := gemini.StreamChunk{
		Candidates: []gemini.Candidate{
			{
				Content: &gemini.Content{
					Role: "model",
					Parts: []gemini.Part{
						gemini.FunctionCallPart(gemini.FunctionCall{Name: "get_weather", Args: json.RawMessage(`{"city":"sf"}`)}),
					},
				},
				FinishReason: "STOP",
			},
		},
	}

	events := g.GenerateEvents(chunk)
	names := eventNames(events)
	assert.Equal(t, []string{"message_start", "content_block_start", "content_block_start", "content_block_delta", "content_block_stop", "message_delta", "message_stop"}, names)

	assert.Equal(t, 1, store.Len())

	var stopReasonFound bool
	for _, e := range events {
		if strings.Contains(e, `"stop_reason":"tool_use"`) {
			stopReasonFound = true
		}
	}
	assert.True(t, stopReasonFound)
}

func TestGeneratorImmediateFinishWithNoContent(t *testing.T) {
	g := New("m", correlation.New(), "c", nil)
	events := g.GenerateEvents(finishChunk("STOP"))
	names := eventNames(events)
	assert.Equal(t, []string{"message_start", "content_block_start", "content_block_stop", "message_delta", "message_stop"}, names)
}

func TestGeneratorFinishReasonMapping(t *testing.T) {
	cases := map[string]string{
		"STOP":       "end_turn",
		"MAX_TOKENS": "max_tokens",
		"SAFETY":     "stop_sequence",
		"RECITATION": "stop_sequence",
		"OTHER":      "end_turn",
		"":           "end_turn",
		"WEIRD":      "end_turn",
	}
	for reason, expected := range cases {
		g := New("m", correlation.New(), "c", nil)
		events := g.GenerateEvents(finishChunk(reason))
		found := false
		for _, e := range events {
			if strings.Contains(e, `"stop_reason":"`+expected+`"`) {
				found = true
			}
		}
		assert.True(t, found, "reason %s should map to %s", reason, expected)
	}
}

func TestGeneratorUsageMetadataUpdatesTokenCounts(t *testing.T) {
	g := New("m", correlation.New(), "c", nil)
	promptTokens := 42
	chunk := textChunk("hi")
	chunk.UsageMetadata = &gemini.UsageMetadata{PromptTokenCount: &promptTokens}

	g.GenerateEvents(chunk)
	in, _ := g.TokenCounts()
	assert.Equal(t, 42, in)
}

func TestGeneratorSkipsEmptyWhitespaceTextParts(t *testing.T) {
	g := New("m", correlation.New(), "c", nil)
	events := g.GenerateEvents(textChunk("   "))
	assert.Empty(t, events)
	assert.False(t, g.HeaderSent())
}

func TestFormatErrorProducesWellFormedSSE(t *testing.T) {
	event := FormatError("upstream_error", "boom")
	assert.True(t, strings.HasPrefix(event, "event: error\n"))
	assert.Contains(t, event, `"type":"upstream_error"`)
	assert.Contains(t, event, `"message":"boom"`)
	assert.True(t, strings.HasSuffix(event, "\n\n"))
}

func TestGeneratorContentBlockIndexMonotonic(t *testing.T) {
	g := New("m", correlation.New(), "c", nil)
	chunk := gemini.StreamChunk{
		Candidates: []gemini.Candidate{
			{
				Content: &gemini.Content{
					Parts: []gemini.Part{
						gemini.FunctionCallPart(gemini.FunctionCall{Name: "a", Args: json.RawMessage(`{}`)}),
						gemini.FunctionCallPart(gemini.FunctionCall{Name: "b", Args: json.RawMessage(`{}`)}),
					},
				},
			},
		},
	}
	events := g.GenerateEvents(chunk)
	var indices []int
	for _, e := range events {
		if strings.Contains(e, `"type":"content_block_start"`) {
			var payload struct {
				Index int `json:"index"`
			}
			for _, line := range strings.Split(e, "\n") {
				if strings.HasPrefix(line, "data: ") {
					_ = json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &payload)
					indices = append(indices, payload.Index)
				}
			}
		}
	}
	for i := 1; i < len(indices); i++ {
		assert.Greater(t, indices[i], indices[i-1])
	}
}
