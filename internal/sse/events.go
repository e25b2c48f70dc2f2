package sse

import (
	"encoding/json"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
)

// formatMessageStart builds the message_start event. output_tokens is
// always reported as 1, a lower-bound placeholder for the client
// regardless of the generator's real running count (spec §4.5).
func (g *Generator) formatMessageStart() string {
	payload := claude.MessageStartPayload{
		Type: claude.EventMessageStart,
		Message: claude.MessageHeader{
			ID:      g.messageID,
			Type:    "message",
			Role:    "assistant",
			Model:   g.modelName,
			Content: []any{},
			Usage: claude.Usage{
				InputTokens:  g.inputTokens,
				OutputTokens: 1,
			},
		},
	}
	return formatEvent(claude.EventMessageStart, payload)
}

func (g *Generator) formatContentBlockStart(index int, blockType string) string {
	text := ""
	payload := claude.ContentBlockStartPayload{
		Type:  claude.EventContentBlockStart,
		Index: index,
		ContentBlock: claude.ContentBlockHeader{
			Type: blockType,
			Text: &text,
		},
	}
	return formatEvent(claude.EventContentBlockStart, payload)
}

func (g *Generator) formatToolUseStart(index int, id, name string) string {
	payload := claude.ContentBlockStartPayload{
		Type:  claude.EventContentBlockStart,
		Index: index,
		ContentBlock: claude.ContentBlockHeader{
			Type:  "tool_use",
			ID:    id,
			Name:  name,
			Input: map[string]any{},
		},
	}
	return formatEvent(claude.EventContentBlockStart, payload)
}

func (g *Generator) formatContentBlockDeltaText(index int, text string) string {
	payload := claude.ContentBlockDeltaPayload{
		Type:  claude.EventContentBlockDelta,
		Index: index,
		Delta: claude.Delta{Type: "text_delta", Text: text},
	}
	return formatEvent(claude.EventContentBlockDelta, payload)
}

func (g *Generator) formatToolUseDelta(index int, args json.RawMessage) string {
	serialized := "{}"
	if len(args) > 0 {
		serialized = string(args)
	}
	payload := claude.ContentBlockDeltaPayload{
		Type:  claude.EventContentBlockDelta,
		Index: index,
		Delta: claude.Delta{Type: "input_json_delta", PartialJSON: serialized},
	}
	return formatEvent(claude.EventContentBlockDelta, payload)
}

func (g *Generator) formatContentBlockStop(index int) string {
	payload := claude.ContentBlockStopPayload{
		Type:  claude.EventContentBlockStop,
		Index: index,
	}
	return formatEvent(claude.EventContentBlockStop, payload)
}

func (g *Generator) formatMessageDelta(stopReason string) string {
	payload := claude.MessageDeltaPayload{
		Type: claude.EventMessageDelta,
		Delta: claude.MessageDeltaBody{
			StopReason: &stopReason,
		},
		Usage: claude.MessageDeltaUsage{OutputTokens: g.outputTokens},
	}
	return formatEvent(claude.EventMessageDelta, payload)
}

func (g *Generator) formatMessageStop() string {
	payload := claude.MessageStopPayload{Type: claude.EventMessageStop}
	return formatEvent(claude.EventMessageStop, payload)
}
