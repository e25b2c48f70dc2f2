// Package sse implements the per-connection SSE event generator state
// machine that lifts parsed upstream stream chunks into a legal
// Claude-style SSE event sequence (spec §4.5).
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
	"github.com/Davincible/gemini-claude-proxy/internal/transform"
)

// state is the generator's position in the spec §4.5 transition table.
type state int

const (
	stateFresh state = iota
	stateOpen
	stateDone
)

// Generator is a per-connection state machine. It is owned exclusively
// by one request goroutine for the life of that connection and is not
// safe for concurrent use from multiple goroutines (spec §5); the
// embedded mutex exists only to let the inspection helpers (TokenCounts,
// HeaderSent) be called safely from tests and diagnostics.
type Generator struct {
	mu sync.Mutex

	st                state
	headerSent        bool
	inputTokens       int
	outputTokens      int
	modelName         string
	contentBlockIndex int
	messageID         string

	store          *correlation.Store
	conversationID string
	logger         *slog.Logger
}

// New returns a Generator for one connection using the given model name
// and correlation store.
func New(modelName string, store *correlation.Store, conversationID string, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		st:             stateFresh,
		modelName:      modelName,
		messageID:      "msg_" + uuid.NewString(),
		store:          store,
		conversationID: conversationID,
		logger:         logger.With("component", "sse.generator"),
	}
}

// GenerateEvents advances the state machine by one upstream chunk and
// returns the ordered list of fully-formatted SSE event strings to
// write to the client (spec §4.5 transition table).
func (g *Generator) GenerateEvents(chunk gemini.StreamChunk) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var events []string

	if chunk.UsageMetadata != nil {
		if chunk.UsageMetadata.PromptTokenCount != nil {
			g.inputTokens = *chunk.UsageMetadata.PromptTokenCount
		}
		if chunk.UsageMetadata.CandidatesTokenCount != nil {
			g.outputTokens = *chunk.UsageMetadata.CandidatesTokenCount
		}
	}

	if len(chunk.Candidates) == 0 {
		return events
	}
	candidate := chunk.Candidates[0]

	functionCallEmittedThisChunk := false

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.IsFunctionCall():
				if !g.headerSent {
					events = append(events, g.emitHeader()...)
				}
				events = append(events, g.emitFunctionCall(*part.FunctionCall, part.ThoughtSignature, part.ThoughtSignature != "")...)
				functionCallEmittedThisChunk = true

			case part.HasText:
				if strings.TrimSpace(part.Text) == "" {
					continue
				}
				if !g.headerSent {
					events = append(events, g.emitHeader()...)
				}
				g.outputTokens += estimateTokens(part.Text)
				events = append(events, g.formatContentBlockDeltaText(0, part.Text))

			case part.InlineData != nil:
				// Inline binary data from the model is not surfaced on the
				// client SSE stream; nothing to emit.

			case part.FunctionResp != nil:
				g.logger.Warn("unexpected functionResponse part in model output")
			}
		}
	}

	if candidate.FinishReason != "" {
		if !g.headerSent {
			// Fresh → Done: immediate finish with no content (spec §4.5
			// last Fresh row).
			events = append(events, g.emitHeader()...)
		}

		stopReason := g.determineStopReason(candidate, functionCallEmittedThisChunk)

		if !functionCallEmittedThisChunk {
			events = append(events, g.formatContentBlockStop(0))
		}

		events = append(events, g.formatMessageDelta(stopReason))
		events = append(events, g.formatMessageStop())
		g.st = stateDone
	}

	return events
}

// emitHeader sends the deferred message_start + content_block_start(0)
// pair the first time meaningful content (or an immediate finish) is
// observed (spec §4.5 Fresh → Open transition).
func (g *Generator) emitHeader() []string {
	g.headerSent = true
	g.st = stateOpen
	return []string{
		g.formatMessageStart(),
		g.formatContentBlockStart(0, "text"),
	}
}

// emitFunctionCall handles the Open + FunctionCall transition: a new
// content-block index is allocated, start/delta/stop are all emitted in
// this one step, and the call is registered in the correlation store
// (spec §4.5 row 3).
func (g *Generator) emitFunctionCall(fc gemini.FunctionCall, thoughtSignature string, hasSignature bool) []string {
	g.contentBlockIndex++
	index := g.contentBlockIndex

	toolUseID := claude.ToolUseIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")

	var sigPtr *string
	if hasSignature {
		sigPtr = &thoughtSignature
	}
	g.store.Register(toolUseID, fc.Name, sigPtr, fc.Args, g.conversationID)

	return []string{
		g.formatToolUseStart(index, toolUseID, fc.Name),
		g.formatToolUseDelta(index, fc.Args),
		g.formatContentBlockStop(index),
	}
}

// determineStopReason applies spec §4.5's priority: a function call
// present anywhere in this chunk always overrides to tool_use.
func (g *Generator) determineStopReason(candidate gemini.Candidate, functionCallThisChunk bool) string {
	if functionCallThisChunk || candidate.HasFunctionCall() {
		return "tool_use"
	}
	switch candidate.FinishReason {
	case "", "STOP", "MAX_TOKENS", "SAFETY", "RECITATION", "OTHER":
	default:
		g.logger.Warn("unknown upstream finish reason, defaulting to end_turn", "reason", candidate.FinishReason)
	}
	return transform.MapFinishReason(candidate.FinishReason)
}

// estimateTokens approximates output tokens for one emitted text delta
// when upstream omits usage counts (spec §4.5 token accounting,
// resolved Open Question #3 in DESIGN.md).
func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// TokenCounts returns the generator's current (input, output) token
// counts, for diagnostics and final usage reporting.
func (g *Generator) TokenCounts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inputTokens, g.outputTokens
}

// HeaderSent reports whether message_start has already been emitted.
func (g *Generator) HeaderSent() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.headerSent
}

// FormatError is a standalone formatter for upstream-failure SSE
// frames, usable even before any chunk has been processed (spec §4.5
// "Error events").
func FormatError(kind, message string) string {
	payload := claude.ErrorPayload{
		Type: "error",
		Error: claude.ErrorBody{
			Type:    kind,
			Message: message,
		},
	}
	return formatEvent(claude.EventError, payload)
}

func formatEvent(eventType string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return "event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"internal\",\"message\":\"failed to marshal event\"}}\n\n"
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(data))
}
