package transform

import (
	"strings"

	"github.com/google/uuid"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

// BuildResponse converts one complete (non-streaming) upstream candidate
// into a client-dialect Response, registering any function calls with
// store the same way the streaming generator does so a later tool_result
// can still be correlated back to its function name (spec §4.6).
func BuildResponse(messageID, modelName string, candidate gemini.Candidate, usage *gemini.UsageMetadata, store *correlation.Store, conversationID string) claude.Response {
	resp := claude.Response{
		ID:    messageID,
		Type:  "message",
		Role:  "assistant",
		Model: modelName,
	}

	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			switch {
			case part.IsFunctionCall():
				toolUseID := claude.ToolUseIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
				var sigPtr *string
				if part.ThoughtSignature != "" {
					sigPtr = &part.ThoughtSignature
				}
				store.Register(toolUseID, part.FunctionCall.Name, sigPtr, part.FunctionCall.Args, conversationID)
				resp.Content = append(resp.Content, claude.ContentBlock{
					Type:  claude.BlockToolUse,
					ID:    toolUseID,
					Name:  part.FunctionCall.Name,
					Input: part.FunctionCall.Args,
				})

			case part.HasText:
				resp.Content = append(resp.Content, claude.ContentBlock{
					Type: claude.BlockText,
					Text: part.Text,
				})
			}
		}
	}

	if len(resp.Content) == 0 {
		resp.Content = append(resp.Content, claude.ContentBlock{Type: claude.BlockText, Text: ""})
	}

	stopReason := determineStopReason(candidate)
	resp.StopReason = &stopReason

	if usage != nil {
		u := claude.Usage{}
		if usage.PromptTokenCount != nil {
			u.InputTokens = *usage.PromptTokenCount
		}
		if usage.CandidatesTokenCount != nil {
			u.OutputTokens = *usage.CandidatesTokenCount
		}
		resp.Usage = &u
	}

	return resp
}

func determineStopReason(candidate gemini.Candidate) string {
	if candidate.HasFunctionCall() {
		return "tool_use"
	}
	return MapFinishReason(candidate.FinishReason)
}
