package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
)

func TestBuildResponseText(t *testing.T) {
	store := correlation.New()
	candidate := gemini.Candidate{
		Content:      &gemini.Content{Role: "model", Parts: []gemini.Part{gemini.TextPart("hello")}},
		FinishReason: "STOP",
	}

	resp := BuildResponse("msg_1", "gemini-2.0-flash-exp", candidate, nil, store, "conv-1")

	assert.Equal(t, "msg_1", resp.ID)
	assert.Equal(t, "message", resp.Type)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, claude.BlockText, resp.Content[0].Type)
	assert.Equal(t, "hello", resp.Content[0].Text)
	require.NotNil(t, resp.StopReason)
	assert.Equal(t, "end_turn", *resp.StopReason)
}

func TestBuildResponseEmptyContentFallsBackToEmptyText(t *testing.T) {
	store := correlation.New()
	candidate := gemini.Candidate{FinishReason: "STOP"}

	resp := BuildResponse("msg_1", "gemini-2.0-flash-exp", candidate, nil, store, "")

	require.Len(t, resp.Content, 1)
	assert.Equal(t, claude.BlockText, resp.Content[0].Type)
	assert.Equal(t, "", resp.Content[0].Text)
}

func TestBuildResponseFunctionCallRegistersCorrelation(t *testing.T) {
	store := correlation.New()
	args := json.RawMessage(`{"location":"sf"}`)
	candidate := gemini.Candidate{
		Content: &gemini.Content{Role: "model", Parts: []gemini.Part{
			gemini.FunctionCallPart(gemini.FunctionCall{Name: "get_weather", Args: args}),
		}},
	}

	resp := BuildResponse("msg_1", "gemini-2.0-flash-exp", candidate, nil, store, "conv-1")

	require.Len(t, resp.Content, 1)
	block := resp.Content[0]
	assert.Equal(t, claude.BlockToolUse, block.Type)
	assert.Equal(t, "get_weather", block.Name)
	require.NotNil(t, resp.StopReason)
	assert.Equal(t, "tool_use", *resp.StopReason)

	name, ok := store.GetFunctionName(block.ID)
	require.True(t, ok)
	assert.Equal(t, "get_weather", name)
}

// Two candidates whose first (and only) part is a function call must not
// collide in the shared correlation store: each needs its own tool-use id.
func TestBuildResponseFunctionCallIDsAreUnique(t *testing.T) {
	store := correlation.New()
	makeCandidate := func(name string) gemini.Candidate {
		return gemini.Candidate{
			Content: &gemini.Content{Role: "model", Parts: []gemini.Part{
				gemini.FunctionCallPart(gemini.FunctionCall{Name: name, Args: json.RawMessage(`{}`)}),
			}},
		}
	}

	respA := BuildResponse("msg_a", "gemini-2.0-flash-exp", makeCandidate("tool_a"), nil, store, "conv-a")
	respB := BuildResponse("msg_b", "gemini-2.0-flash-exp", makeCandidate("tool_b"), nil, store, "conv-b")

	idA := respA.Content[0].ID
	idB := respB.Content[0].ID
	assert.NotEqual(t, idA, idB)

	nameA, ok := store.GetFunctionName(idA)
	require.True(t, ok)
	assert.Equal(t, "tool_a", nameA)

	nameB, ok := store.GetFunctionName(idB)
	require.True(t, ok)
	assert.Equal(t, "tool_b", nameB)
}

func TestBuildResponseUsage(t *testing.T) {
	store := correlation.New()
	prompt, completion := 10, 20
	usage := &gemini.UsageMetadata{PromptTokenCount: &prompt, CandidatesTokenCount: &completion}
	candidate := gemini.Candidate{Content: &gemini.Content{Parts: []gemini.Part{gemini.TextPart("hi")}}}

	resp := BuildResponse("msg_1", "gemini-2.0-flash-exp", candidate, usage, store, "")

	require.NotNil(t, resp.Usage)
	assert.Equal(t, 10, resp.Usage.InputTokens)
	assert.Equal(t, 20, resp.Usage.OutputTokens)
}
