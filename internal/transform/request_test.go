package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/metrics"
	"github.com/Davincible/gemini-claude-proxy/internal/toolcache"
)

func newTransformer() *Transformer {
	return NewTransformer(correlation.New(), toolcache.New(), metrics.New(), nil)
}

func TestTransformSimpleTextMessage(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("hello")},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Len(t, upstream.Contents, 1)
	assert.Equal(t, "user", upstream.Contents[0].Role)
	assert.True(t, upstream.Contents[0].Parts[0].HasText)
	assert.Equal(t, "hello", upstream.Contents[0].Parts[0].Text)
}

func TestTransformMapsAssistantRoleToModel(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("hi")},
			{Role: "assistant", Content: claude.TextContent("hello")},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Equal(t, "model", upstream.Contents[1].Role)
}

func TestTransformInvalidRoleReturnsTransformationError(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "system", Content: claude.TextContent("bad")},
		},
	}

	_, err := tr.Transform(req, false)
	assert.Error(t, err)
	assert.Equal(t, KindTransformation, err.(*Error).Kind)
}

func TestTransformDropsAssistantToolUseBlocks(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("hi")},
			{Role: "assistant", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockText, Text: "let me check"},
				{Type: claude.BlockToolUse, ID: "toolu_1", Name: "search", Input: json.RawMessage(`{}`)},
			})},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Len(t, upstream.Contents[1].Parts, 1)
	assert.Equal(t, "let me check", upstream.Contents[1].Parts[0].Text)
}

func TestTransformToolResultFollowUpUsesCorrelationStore(t *testing.T) {
	store := correlation.New()
	store.Register("toolu_1", "get_weather", nil, json.RawMessage(`{"city":"sf"}`), "")
	tr := NewTransformer(store, toolcache.New(), metrics.New(), nil)

	isError := false
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("what's the weather")},
			{Role: "assistant", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolUse, ID: "toolu_1", Name: "get_weather", Input: json.RawMessage(`{"city":"sf"}`)},
			})},
			{Role: "user", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolResult, ToolUseID: "toolu_1", Content: "sunny", IsError: &isError},
			})},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)

	last := upstream.Contents[len(upstream.Contents)-1]
	assert.NotNil(t, last.Parts[0].FunctionResp)
	assert.Equal(t, "get_weather", last.Parts[0].FunctionResp.Name)

	var resp map[string]any
	assert.NoError(t, json.Unmarshal(last.Parts[0].FunctionResp.Response, &resp))
	assert.Equal(t, "sunny", resp["result"])
	assert.Equal(t, false, resp["error"])
}

func TestTransformToolResultMissingCorrelationFallsBackToID(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("hi")},
			{Role: "assistant", Content: claude.TextContent("ok")},
			{Role: "user", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolResult, ToolUseID: "toolu_unknown", Content: "result"},
			})},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	last := upstream.Contents[len(upstream.Contents)-1]
	assert.Equal(t, "toolu_unknown", last.Parts[0].FunctionResp.Name)
	assert.Equal(t, uint64(1), tr.Metrics.Snapshot().StateLookupFailures)
}

func TestTransformPrunesIntermediateUserMessages(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("first")},
			{Role: "assistant", Content: claude.TextContent("r1")},
			{Role: "user", Content: claude.TextContent("middle")},
			{Role: "assistant", Content: claude.TextContent("r2")},
			{Role: "user", Content: claude.TextContent("last")},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Len(t, upstream.Contents, 4)
	assert.Equal(t, "first", upstream.Contents[0].Parts[0].Text)
	assert.Equal(t, "last", upstream.Contents[3].Parts[0].Text)
}

func TestTransformDoesNotPruneShortHistory(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("a")},
			{Role: "assistant", Content: claude.TextContent("b")},
			{Role: "user", Content: claude.TextContent("c")},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Len(t, upstream.Contents, 3)
}

func TestTransformInjectsAutoTodoReminderAfterNonTodoFunctionResponse(t *testing.T) {
	store := correlation.New()
	store.Register("toolu_1", "search", nil, nil, "")
	tr := NewTransformer(store, toolcache.New(), metrics.New(), nil)

	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("go find it")},
			{Role: "assistant", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolUse, ID: "toolu_1", Name: "search"},
			})},
			{Role: "user", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolResult, ToolUseID: "toolu_1", Content: "found"},
			})},
		},
	}

	upstream, err := tr.Transform(req, true)
	assert.NoError(t, err)
	last := upstream.Contents[len(upstream.Contents)-1]
	assert.Len(t, last.Parts, 2)
	assert.True(t, last.Parts[1].HasText)
	assert.Contains(t, last.Parts[1].Text, "TodoWrite")
}

func TestTransformSkipsTodoReminderWhenDisabled(t *testing.T) {
	store := correlation.New()
	store.Register("toolu_1", "search", nil, nil, "")
	tr := NewTransformer(store, toolcache.New(), metrics.New(), nil)

	req := &claude.Request{
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("go find it")},
			{Role: "assistant", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolUse, ID: "toolu_1", Name: "search"},
			})},
			{Role: "user", Content: claude.BlocksContent([]claude.ContentBlock{
				{Type: claude.BlockToolResult, ToolUseID: "toolu_1", Content: "found"},
			})},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	last := upstream.Contents[len(upstream.Contents)-1]
	assert.Len(t, last.Parts, 1)
}

func TestTransformConvertsSystemPromptText(t *testing.T) {
	tr := newTransformer()
	system := &claude.SystemPrompt{}
	_ = system
	req := &claude.Request{
		Messages: []claude.Message{{Role: "user", Content: claude.TextContent("hi")}},
	}
	var sys claude.SystemPrompt
	assert.NoError(t, json.Unmarshal([]byte(`"You are a helpful assistant"`), &sys))
	req.System = &sys

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.NotNil(t, upstream.SystemInstruction)
	assert.Equal(t, "You are a helpful assistant", upstream.SystemInstruction.Parts[0].Text)
}

func TestTransformCopiesGenerationConfig(t *testing.T) {
	tr := newTransformer()
	maxTokens := 1024
	temp := 0.5
	req := &claude.Request{
		Messages:    []claude.Message{{Role: "user", Content: claude.TextContent("hi")}},
		MaxTokens:   &maxTokens,
		Temperature: &temp,
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Equal(t, &maxTokens, upstream.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, &temp, upstream.GenerationConfig.Temperature)
}

func TestTransformIncludesTools(t *testing.T) {
	tr := newTransformer()
	req := &claude.Request{
		Messages: []claude.Message{{Role: "user", Content: claude.TextContent("hi")}},
		Tools: []claude.ToolDecl{
			{Name: "search", Description: "d", InputSchema: claude.JSONSchema{Type: "object"}},
		},
	}

	upstream, err := tr.Transform(req, false)
	assert.NoError(t, err)
	assert.Len(t, upstream.Tools, 1)
	assert.Len(t, upstream.Tools[0].FunctionDeclarations, 1)
}
