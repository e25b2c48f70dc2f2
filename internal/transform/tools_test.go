package transform

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/metrics"
	"github.com/Davincible/gemini-claude-proxy/internal/toolcache"
)

func TestConvertToolWhitelistsSchemaFields(t *testing.T) {
	cache := toolcache.New()
	tool := claude.ToolDecl{
		Name:        "get_weather",
		Description: "Gets the weather",
		InputSchema: claude.JSONSchema{
			Type: "object",
			Properties: map[string]*claude.JSONSchema{
				"city": {Type: "string"},
			},
			Required: []string{"city"},
		},
	}

	decl, err := ConvertTool(cache, tool)
	assert.NoError(t, err)
	assert.Equal(t, "get_weather", decl.Name)

	var params map[string]any
	assert.NoError(t, json.Unmarshal(decl.Parameters, &params))
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params, "properties")
	assert.Contains(t, params, "required")
}

func TestConvertToolIsCached(t *testing.T) {
	cache := toolcache.New()
	tool := claude.ToolDecl{Name: "f", Description: "d", InputSchema: claude.JSONSchema{Type: "object"}}

	_, err := ConvertTool(cache, tool)
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	_, err = ConvertTool(cache, tool)
	assert.NoError(t, err)
	assert.Equal(t, 1, cache.Len())
}

func TestConvertToolsWrapsAsSingleElementList(t *testing.T) {
	cache := toolcache.New()
	m := metrics.New()
	tools := []claude.ToolDecl{
		{Name: "a", Description: "d", InputSchema: claude.JSONSchema{Type: "object"}},
		{Name: "b", Description: "d", InputSchema: claude.JSONSchema{Type: "object"}},
	}

	upstream, err := ConvertTools(cache, m, tools)
	assert.NoError(t, err)
	assert.Len(t, upstream, 1)
	assert.Len(t, upstream[0].FunctionDeclarations, 2)
	assert.Equal(t, uint64(1), m.Snapshot().TotalCalls)
	assert.Equal(t, uint64(1), m.Snapshot().SuccessfulTransformations)
}
