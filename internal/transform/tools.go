package transform

import (
	"encoding/json"
	"time"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
	"github.com/Davincible/gemini-claude-proxy/internal/metrics"
	"github.com/Davincible/gemini-claude-proxy/internal/toolcache"
)

// ConvertTool converts a single client tool declaration into upstream's
// FunctionDecl shape, memoizing the result in cache (spec §4.3). It is
// structural copy with a field rename: input_schema → parameters, and
// the nested JSONSchema's own MarshalJSON already whitelists fields.
func ConvertTool(cache *toolcache.Cache, tool claude.ToolDecl) (gemini.FunctionDecl, error) {
	if decl, ok := cache.Get(tool.Name); ok {
		return decl, nil
	}

	params, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return gemini.FunctionDecl{}, transformationError("marshal schema for tool %s: %v", tool.Name, err)
	}

	decl := gemini.FunctionDecl{
		Name:        tool.Name,
		Description: tool.Description,
		Parameters:  params,
	}
	cache.Put(tool.Name, decl)
	return decl, nil
}

// MapFinishReason translates an upstream finishReason into the client
// dialect's stop_reason vocabulary (spec §4.5's stop-reason table). It
// is shared by the non-streaming response builder and the streaming
// SSE generator so both dialects agree on one mapping.
func MapFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	case "SAFETY", "RECITATION":
		return "stop_sequence"
	case "OTHER", "":
		return "end_turn"
	default:
		return "end_turn"
	}
}

// ConvertTools converts an entire tool list and always wraps the result
// as the single-element upstream tools list (spec §4.2 step 6).
func ConvertTools(cache *toolcache.Cache, m *metrics.ToolMetrics, tools []claude.ToolDecl) ([]gemini.Tool, error) {
	start := time.Now()

	decls := make([]gemini.FunctionDecl, 0, len(tools))
	for _, tool := range tools {
		decl, err := ConvertTool(cache, tool)
		if err != nil {
			m.RecordFailure()
			return nil, err
		}
		decls = append(decls, decl)
	}

	m.RecordTransformation(time.Since(start))
	return []gemini.Tool{{FunctionDeclarations: decls}}, nil
}
