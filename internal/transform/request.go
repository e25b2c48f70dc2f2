package transform

import (
	"encoding/json"
	"log/slog"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
	"github.com/Davincible/gemini-claude-proxy/internal/metrics"
	"github.com/Davincible/gemini-claude-proxy/internal/toolcache"
)

// todoWriteReminder is appended to the last user message when
// auto-todo-prompt is enabled and the conversation just received a
// non-TodoWrite function response (spec §4.2 step 3).
const todoWriteReminder = "System reminder: you have just received tool results. " +
	"If you have not already done so, call the TodoWrite tool now to record or update your task list before continuing."

// Transformer holds the dependencies the request transformer needs:
// the correlation store for ToolResult → FunctionResponse lookups, the
// tool-schema cache, and the metrics counters that record lookup
// failures and tool-result processing (spec §4.2, §4.6, §4.7).
type Transformer struct {
	Store   *correlation.Store
	Cache   *toolcache.Cache
	Metrics *metrics.ToolMetrics
	Logger  *slog.Logger
}

// NewTransformer wires a Transformer from its three shared dependencies.
func NewTransformer(store *correlation.Store, cache *toolcache.Cache, m *metrics.ToolMetrics, logger *slog.Logger) *Transformer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transformer{Store: store, Cache: cache, Metrics: m, Logger: logger.With("component", "transform.request")}
}

// Transform implements spec §4.2's full algorithm: message-history
// pruning, per-message translation (including ToolResult lookup and
// ToolUse dropping), optional auto-todo-prompt injection, system-prompt
// translation, generation-config copy, and tool-schema conversion.
func (t *Transformer) Transform(req *claude.Request, autoTodoPrompt bool) (*gemini.Request, error) {
	messages := pruneHistory(req.Messages)

	contents := make([]gemini.Content, 0, len(messages))
	sawNonTodoFunctionResponse := false

	for _, msg := range messages {
		role, err := mapRole(msg.Role)
		if err != nil {
			return nil, err
		}

		parts := t.translateContent(msg.Content, role)
		if len(parts) == 0 {
			continue
		}

		for _, p := range parts {
			if p.FunctionResp != nil && p.FunctionResp.Name != "TodoWrite" {
				sawNonTodoFunctionResponse = true
			}
		}

		contents = append(contents, gemini.Content{Role: role, Parts: parts})
	}

	if autoTodoPrompt && sawNonTodoFunctionResponse {
		injectTodoReminder(contents)
	}

	upstream := &gemini.Request{
		Contents:          contents,
		SystemInstruction: convertSystemPrompt(req.System),
		GenerationConfig:  buildGenerationConfig(req),
	}

	if len(req.Tools) > 0 {
		tools, err := ConvertTools(t.Cache, t.Metrics, req.Tools)
		if err != nil {
			return nil, err
		}
		upstream.Tools = tools
	}

	return upstream, nil
}

// pruneHistory drops every intermediate user message once the
// conversation exceeds three messages (spec §4.2 step 1, scenario S5).
func pruneHistory(messages []claude.Message) []claude.Message {
	if len(messages) <= 3 {
		return messages
	}

	firstUser, lastUser := -1, -1
	for i, m := range messages {
		if m.Role == "user" {
			if firstUser == -1 {
				firstUser = i
			}
			lastUser = i
		}
	}

	pruned := make([]claude.Message, 0, len(messages))
	for i, m := range messages {
		if m.Role == "user" && i != firstUser && i != lastUser {
			continue
		}
		pruned = append(pruned, m)
	}
	return pruned
}

func mapRole(role string) (string, error) {
	switch role {
	case "assistant":
		return "model", nil
	case "user":
		return "user", nil
	default:
		return "", transformationError("invalid role: %s", role)
	}
}

// translateContent maps one message's content blocks to upstream parts,
// dropping assistant-authored ToolUse blocks and rewriting ToolResult
// blocks into FunctionResponse parts via the correlation store.
func (t *Transformer) translateContent(content claude.Content, upstreamRole string) []gemini.Part {
	blocks := content.AsBlocks()
	parts := make([]gemini.Part, 0, len(blocks))

	for _, block := range blocks {
		switch block.Type {
		case claude.BlockText:
			parts = append(parts, gemini.TextPart(block.Text))

		case claude.BlockToolUse:
			// Dropped: the upstream does not need the model's own prior
			// function calls echoed back in history (spec §4.2 step 2).
			continue

		case claude.BlockToolResult:
			parts = append(parts, t.translateToolResult(block))

		default:
			t.Logger.Warn("unsupported content block type", "type", block.Type)
		}
	}

	return parts
}

func (t *Transformer) translateToolResult(block claude.ContentBlock) gemini.Part {
	t.Metrics.RecordToolResult()

	name, ok := t.Store.GetFunctionName(block.ToolUseID)
	if !ok {
		t.Logger.Warn("no correlated function name for tool_use_id, using id as fallback",
			"tool_use_id", block.ToolUseID)
		t.Metrics.RecordStateLookupFailure()
		name = block.ToolUseID
	}

	isError := false
	if block.IsError != nil {
		isError = *block.IsError
	}

	response, _ := json.Marshal(map[string]any{
		"result": block.Content,
		"error":  isError,
	})

	return gemini.FunctionResponsePart(gemini.FunctionResponse{
		Name:     name,
		Response: response,
	})
}

// injectTodoReminder appends the reminder text part to the last
// user-role content entry (spec §4.2 step 3).
func injectTodoReminder(contents []gemini.Content) {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == "user" {
			contents[i].Parts = append(contents[i].Parts, gemini.TextPart(todoWriteReminder))
			return
		}
	}
}

func convertSystemPrompt(system *claude.SystemPrompt) *gemini.SystemInstruction {
	if system == nil {
		return nil
	}

	if system.IsText() {
		return &gemini.SystemInstruction{Parts: []gemini.Part{gemini.TextPart(system.Text)}}
	}

	var parts []gemini.Part
	for _, block := range system.Blocks {
		if block.Type == claude.BlockText {
			parts = append(parts, gemini.TextPart(block.Text))
		}
	}
	if len(parts) == 0 {
		return nil
	}
	return &gemini.SystemInstruction{Parts: parts}
}

func buildGenerationConfig(req *claude.Request) *gemini.GenerationConfig {
	return &gemini.GenerationConfig{
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		StopSequences:   req.StopSequences,
	}
}
