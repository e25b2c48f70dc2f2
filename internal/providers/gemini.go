package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
	"github.com/Davincible/gemini-claude-proxy/internal/correlation"
	"github.com/Davincible/gemini-claude-proxy/internal/gemini"
	"github.com/Davincible/gemini-claude-proxy/internal/metrics"
	"github.com/Davincible/gemini-claude-proxy/internal/streaming"
	"github.com/Davincible/gemini-claude-proxy/internal/toolcache"
	"github.com/Davincible/gemini-claude-proxy/internal/transform"

	"github.com/Davincible/gemini-claude-proxy/internal/sse"
)

// GeminiProvider translates between the client's Claude Messages dialect
// and the upstream streamGenerateContent dialect. Unlike the registry's
// other providers it owns real translation state: a tool-schema cache, a
// transformation-metrics counter set, and the process-wide tool-call
// correlation store, all shared across every request this process
// proxies.
type GeminiProvider struct {
	name     string
	endpoint string
	apiKey   string

	transformer    *transform.Transformer
	cache          *toolcache.Cache
	metrics        *metrics.ToolMetrics
	store          *correlation.Store
	logger         *slog.Logger
	autoTodoPrompt bool
}

func NewGeminiProvider() *GeminiProvider {
	cache := toolcache.New()
	m := metrics.New()
	store := correlation.New()
	logger := slog.Default().With("provider", "gemini")

	return &GeminiProvider{
		name:           "gemini",
		cache:          cache,
		metrics:        m,
		store:          store,
		logger:         logger,
		autoTodoPrompt: true,
		transformer:    transform.NewTransformer(store, cache, m, logger),
	}
}

// SetAutoTodoPrompt toggles the reminder injection described in
// internal/transform's Transform (spec §4.2 step 3). Called once at
// startup from the operator's configuration.
func (p *GeminiProvider) SetAutoTodoPrompt(enabled bool) {
	p.autoTodoPrompt = enabled
}

func (p *GeminiProvider) Name() string {
	return p.name
}

func (p *GeminiProvider) SupportsStreaming() bool {
	return true
}

func (p *GeminiProvider) GetEndpoint() string {
	if p.endpoint == "" {
		return "https://generativelanguage.googleapis.com/v1beta/models"
	}

	return p.endpoint
}

func (p *GeminiProvider) SetAPIKey(key string) {
	p.apiKey = key
}

func (p *GeminiProvider) IsStreaming(headers map[string][]string) bool {
	if contentType, ok := headers["Content-Type"]; ok {
		for _, ct := range contentType {
			if ct == "text/event-stream" || strings.Contains(ct, "stream") {
				return true
			}
		}
	}

	if transferEncoding, ok := headers["Transfer-Encoding"]; ok {
		for _, te := range transferEncoding {
			if te == "chunked" {
				return true
			}
		}
	}

	return false
}

// TransformRequest converts a client-dialect request body into the
// upstream request shape, delegating the actual field-by-field
// conversion to the shared transform package so the handler never has
// to duplicate this logic for the gemini provider.
func (p *GeminiProvider) TransformRequest(request []byte) ([]byte, error) {
	var req claude.Request
	if err := json.Unmarshal(request, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client request: %w", err)
	}

	if err := transform.Validate(&req); err != nil {
		return nil, err
	}

	geminiReq, err := p.transformer.Transform(&req, p.autoTodoPrompt)
	if err != nil {
		return nil, err
	}

	return json.Marshal(geminiReq)
}

// Transform converts one complete, non-streaming upstream response into
// a client-dialect message.
func (p *GeminiProvider) Transform(response []byte) ([]byte, error) {
	var env geminiEnvelope
	if err := json.Unmarshal(response, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Gemini response: %w", err)
	}

	if env.Error != nil {
		errResp := claude.Response{
			ID:    env.ResponseID,
			Type:  "error",
			Model: env.ModelVersion,
			Error: &claude.ErrorBody{
				Type:    p.mapGeminiErrorType(env.Error.Status),
				Message: env.Error.Message,
			},
		}
		return json.Marshal(errResp)
	}

	if len(env.Candidates) == 0 {
		return nil, errors.New("no candidates in Gemini response")
	}

	messageID := env.ResponseID
	if messageID == "" {
		messageID = "msg_" + uuid.NewString()
	}

	resp := transform.BuildResponse(messageID, env.ModelVersion, env.Candidates[0], env.UsageMetadata, p.store, "")
	return json.Marshal(resp)
}

// TransformStream satisfies the generic Provider interface for callers
// that still split upstream output into newline-delimited chunks before
// handing it to the provider. Gemini's real wire format is not
// newline-delimited (see TransformRawStream); this exists so
// GeminiProvider remains substitutable wherever a Provider is expected,
// and simply forwards to the same raw-stream state machine.
func (p *GeminiProvider) TransformStream(chunk []byte, state *StreamState) ([]byte, error) {
	return p.TransformRawStream(chunk, state)
}

// TransformRawStream feeds raw upstream response bytes (a fragment of
// the chunked, concatenated-JSON-array body) through the incremental
// parser and SSE generator, returning however many fully-formatted
// client SSE events that fragment completed. State is preserved on
// *StreamState across calls for the life of one connection.
func (p *GeminiProvider) TransformRawStream(chunk []byte, state *StreamState) ([]byte, error) {
	if state.GeminiParser == nil {
		state.GeminiParser = streaming.New(p.logger)
	}
	if state.GeminiGenerator == nil {
		model := state.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		state.GeminiGenerator = sse.New(model, p.store, state.ConversationID, p.logger)
	}

	chunks := state.GeminiParser.Feed(chunk)

	var out []byte
	for _, streamChunk := range chunks {
		for _, event := range state.GeminiGenerator.GenerateEvents(streamChunk) {
			out = append(out, []byte(event)...)
		}
	}

	return out, nil
}

// geminiEnvelope is the wire shape of one complete, non-streaming
// response: the same candidates/usage the streaming parser sees, plus
// the response-identifying and error fields only present at this level.
type geminiEnvelope struct {
	Candidates     []gemini.Candidate     `json:"candidates,omitempty"`
	UsageMetadata  *gemini.UsageMetadata  `json:"usageMetadata,omitempty"`
	PromptFeedback *gemini.PromptFeedback `json:"promptFeedback,omitempty"`
	ModelVersion   string                 `json:"modelVersion,omitempty"`
	ResponseID     string                 `json:"responseId,omitempty"`
	Error          *geminiError           `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (p *GeminiProvider) mapGeminiErrorType(geminiStatus string) string {
	mapping := map[string]string{
		"INVALID_ARGUMENT":   "invalid_request_error",
		"UNAUTHENTICATED":    "authentication_error",
		"PERMISSION_DENIED":  "permission_error",
		"NOT_FOUND":          "not_found_error",
		"RESOURCE_EXHAUSTED": "rate_limit_error",
		"INTERNAL":           MessageTypeAPIError,
		"UNAVAILABLE":        "overloaded_error",
		"DEADLINE_EXCEEDED":  "rate_limit_error",
	}

	if anthropicType, exists := mapping[geminiStatus]; exists {
		return anthropicType
	}

	return MessageTypeAPIError
}
