package providers

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Davincible/gemini-claude-proxy/internal/sse"
	"github.com/Davincible/gemini-claude-proxy/internal/streaming"
)

// Provider interface defines the contract for all LLM providers
type Provider interface {
	Name() string
	SupportsStreaming() bool
	Transform(request []byte) ([]byte, error)
	TransformStream(chunk []byte, state *StreamState) ([]byte, error)
	IsStreaming(headers map[string][]string) bool
	GetEndpoint() string
	SetAPIKey(key string)
}

// RequestTransformer is implemented by providers whose upstream request
// body differs enough from the client dialect that the handler should
// delegate the conversion to the provider rather than forward the body
// untouched.
type RequestTransformer interface {
	TransformRequest(request []byte) ([]byte, error)
}

// RawByteStreamer is implemented by providers whose upstream streaming
// wire format is not newline-delimited "data: " SSE (e.g. a chunked,
// concatenated JSON array) and so must be fed raw response bytes
// directly rather than pre-split SSE lines.
type RawByteStreamer interface {
	TransformRawStream(chunk []byte, state *StreamState) ([]byte, error)
}

// StreamState tracks streaming conversion state
type StreamState struct {
	MessageStartSent bool
	MessageID        string
	Model            string
	ConversationID   string
	InitialUsage     map[string]interface{}

	// Content block tracking for multiple blocks (text, tool_use, etc.)
	ContentBlocks map[int]*ContentBlockState
	CurrentIndex  int

	// GeminiParser/GeminiGenerator hold the Gemini provider's
	// per-connection translation state, lazily initialized on the first
	// chunk of a given stream.
	GeminiParser    *streaming.Parser
	GeminiGenerator *sse.Generator
}

// ContentBlockState tracks individual content block state during streaming
type ContentBlockState struct {
	Type          string // "text" or "tool_use"
	StartSent     bool
	StopSent      bool
	ToolCallID    string // For tool_use blocks
	ToolCallIndex int    // OpenRouter tool call index for tracking across chunks
	ToolName      string // For tool_use blocks
	Arguments     string // Accumulated arguments for tool_use blocks
}

// Registry manages provider instances
type Registry struct {
	providers     map[string]Provider
	customDomains map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// SetDomainMappings installs operator-configured domain → provider-name
// overrides, consulted before the registry's built-in domain table so a
// self-hosted or proxied upstream endpoint can still resolve to a known
// provider.
func (r *Registry) SetDomainMappings(mappings map[string]string) {
	r.customDomains = mappings
}

// Register adds a provider to the registry
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// Get retrieves a provider by name
func (r *Registry) Get(name string) (Provider, bool) {
	provider, exists := r.providers[name]
	return provider, exists
}

// GetByDomain returns a provider based on the API base URL domain
func (r *Registry) GetByDomain(apiBase string) (Provider, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	domain := strings.ToLower(u.Hostname())

	if providerName, exists := r.customDomains[domain]; exists {
		if provider, found := r.Get(providerName); found {
			return provider, nil
		}
	}

	// Domain mapping to provider names
	domainProviderMap := map[string]string{
		"openrouter.ai":                     "openrouter",
		"api.openrouter.ai":                 "openrouter",
		"api.openai.com":                    "openai",
		"openai.com":                        "openai",
		"api.anthropic.com":                 "anthropic",
		"anthropic.com":                     "anthropic",
		"integrate.api.nvidia.com":          "nvidia",
		"api.nvidia.com":                    "nvidia",
		"generativelanguage.googleapis.com": "gemini",
		"googleapis.com":                    "gemini",
	}

	if providerName, exists := domainProviderMap[domain]; exists {
		if provider, found := r.Get(providerName); found {
			return provider, nil
		}
	}

	return nil, fmt.Errorf("no provider found for domain: %s", domain)
}

// List returns all registered provider names
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Initialize registers all built-in providers
func (r *Registry) Initialize() {
	r.Register(NewOpenRouterProvider())
	r.Register(NewOpenAIProvider())
	r.Register(NewAnthropicProvider())
	r.Register(NewNvidiaProvider())
	r.Register(NewGeminiProvider())
}
