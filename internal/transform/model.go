package transform

import "strings"

// DefaultUpstreamModel is used whenever no provider-level default
// override is configured.
const DefaultUpstreamModel = "gemini-2.0-flash-exp"

// MapModelName implements spec §6's deterministic, total
// client-model → upstream-model function. Fuzzy substring matching on
// opus/sonnet/haiku collapses every client variant onto a small set of
// upstream models; anything else collapses onto defaultModel (or
// DefaultUpstreamModel if defaultModel is empty), matching "collapse
// every client model name onto a single upstream model".
func MapModelName(clientModel, defaultModel string) string {
	if defaultModel == "" {
		defaultModel = DefaultUpstreamModel
	}

	lower := strings.ToLower(clientModel)

	switch {
	case strings.Contains(lower, "opus"):
		return "gemini-1.5-pro"
	case strings.Contains(lower, "sonnet"):
		return defaultModel
	case strings.Contains(lower, "haiku"):
		return defaultModel
	default:
		return defaultModel
	}
}
