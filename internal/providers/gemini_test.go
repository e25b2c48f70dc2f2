package providers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiProvider_BasicMethods(t *testing.T) {
	provider := NewGeminiProvider()

	assert.Equal(t, "gemini", provider.Name())
	assert.True(t, provider.SupportsStreaming())

	provider.SetAPIKey("test-key")
	assert.Equal(t, "test-key", provider.apiKey)
}

func TestGeminiProvider_IsStreaming(t *testing.T) {
	provider := NewGeminiProvider()

	tests := []struct {
		name     string
		headers  map[string][]string
		expected bool
	}{
		{
			name: "content-type event-stream",
			headers: map[string][]string{
				"Content-Type": {"text/event-stream"},
			},
			expected: true,
		},
		{
			name: "transfer-encoding chunked",
			headers: map[string][]string{
				"Transfer-Encoding": {"chunked"},
			},
			expected: true,
		},
		{
			name: "no streaming headers",
			headers: map[string][]string{
				"Content-Type": {"application/json"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := provider.IsStreaming(tt.headers)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestGeminiProvider_TransformRequest(t *testing.T) {
	provider := NewGeminiProvider()

	maxTokens := 1024
	clientReq := map[string]interface{}{
		"model":      "claude-3-5-sonnet-20241022",
		"max_tokens": maxTokens,
		"messages": []map[string]interface{}{
			{"role": "user", "content": "hello there"},
		},
	}
	body, err := json.Marshal(clientReq)
	require.NoError(t, err)

	out, err := provider.TransformRequest(body)
	require.NoError(t, err)

	var geminiReq map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &geminiReq))

	contents, ok := geminiReq["contents"].([]interface{})
	require.True(t, ok)
	require.Len(t, contents, 1)

	first := contents[0].(map[string]interface{})
	assert.Equal(t, "user", first["role"])
}

func TestGeminiProvider_Transform(t *testing.T) {
	provider := NewGeminiProvider()

	geminiResponse := map[string]interface{}{
		"responseId":   "gemini-response-123",
		"modelVersion": "gemini-2.0-flash",
		"candidates": []map[string]interface{}{
			{
				"index": 0,
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{
							"text": "Hello! How can I help you today?",
						},
					},
				},
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     9,
			"candidatesTokenCount": 12,
			"totalTokenCount":      21,
		},
	}

	geminiJSON, err := json.Marshal(geminiResponse)
	require.NoError(t, err)

	result, err := provider.Transform(geminiJSON)
	require.NoError(t, err)

	var anthropicResp map[string]interface{}
	err = json.Unmarshal(result, &anthropicResp)
	require.NoError(t, err)

	assert.Equal(t, "gemini-response-123", anthropicResp["id"])
	assert.Equal(t, "message", anthropicResp["type"])
	assert.Equal(t, "assistant", anthropicResp["role"])
	assert.Equal(t, "gemini-2.0-flash", anthropicResp["model"])

	content, ok := anthropicResp["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, content, 1)

	textBlock := content[0].(map[string]interface{})
	assert.Equal(t, "text", textBlock["type"])
	assert.Equal(t, "Hello! How can I help you today?", textBlock["text"])

	usage, ok := anthropicResp["usage"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), usage["input_tokens"])
	assert.Equal(t, float64(12), usage["output_tokens"])

	assert.Equal(t, "end_turn", anthropicResp["stop_reason"])
}

func TestGeminiProvider_FunctionCallsTransform(t *testing.T) {
	provider := NewGeminiProvider()

	geminiResponse := map[string]interface{}{
		"responseId":   "gemini-response-123",
		"modelVersion": "gemini-2.0-flash",
		"candidates": []map[string]interface{}{
			{
				"index": 0,
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{
							"functionCall": map[string]interface{}{
								"name": "get_weather",
								"args": map[string]interface{}{
									"location": "San Francisco",
									"unit":     "celsius",
								},
							},
						},
					},
				},
				"finishReason": "STOP",
			},
		},
	}

	geminiJSON, err := json.Marshal(geminiResponse)
	require.NoError(t, err)

	result, err := provider.Transform(geminiJSON)
	require.NoError(t, err)

	var anthropicResp map[string]interface{}
	err = json.Unmarshal(result, &anthropicResp)
	require.NoError(t, err)

	content, ok := anthropicResp["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, content, 1)

	toolBlock := content[0].(map[string]interface{})
	assert.Equal(t, "tool_use", toolBlock["type"])
	assert.Contains(t, toolBlock["id"].(string), "toolu_")
	assert.Equal(t, "get_weather", toolBlock["name"])

	input, ok := toolBlock["input"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "San Francisco", input["location"])
	assert.Equal(t, "celsius", input["unit"])

	// tool_use always overrides the finish reason (spec §4.5 priority rule).
	assert.Equal(t, "tool_use", anthropicResp["stop_reason"])

	// The call is correlated so a later tool_result can be translated back.
	id := toolBlock["id"].(string)
	name, ok := provider.store.GetFunctionName(id)
	require.True(t, ok)
	assert.Equal(t, "get_weather", name)
}

func TestGeminiProvider_ErrorHandling(t *testing.T) {
	provider := NewGeminiProvider()

	errorResponse := map[string]interface{}{
		"error": map[string]interface{}{
			"code":    400,
			"message": "Invalid API key",
			"status":  "UNAUTHENTICATED",
		},
	}

	errorJSON, err := json.Marshal(errorResponse)
	require.NoError(t, err)

	result, err := provider.Transform(errorJSON)
	require.NoError(t, err)

	var anthropicResp map[string]interface{}
	err = json.Unmarshal(result, &anthropicResp)
	require.NoError(t, err)

	assert.Equal(t, "error", anthropicResp["type"])

	errorInfo, ok := anthropicResp["error"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "authentication_error", errorInfo["type"])
	assert.Equal(t, "Invalid API key", errorInfo["message"])
}

func TestGeminiProvider_TransformStream(t *testing.T) {
	provider := NewGeminiProvider()
	state := &StreamState{Model: "gemini-2.0-flash"}

	textChunk := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"index": 0,
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{"text": "Hello!"},
					},
				},
			},
		},
	}
	chunkJSON, err := json.Marshal(textChunk)
	require.NoError(t, err)
	chunkJSON = append([]byte("["), append(chunkJSON, ',')...)

	events, err := provider.TransformStream(chunkJSON, state)
	require.NoError(t, err)

	eventStr := string(events)
	assert.Contains(t, eventStr, "event: message_start")
	assert.Contains(t, eventStr, "event: content_block_start")
	assert.Contains(t, eventStr, "event: content_block_delta")
	assert.Contains(t, eventStr, "Hello!")

	finishChunk := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"index":        0,
				"finishReason": "STOP",
			},
		},
		"usageMetadata": map[string]interface{}{
			"candidatesTokenCount": 5,
		},
	}
	chunkJSON, err = json.Marshal(finishChunk)
	require.NoError(t, err)
	chunkJSON = append(chunkJSON, ']')

	events, err = provider.TransformStream(chunkJSON, state)
	require.NoError(t, err)

	eventStr = string(events)
	assert.Contains(t, eventStr, "event: content_block_stop")
	assert.Contains(t, eventStr, "event: message_delta")
	assert.Contains(t, eventStr, "event: message_stop")
	assert.Contains(t, eventStr, "end_turn")
}

func TestGeminiProvider_StreamingFunctionCalls(t *testing.T) {
	provider := NewGeminiProvider()
	state := &StreamState{Model: "gemini-2.0-flash"}

	functionCallChunk := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"index": 0,
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{
							"functionCall": map[string]interface{}{
								"name": "get_current_time",
								"args": map[string]interface{}{
									"timezone": "UTC",
								},
							},
						},
					},
				},
			},
		},
	}

	chunkJSON, err := json.Marshal(functionCallChunk)
	require.NoError(t, err)
	chunkJSON = append([]byte("["), append(chunkJSON, ']')...)

	events, err := provider.TransformRawStream(chunkJSON, state)
	require.NoError(t, err)

	eventStr := string(events)
	assert.Contains(t, eventStr, "event: message_start")
	assert.Contains(t, eventStr, "event: content_block_start")
	assert.Contains(t, eventStr, "tool_use")
	assert.Contains(t, eventStr, "get_current_time")
	assert.Contains(t, eventStr, "event: content_block_delta")
	assert.Contains(t, eventStr, "input_json_delta")
	assert.Contains(t, eventStr, "UTC")
}

// TestGeminiProvider_StreamingAcrossFragmentedReads exercises the one
// behavior unique to Gemini's raw byte-stream wire format: a single
// JSON object split across two separate network reads must still
// produce correct output once both fragments arrive.
func TestGeminiProvider_StreamingAcrossFragmentedReads(t *testing.T) {
	provider := NewGeminiProvider()
	state := &StreamState{Model: "gemini-2.0-flash"}

	full := `[{"candidates":[{"index":0,"content":{"role":"model","parts":[{"text":"hi"}]}}]}]`
	mid := len(full) / 2

	events1, err := provider.TransformRawStream([]byte(full[:mid]), state)
	require.NoError(t, err)
	assert.Empty(t, events1)

	events2, err := provider.TransformRawStream([]byte(full[mid:]), state)
	require.NoError(t, err)
	assert.Contains(t, string(events2), "event: message_start")
	assert.Contains(t, string(events2), "hi")
}

func TestGeminiProvider_MapGeminiErrorType(t *testing.T) {
	provider := NewGeminiProvider()

	tests := []struct {
		geminiType        string
		expectedAnthropic string
	}{
		{"INVALID_ARGUMENT", "invalid_request_error"},
		{"UNAUTHENTICATED", "authentication_error"},
		{"PERMISSION_DENIED", "permission_error"},
		{"NOT_FOUND", "not_found_error"},
		{"RESOURCE_EXHAUSTED", "rate_limit_error"},
		{"INTERNAL", "api_error"},
		{"UNAVAILABLE", "overloaded_error"},
		{"DEADLINE_EXCEEDED", "rate_limit_error"},
		{"unknown_error", "api_error"},
	}

	for _, tt := range tests {
		t.Run(tt.geminiType, func(t *testing.T) {
			result := provider.mapGeminiErrorType(tt.geminiType)
			assert.Equal(t, tt.expectedAnthropic, result)
		})
	}
}

func TestGeminiProvider_EmptyContent(t *testing.T) {
	provider := NewGeminiProvider()

	geminiResponse := map[string]interface{}{
		"responseId":   "gemini-response-123",
		"modelVersion": "gemini-2.0-flash",
		"candidates": []map[string]interface{}{
			{
				"index":        0,
				"finishReason": "STOP",
				// No content field
			},
		},
	}

	geminiJSON, err := json.Marshal(geminiResponse)
	require.NoError(t, err)

	result, err := provider.Transform(geminiJSON)
	require.NoError(t, err)

	var anthropicResp map[string]interface{}
	err = json.Unmarshal(result, &anthropicResp)
	require.NoError(t, err)

	content, ok := anthropicResp["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, content, 1)

	textBlock := content[0].(map[string]interface{})
	assert.Equal(t, "text", textBlock["type"])
	assert.Equal(t, "", textBlock["text"])
}
