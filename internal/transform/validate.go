package transform

import (
	"github.com/Davincible/gemini-claude-proxy/internal/claude"
)

const (
	maxSchemaDepth  = 10
	maxToolNameLen  = 64
	maxToolCount    = 128
	maxTokensCeil   = 1_000_000
)

var validSchemaTypes = map[string]bool{
	"object": true, "array": true, "string": true, "number": true,
	"integer": true, "boolean": true, "null": true,
}

// Validate performs the structural and parameter-range checks of spec
// §4.1. It is a pure function with no side effects and returns the
// first violation found as a human-readable error.
func Validate(req *claude.Request) error {
	if len(req.Messages) == 0 {
		return invalidRequest("no messages provided")
	}

	if req.Messages[0].Role != "user" {
		return invalidRequest("first message must be from user")
	}

	prevRole := ""
	for _, msg := range req.Messages {
		if prevRole == "assistant" && msg.Role == "assistant" {
			return invalidRequest("cannot have consecutive assistant messages")
		}
		prevRole = msg.Role
	}

	if req.MaxTokens != nil {
		if *req.MaxTokens == 0 || *req.MaxTokens > maxTokensCeil {
			return invalidRequest("invalid max_tokens: %d. must be between 1 and %d", *req.MaxTokens, maxTokensCeil)
		}
	}

	if req.Temperature != nil {
		if *req.Temperature < 0.0 || *req.Temperature > 2.0 {
			return invalidRequest("invalid temperature: %v. must be between 0.0 and 2.0", *req.Temperature)
		}
	}

	if req.TopP != nil {
		if *req.TopP < 0.0 || *req.TopP > 1.0 {
			return invalidRequest("invalid top_p: %v. must be between 0.0 and 1.0", *req.TopP)
		}
	}

	if req.TopK != nil && *req.TopK == 0 {
		return invalidRequest("invalid top_k: 0. must be greater than 0")
	}

	if len(req.Tools) > 0 {
		if err := ValidateTools(req.Tools); err != nil {
			return err
		}
	}

	return nil
}

// ValidateTools checks an entire tool list: duplicate names, per-tool
// schema validity, and the 128-tool ceiling.
func ValidateTools(tools []claude.ToolDecl) error {
	if len(tools) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		if seen[tool.Name] {
			return invalidRequest("duplicate tool name: %s", tool.Name)
		}
		seen[tool.Name] = true

		if err := validateToolSchema(tool); err != nil {
			return err
		}
	}

	if len(tools) > maxToolCount {
		return invalidRequest("too many tools: %d (max %d)", len(tools), maxToolCount)
	}

	return nil
}

func validateToolSchema(tool claude.ToolDecl) error {
	if tool.Name == "" {
		return invalidRequest("tool name cannot be empty")
	}
	if len(tool.Name) > maxToolNameLen {
		return invalidRequest("tool name too long: %d (max %d characters)", len(tool.Name), maxToolNameLen)
	}
	if tool.Description == "" {
		return invalidRequest("tool description cannot be empty")
	}
	return validateJSONSchema(&tool.InputSchema, 0)
}

func validateJSONSchema(schema *claude.JSONSchema, depth int) error {
	if depth > maxSchemaDepth {
		return invalidRequest("schema nesting too deep (max %d)", maxSchemaDepth)
	}

	if !validSchemaTypes[schema.Type] {
		return invalidRequest("invalid schema type: %s", schema.Type)
	}

	if schema.Type == "object" && schema.Properties != nil {
		for name, prop := range schema.Properties {
			if name == "" {
				return invalidRequest("property name cannot be empty")
			}
			if err := validateJSONSchema(prop, depth+1); err != nil {
				return err
			}
		}
	}

	if schema.Type == "array" && schema.Items != nil {
		if err := validateJSONSchema(schema.Items, depth+1); err != nil {
			return err
		}
	}

	if schema.Minimum != nil && schema.Maximum != nil && *schema.Minimum > *schema.Maximum {
		return invalidRequest("invalid range: minimum (%v) > maximum (%v)", *schema.Minimum, *schema.Maximum)
	}

	return nil
}
