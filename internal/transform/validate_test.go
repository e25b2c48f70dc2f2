package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Davincible/gemini-claude-proxy/internal/claude"
)

func ptrInt(i int) *int { return &i }
func ptrFloat(f float64) *float64 { return &f }

func simpleRequest() *claude.Request {
	return &claude.Request{
		Model: "claude-3-sonnet",
		Messages: []claude.Message{
			{Role: "user", Content: claude.TextContent("hi")},
		},
	}
}

func TestValidateSimpleRequest(t *testing.T) {
	assert.NoError(t, Validate(simpleRequest()))
}

func TestValidateEmptyMessages(t *testing.T) {
	req := simpleRequest()
	req.Messages = nil
	err := Validate(req)
	assert.Error(t, err)
	assert.Equal(t, KindInvalidRequest, err.(*Error).Kind)
}

func TestValidateFirstMessageNotUser(t *testing.T) {
	req := simpleRequest()
	req.Messages = []claude.Message{{Role: "assistant", Content: claude.TextContent("hi")}}
	assert.Error(t, Validate(req))
}

func TestValidateConsecutiveAssistantMessages(t *testing.T) {
	req := simpleRequest()
	req.Messages = []claude.Message{
		{Role: "user", Content: claude.TextContent("hi")},
		{Role: "assistant", Content: claude.TextContent("hello")},
		{Role: "assistant", Content: claude.TextContent("again")},
	}
	assert.Error(t, Validate(req))
}

func TestValidateAlternatingRoles(t *testing.T) {
	req := simpleRequest()
	req.Messages = []claude.Message{
		{Role: "user", Content: claude.TextContent("hi")},
		{Role: "assistant", Content: claude.TextContent("hello")},
		{Role: "user", Content: claude.TextContent("again")},
	}
	assert.NoError(t, Validate(req))
}

func TestValidateMaxTokensZero(t *testing.T) {
	req := simpleRequest()
	req.MaxTokens = ptrInt(0)
	assert.Error(t, Validate(req))
}

func TestValidateMaxTokensTooLarge(t *testing.T) {
	req := simpleRequest()
	req.MaxTokens = ptrInt(2_000_000)
	assert.Error(t, Validate(req))
}

func TestValidateTemperatureNegative(t *testing.T) {
	req := simpleRequest()
	req.Temperature = ptrFloat(-0.1)
	assert.Error(t, Validate(req))
}

func TestValidateTemperatureTooHigh(t *testing.T) {
	req := simpleRequest()
	req.Temperature = ptrFloat(2.1)
	assert.Error(t, Validate(req))
}

func TestValidateTemperatureValid(t *testing.T) {
	req := simpleRequest()
	req.Temperature = ptrFloat(1.0)
	assert.NoError(t, Validate(req))
}

func TestValidateTopPOutOfRange(t *testing.T) {
	req := simpleRequest()
	req.TopP = ptrFloat(1.5)
	assert.Error(t, Validate(req))
}

func TestValidateTopKZero(t *testing.T) {
	req := simpleRequest()
	req.TopK = ptrInt(0)
	assert.Error(t, Validate(req))
}

func validTool(name string) claude.ToolDecl {
	return claude.ToolDecl{
		Name:        name,
		Description: "does a thing",
		InputSchema: claude.JSONSchema{Type: "object"},
	}
}

func TestValidateToolsDuplicateName(t *testing.T) {
	err := ValidateTools([]claude.ToolDecl{validTool("a"), validTool("a")})
	assert.Error(t, err)
}

func TestValidateToolsTooMany(t *testing.T) {
	var tools []claude.ToolDecl
	for i := 0; i < 129; i++ {
		tools = append(tools, validTool(string(rune('a'+i%26))+string(rune('0'+i/26))))
	}
	assert.Error(t, ValidateTools(tools))
}

func TestValidateToolEmptyName(t *testing.T) {
	tool := validTool("")
	assert.Error(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateToolEmptyDescription(t *testing.T) {
	tool := validTool("f")
	tool.Description = ""
	assert.Error(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateToolInvalidSchemaType(t *testing.T) {
	tool := validTool("f")
	tool.InputSchema.Type = "banana"
	assert.Error(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateToolNestedSchema(t *testing.T) {
	tool := validTool("f")
	tool.InputSchema = claude.JSONSchema{
		Type: "object",
		Properties: map[string]*claude.JSONSchema{
			"city": {Type: "string"},
		},
		Required: []string{"city"},
	}
	assert.NoError(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateToolSchemaTooDeep(t *testing.T) {
	leaf := &claude.JSONSchema{Type: "string"}
	for i := 0; i < 12; i++ {
		leaf = &claude.JSONSchema{Type: "object", Properties: map[string]*claude.JSONSchema{"x": leaf}}
	}
	tool := validTool("f")
	tool.InputSchema = *leaf
	assert.Error(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateToolSchemaMinMaxRange(t *testing.T) {
	tool := validTool("f")
	tool.InputSchema = claude.JSONSchema{Type: "number", Minimum: ptrFloat(10), Maximum: ptrFloat(5)}
	assert.Error(t, ValidateTools([]claude.ToolDecl{tool}))
}

func TestValidateRequestWithTools(t *testing.T) {
	req := simpleRequest()
	req.Tools = []claude.ToolDecl{validTool("search")}
	assert.NoError(t, Validate(req))
}
