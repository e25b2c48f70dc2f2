package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToolInputAssemblerAppendAndFinalize(t *testing.T) {
	var a ToolInputAssembler
	a.Start("get_weather", "toolu_1")
	assert.True(t, a.Active())

	_, complete := a.Append(`{"city":`)
	assert.False(t, complete)

	value, complete := a.Append(`"sf"}`)
	assert.True(t, complete)
	assert.JSONEq(t, `{"city":"sf"}`, string(value))

	name, id, final, err := a.Finalize()
	assert.NoError(t, err)
	assert.Equal(t, "get_weather", name)
	assert.Equal(t, "toolu_1", id)
	assert.JSONEq(t, `{"city":"sf"}`, string(final))
	assert.False(t, a.Active())
}

func TestToolInputAssemblerFinalizeWithoutStartFails(t *testing.T) {
	var a ToolInputAssembler
	_, _, _, err := a.Finalize()
	assert.Error(t, err)
}

func TestToolInputAssemblerRestartClearsPreviousState(t *testing.T) {
	var a ToolInputAssembler
	a.Start("f1", "id1")
	a.Append(`{"a":1}`)
	a.Start("f2", "id2")

	_, complete := a.Append(`{"b":2}`)
	assert.True(t, complete)
	name, id, value, err := a.Finalize()
	assert.NoError(t, err)
	assert.Equal(t, "f2", name)
	assert.Equal(t, "id2", id)
	assert.JSONEq(t, `{"b":2}`, string(value))
}
