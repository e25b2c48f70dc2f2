package streaming

import (
	"encoding/json"
	"fmt"
)

// ToolInputAssembler accumulates partial JSON for a single streamed
// function-call's arguments across multiple upstream chunks (spec
// §4.4's "tool-input assembly buffer"). It is not used by the current
// SSE generator, which receives whole-argument deltas in one shot
// (spec §4.5), but is retained as a first-class primitive for upstream
// dialects that stream function-call arguments incrementally.
type ToolInputAssembler struct {
	name    string
	id      string
	active  bool
	partial []byte
}

// Start begins assembling arguments for a new tool call.
func (a *ToolInputAssembler) Start(name, id string) {
	a.name = name
	a.id = id
	a.active = true
	a.partial = a.partial[:0]
}

// Append adds another fragment of the argument JSON. If the accumulated
// bytes now form a complete JSON value, it is returned alongside true.
func (a *ToolInputAssembler) Append(fragment string) (json.RawMessage, bool) {
	a.partial = append(a.partial, fragment...)

	var v any
	if err := json.Unmarshal(a.partial, &v); err != nil {
		return nil, false
	}
	out := make(json.RawMessage, len(a.partial))
	copy(out, a.partial)
	return out, true
}

// Finalize completes assembly, returning the tool name, id, and the
// fully parsed argument value.
func (a *ToolInputAssembler) Finalize() (name, id string, value json.RawMessage, err error) {
	if !a.active {
		return "", "", nil, fmt.Errorf("tool input assembler: finalize called with no active assembly")
	}
	var v any
	if uerr := json.Unmarshal(a.partial, &v); uerr != nil {
		return "", "", nil, fmt.Errorf("tool input assembler: incomplete arguments: %w", uerr)
	}
	out := make(json.RawMessage, len(a.partial))
	copy(out, a.partial)
	a.active = false
	return a.name, a.id, out, nil
}

// Active reports whether an assembly is currently in progress.
func (a *ToolInputAssembler) Active() bool { return a.active }
