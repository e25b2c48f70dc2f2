// Package transform implements the request validator, request
// transformer, and tool-schema converter that make up the bulk of the
// translation core (spec §4.1-§4.3).
package transform

import "fmt"

// Kind classifies a transform-layer error so the HTTP handler can map it
// to a status code per spec §7 without string-matching messages.
type Kind int

const (
	KindInvalidRequest Kind = iota
	KindTransformation
)

// Error is the error type returned by Validate and Transform.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func invalidRequest(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func transformationError(format string, args ...any) error {
	return &Error{Kind: KindTransformation, Message: fmt.Sprintf(format, args...)}
}
