package engine

import "errors"

// The engine exposes a small stable error taxonomy. Callers branch on these
// with errors.Is; collaborator failures are mapped into them at the public
// entry points rather than leaking through.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("memory not found")
	ErrStorage      = errors.New("storage failure")
)
