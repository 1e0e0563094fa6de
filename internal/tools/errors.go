package tools

import "errors"

// Named tool failures. Callers branch with errors.Is; inside the agent loop
// these are fed back to the model as recoverable results, while HTTP handlers
// map them to status codes.
var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedType = errors.New("unsupported document type")
	ErrUnknownTool     = errors.New("unknown tool")
)
