package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the invoker configuration is invalid.
	ErrInvalidConfig = errors.New("invalid gemini invoker configuration")
)
