package inference

import (
	"context"
	"errors"
	"time"
)

// Operation identifies which inference capability a request targets.
type Operation string

// Supported inference operations
const (
	OperationTranscription Operation = "transcription"
	OperationTextAnalysis  Operation = "text_analysis"
	OperationTranslation   Operation = "translation"
)

// Request is the input to a single inference call.
type Request struct {
	// Operation selects the inference capability to invoke
	Operation Operation

	// Input is the text or encoded audio the operation runs on
	Input string

	// TargetLanguage is only consulted for translation requests
	TargetLanguage string
}

// Validate checks that the request carries enough data to be invoked.
func (r Request) Validate() error {
	if r.Input == "" {
		return ErrEmptyInput
	}

	if !isValidOperation(r.Operation) {
		return ErrUnknownOperation
	}

	if r.Operation == OperationTranslation && r.TargetLanguage == "" {
		return ErrMissingTargetLanguage
	}

	return nil
}

// isValidOperation checks if the given operation is supported.
func isValidOperation(op Operation) bool {
	switch op {
	case OperationTranscription, OperationTextAnalysis, OperationTranslation:
		return true
	default:
		return false
	}
}

// Result is the output of a successful inference call.
type Result struct {
	// Text is the provider's response content
	Text string

	// Model names the provider model that produced the response
	Model string

	// Elapsed is how long the provider took to answer
	Elapsed time.Duration
}

// Invoker defines the interface for making a single inference call.
// This interface serves as a boundary between the queue subsystem and
// external AI/LLM services; retry and concurrency decisions live entirely
// on the caller's side of it.
type Invoker interface {
	// Invoke performs one inference call for the given request.
	// Errors returned by Invoke are classified with IsTransient to
	// decide retry eligibility.
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// Common errors returned by request validation
var (
	// ErrEmptyInput is returned when a request carries no input
	ErrEmptyInput = errors.New("inference request input cannot be empty")

	// ErrUnknownOperation is returned for an unsupported operation kind
	ErrUnknownOperation = errors.New("unknown inference operation")

	// ErrMissingTargetLanguage is returned when a translation request
	// does not name a target language
	ErrMissingTargetLanguage = errors.New("translation request requires a target language")
)
