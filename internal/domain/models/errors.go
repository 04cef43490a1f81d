package models

import "errors"

var (
	// ErrLLMUnavailable marks a transport/auth failure of the completion service.
	// Only the classification stage lets it escape Analyze.
	ErrLLMUnavailable = errors.New("llm unavailable")

	// ErrInvalidInput is returned for items that fail validation before any call is made.
	ErrInvalidInput = errors.New("invalid analysis input")
)
