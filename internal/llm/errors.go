package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedResponse means the provider output was not a JSON object
	ErrMalformedResponse = errors.New("malformed reasoner response")

	// ErrSchemaMismatch means the JSON decoded but violated the expected schema
	ErrSchemaMismatch = errors.New("reasoner response does not match schema")

	// ErrEmptyResponse means the provider returned no content
	ErrEmptyResponse = errors.New("empty reasoner response")
)

// ReasonerError wraps any failure of a reasoner call
type ReasonerError struct {
	Call     string // Schema name of the call, e.g. "decomposition"
	Provider string
	Err      error
}

func (e *ReasonerError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("reasoner %s: %v", e.Call, e.Err)
	}
	return fmt.Sprintf("reasoner %s (%s): %v", e.Call, e.Provider, e.Err)
}

func (e *ReasonerError) Unwrap() error {
	return e.Err
}

// ErrUnsupportedProvider is returned by NewProvider for unknown names
type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unknown LLM provider: %s (supported: %s)", e.Provider, strings.Join(ProviderNames(), ", "))
}
