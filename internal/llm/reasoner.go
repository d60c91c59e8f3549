package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Schema is the expected shape of one reasoner call. Implementations are
// plain structs decoded from the response and then validated.
type Schema interface {
	// SchemaName identifies the call in errors and logs
	SchemaName() string

	// SchemaHint is the JSON shape shown to the model
	SchemaHint() string

	// Validate rejects decoded values that violate the contract
	Validate() error
}

// LanguageReasoner is the structured call surface the pipeline depends on.
// *Reasoner implements it; tests substitute fakes.
type LanguageReasoner interface {
	Reason(ctx context.Context, systemRole, prompt string, out Schema) error
}

// Reasoner performs schema-validated structured calls against a Provider
type Reasoner struct {
	provider Provider
	config   Config
}

// NewReasoner creates a reasoner from configuration
func NewReasoner(config Config) (*Reasoner, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Reasoner{provider: provider, config: config}, nil
}

// NewReasonerWithProvider wraps an existing provider
func NewReasonerWithProvider(provider Provider, config Config) *Reasoner {
	return &Reasoner{provider: provider, config: config}
}

// ProviderName returns the name of the underlying provider
func (r *Reasoner) ProviderName() string {
	if r.provider == nil {
		return ""
	}
	return r.provider.Name()
}

// Check verifies the provider before a run spends search quota
func (r *Reasoner) Check(ctx context.Context) error {
	if r.provider == nil {
		return errNoProvider
	}
	return r.provider.Check(ctx)
}

// Reason sends one structured prompt and decodes the response into out.
// Any failure, including a response that does not satisfy out.Validate,
// is returned as a *ReasonerError.
func (r *Reasoner) Reason(ctx context.Context, systemRole, prompt string, out Schema) error {
	call := out.SchemaName()
	fail := func(err error) error {
		return &ReasonerError{Call: call, Provider: r.ProviderName(), Err: err}
	}

	if r.provider == nil {
		return fail(errNoProvider)
	}

	resp, err := r.provider.Complete(ctx, CompletionRequest{
		System: systemRole,
		Prompt: withSchema(prompt, out.SchemaHint()),
		JSON:   true,
	})
	if err != nil {
		return fail(err)
	}

	raw, err := jsonObject(resp.Text)
	if err != nil {
		return fail(err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrMalformedResponse, err))
	}

	if err := out.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", ErrSchemaMismatch, err))
	}

	return nil
}

func withSchema(prompt, hint string) string {
	if hint == "" {
		return prompt
	}
	return prompt + "\n\nRespond with a single JSON object and nothing else, matching this shape:\n" + hint
}

// jsonObject returns the JSON object in text. A surrounding markdown code
// fence is tolerated; any other prose around the object is not.
func jsonObject(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	if s == "" {
		return nil, ErrEmptyResponse
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedResponse)
	}

	raw := []byte(s)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformedResponse)
	}
	return bytes.TrimSpace(raw), nil
}
