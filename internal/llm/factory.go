package llm

import (
	"errors"
	"sort"
	"strings"
)

// errNoProvider is returned when no provider name is configured
var errNoProvider = errors.New("no LLM provider configured")

type providerCtor func(Config) (Provider, error)

// constructors maps every accepted provider name, aliases included
var constructors = map[string]providerCtor{
	"openai":    newOpenAI,
	"anthropic": newAnthropic,
	"claude":    newAnthropic,
	"ollama":    newOllama,
}

// The constructors return concrete types; a failed one must not become a
// non-nil Provider holding a nil pointer.
func newOpenAI(c Config) (Provider, error) {
	p, err := NewOpenAIProvider(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newAnthropic(c Config) (Provider, error) {
	p, err := NewAnthropicProvider(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func newOllama(c Config) (Provider, error) {
	p, err := NewOllamaProvider(c)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// NewProvider builds the provider named by config.Provider. Every pipeline
// stage needs the reasoner, so an empty name is an error.
func NewProvider(config Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(config.Provider))
	if name == "" {
		return nil, errNoProvider
	}
	ctor, ok := constructors[name]
	if !ok {
		return nil, ErrUnsupportedProvider{Provider: config.Provider}
	}
	return ctor(config)
}

// ProviderNames lists the accepted provider names in order
func ProviderNames() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
