package llm

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by New.
const (
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
	BackendGemini    = "gemini"
)

var displayNames = map[string]string{
	BackendOllama:    "Ollama",
	BackendOpenAI:    "OpenAI",
	BackendAnthropic: "Anthropic",
	BackendGemini:    "Gemini",
}

// DisplayName returns the human readable name of a backend, used in
// user-facing status text.
func DisplayName(backend string) string {
	if name, ok := displayNames[strings.ToLower(strings.TrimSpace(backend))]; ok {
		return name
	}
	return backend
}

// New creates a client for the named backend.
func New(ctx context.Context, backend string, opts Options) (Client, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendOllama:
		return NewOllamaClient(opts)
	case BackendOpenAI:
		return NewOpenAIClient(opts)
	case BackendAnthropic:
		return NewAnthropicClient(opts)
	case BackendGemini:
		return NewGeminiClient(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown generation backend %q", backend)
	}
}
