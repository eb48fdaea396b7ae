package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrGenerationUnavailable wraps every failure to obtain a completion from
// the configured backend.
var ErrGenerationUnavailable = errors.New("generation backend unavailable")

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client is the interface for text generation backends
type Client interface {
	// Complete sends the conversation and returns the assistant reply. System
	// messages are passed to the backend as its system instruction.
	Complete(ctx context.Context, messages []Message) (string, error)
	// GetModelName returns the model name
	GetModelName() string
}

// Options configures a backend client.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	// Timeout bounds a single HTTP exchange for backends that own their
	// HTTP client. Zero selects the package default.
	Timeout time.Duration
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s completion failed: %w", ErrGenerationUnavailable, backend, err)
}

func normalizeRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return RoleUser
	}
	return role
}

// splitSystem separates system instructions from the chat turns. Multiple
// system messages are joined with a blank line; empty turns are dropped.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		role := normalizeRole(msg.Role)
		if role == RoleSystem {
			if text := strings.TrimSpace(msg.Content); text != "" {
				system = append(system, text)
			}
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		turns = append(turns, Message{Role: role, Content: msg.Content})
	}
	return strings.Join(system, "\n\n"), turns
}
