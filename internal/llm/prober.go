package llm

import (
	"context"
	"strings"
)

const probePrompt = "Say OK in one word."

// Prober checks that a generation backend answers a trivial prompt.
type Prober struct {
	client Client
}

// NewProber creates a Prober for client.
func NewProber(client Client) *Prober {
	return &Prober{client: client}
}

// Check asks the backend for a one word reply. On success the detail is the
// trimmed reply, otherwise it describes the failure.
func (p *Prober) Check(ctx context.Context) (bool, string) {
	reply, err := p.client.Complete(ctx, []Message{{Role: RoleUser, Content: probePrompt}})
	if err != nil {
		return false, err.Error()
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return false, "LLM returned empty response"
	}
	return true, reply
}
