package llm

import (
	"context"
	"fmt"
	"sync"
)

// Lazy is a Client that builds its underlying client on first use and reuses
// it afterwards. Concurrent first calls construct exactly once; a
// construction error is kept and returned by every call.
type Lazy struct {
	model string
	get   func() (Client, error)
}

// NewLazy wraps build. model is reported by GetModelName before and after
// construction.
func NewLazy(model string, build func() (Client, error)) *Lazy {
	return &Lazy{
		model: model,
		get:   sync.OnceValues(build),
	}
}

// Client returns the constructed client.
func (l *Lazy) Client() (Client, error) {
	c, err := l.get()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return c, nil
}

func (l *Lazy) GetModelName() string {
	return l.model
}

func (l *Lazy) Complete(ctx context.Context, messages []Message) (string, error) {
	c, err := l.Client()
	if err != nil {
		return "", err
	}
	return c.Complete(ctx, messages)
}
