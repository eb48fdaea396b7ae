//go:generate go run go.uber.org/mock/mockgen -source=collaborators.go -destination=mocks/mocks.go -package=mocks
package story

import (
	"context"

	"github.com/safetale/safetale-sync/internal/llm"
)

// Retriever returns lore snippets joined by blank lines. An empty string with
// a nil error means nothing relevant was found.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// Generator produces a chat completion.
type Generator interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// HealthChecker reports whether the generation backend answers.
type HealthChecker interface {
	Check(ctx context.Context) (bool, string)
}
