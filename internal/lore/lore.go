// Package lore retrieves fairy-tale snippets that give the story guide extra
// context, and ingests source texts into the retrieval backends.
package lore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// ErrRetrievalUnavailable wraps every failure to query a lore backend.
var ErrRetrievalUnavailable = errors.New("lore retrieval unavailable")

// Separator joins snippets in a search result.
const Separator = "\n\n"

// Chunk is one indexed piece of lore.
type Chunk struct {
	ID     uint64
	Text   string
	Source string
}

// NewChunk builds a chunk whose ID is derived from source and text, so
// re-ingesting the same file produces the same points.
func NewChunk(source, text string) Chunk {
	return Chunk{
		ID:     xxhash.Sum64String(source + "\x00" + text),
		Text:   text,
		Source: source,
	}
}

// Key returns the chunk ID in the string form used for document ids.
func (c Chunk) Key() string {
	return strconv.FormatUint(c.ID, 16)
}

// Searcher returns up to topK snippets for query joined by Separator. An
// empty result with a nil error means nothing matched.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (string, error)
}

// Store is a backend that lore can be written to.
type Store interface {
	// Recreate drops all existing lore.
	Recreate(ctx context.Context) error
	// Upsert adds or replaces chunks.
	Upsert(ctx context.Context, chunks []Chunk) error
}

func unavailable(backend string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRetrievalUnavailable, backend, err)
}

func joinSnippets(snippets []string) string {
	kept := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, Separator)
}
