package lore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
)

// LoadSource reads a text, markdown or HTML file and splits it into chunks.
func LoadSource(path string) ([]Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lore source: %w", err)
	}

	text, converted := ConvertIfHTML(string(data))
	if converted {
		logger.Debug("Converted HTML lore source %s to markdown", path)
	}

	source := filepath.Base(path)
	pieces := ChunkText(text, consts.LoreChunkChars)
	chunks := make([]Chunk, 0, len(pieces))
	for _, p := range pieces {
		chunks = append(chunks, NewChunk(source, p))
	}
	return chunks, nil
}

// IngestOptions controls Ingest.
type IngestOptions struct {
	// Recreate drops existing lore before writing.
	Recreate bool
}

// Ingest loads every path and writes the chunks to store. It returns the
// number of chunks written.
func Ingest(ctx context.Context, store Store, paths []string, opts IngestOptions) (int, error) {
	var all []Chunk
	for _, p := range paths {
		chunks, err := LoadSource(p)
		if err != nil {
			return 0, err
		}
		logger.Info("Loaded %d chunks from %s", len(chunks), p)
		all = append(all, chunks...)
	}
	if len(all) == 0 {
		return 0, fmt.Errorf("no lore found in %d source(s)", len(paths))
	}

	if opts.Recreate {
		if err := store.Recreate(ctx); err != nil {
			return 0, fmt.Errorf("failed to recreate lore store: %w", err)
		}
	}
	if err := store.Upsert(ctx, all); err != nil {
		return 0, err
	}
	return len(all), nil
}
