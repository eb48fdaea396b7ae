package lore

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/blugelabs/bluge"

	"github.com/safetale/safetale-sync/internal/logger"
)

const (
	textField   = "text"
	sourceField = "source"
)

// BlugeIndex is a local full-text lore index. It needs no external services,
// which makes it the default for single machine deployments.
//
// An index opened with OpenBlugeReader only searches and opens a fresh
// reader per query, so a separate ingestion process can rebuild it. An index
// opened with OpenBlugeWriter owns the directory and also accepts writes.
type BlugeIndex struct {
	cfg  bluge.Config
	path string

	mu     sync.Mutex
	writer *bluge.Writer
}

// OpenBlugeReader returns a read-only index over the directory at path.
func OpenBlugeReader(path string) *BlugeIndex {
	return &BlugeIndex{cfg: bluge.DefaultConfig(path), path: path}
}

// OpenBlugeWriter opens (creating if needed) a writable index at path. An
// empty path keeps the index in memory.
func OpenBlugeWriter(path string) (*BlugeIndex, error) {
	idx := &BlugeIndex{path: path}
	if path == "" {
		idx.cfg = bluge.InMemoryOnlyConfig()
	} else {
		idx.cfg = bluge.DefaultConfig(path)
	}

	w, err := bluge.OpenWriter(idx.cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open bluge writer: %w", err)
	}
	idx.writer = w
	return idx, nil
}

func (b *BlugeIndex) reader() (*bluge.Reader, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer != nil {
		return b.writer.Reader()
	}
	return bluge.OpenReader(b.cfg)
}

// Search runs a match query against the lore text.
func (b *BlugeIndex) Search(ctx context.Context, query string, topK int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return "", nil
	}

	r, err := b.reader()
	if err != nil {
		return "", unavailable("bluge", err)
	}
	defer r.Close()

	req := bluge.NewTopNSearch(topK, bluge.NewMatchQuery(query).SetField(textField))
	it, err := r.Search(ctx, req)
	if err != nil {
		return "", unavailable("bluge", err)
	}

	var snippets []string
	match, err := it.Next()
	for err == nil && match != nil {
		var text string
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == textField {
				text = string(value)
				return false
			}
			return true
		})
		if visitErr != nil {
			return "", unavailable("bluge", visitErr)
		}
		snippets = append(snippets, text)
		match, err = it.Next()
	}
	if err != nil {
		return "", unavailable("bluge", err)
	}
	return joinSnippets(snippets), nil
}

// Upsert indexes chunks, replacing documents with the same ID.
func (b *BlugeIndex) Upsert(_ context.Context, chunks []Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		return fmt.Errorf("bluge index at %s is read-only", b.path)
	}

	batch := bluge.NewBatch()
	for _, c := range chunks {
		doc := bluge.NewDocument(c.Key()).
			AddField(bluge.NewTextField(textField, c.Text).StoreValue()).
			AddField(bluge.NewKeywordField(sourceField, c.Source).StoreValue())
		batch.Update(doc.ID(), doc)
	}
	if err := b.writer.Batch(batch); err != nil {
		return fmt.Errorf("failed to index lore: %w", err)
	}
	return nil
}

// Recreate discards the index contents by reopening an empty index.
func (b *BlugeIndex) Recreate(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		return fmt.Errorf("bluge index at %s is read-only", b.path)
	}
	if err := b.writer.Close(); err != nil {
		return fmt.Errorf("failed to close bluge writer: %w", err)
	}
	b.writer = nil

	if b.path != "" {
		if err := os.RemoveAll(b.path); err != nil {
			return fmt.Errorf("failed to remove lore index: %w", err)
		}
	}

	w, err := bluge.OpenWriter(b.cfg)
	if err != nil {
		return fmt.Errorf("failed to open bluge writer: %w", err)
	}
	b.writer = w
	logger.Info("Recreated lore index %s", b.displayPath())
	return nil
}

// Close releases the writer, if any.
func (b *BlugeIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writer == nil {
		return nil
	}
	err := b.writer.Close()
	b.writer = nil
	return err
}

func (b *BlugeIndex) displayPath() string {
	if b.path == "" {
		return "(memory)"
	}
	return b.path
}
