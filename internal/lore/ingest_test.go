package lore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingStore struct {
	mu        sync.Mutex
	recreated int
	chunks    []Chunk
}

func (s *recordingStore) Recreate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recreated++
	s.chunks = nil
	return nil
}

func (s *recordingStore) Upsert(_ context.Context, chunks []Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0644))
	return p
}

func TestLoadSource(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "fox.txt", "The fox ran.\n\nThe owl watched.")

	chunks, err := LoadSource(p)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "The fox ran.", chunks[0].Text)
	require.Equal(t, "fox.txt", chunks[0].Source)
	require.Equal(t, NewChunk("fox.txt", "The fox ran.").ID, chunks[0].ID)

	_, err = LoadSource(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
}

func TestLoadSourceHTML(t *testing.T) {
	p := writeFile(t, t.TempDir(), "fox.html",
		"<html><body><p>The fox ran.</p><p>The owl watched.</p></body></html>")

	chunks, err := LoadSource(p)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.Equal(t, "The owl watched.", chunks[1].Text)
}

func TestIngest(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "One.\n\nTwo.")
	b := writeFile(t, dir, "b.md", "Three.")

	store := &recordingStore{}
	n, err := Ingest(context.Background(), store, []string{a, b}, IngestOptions{Recreate: true})
	req.NoError(err)
	req.Equal(3, n)
	req.Equal(1, store.recreated)
	req.Len(store.chunks, 3)

	empty := writeFile(t, dir, "empty.txt", "   ")
	_, err = Ingest(context.Background(), store, []string{empty}, IngestOptions{})
	req.Error(err)
}

func TestIngestIntoBluge(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	p := writeFile(t, t.TempDir(), "tales.txt", "The dragon slept.\n\nThe fox ran.")

	idx, err := OpenBlugeWriter("")
	req.NoError(err)
	defer idx.Close()

	_, err = Ingest(ctx, idx, []string{p}, IngestOptions{Recreate: true})
	req.NoError(err)

	got, err := idx.Search(ctx, "fox", 3)
	req.NoError(err)
	req.Equal("The fox ran.", got)
}

func TestWatchReingestsOnChange(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "tales.txt", "First.")

	store := &recordingStore{}
	runs := make(chan int, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, store, []string{p}, 20*time.Millisecond, func(n int, err error) {
			if err != nil {
				return
			}
			select {
			case runs <- n:
			default:
			}
		})
	}()

	// The watcher registers asynchronously; keep touching the file until a
	// run is observed.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	var n int
loop:
	for {
		select {
		case n = <-runs:
			break loop
		case <-ticker.C:
			require.NoError(t, os.WriteFile(p, []byte("First.\n\nSecond."), 0644))
		case <-deadline:
			t.Fatal("watch never re-ingested")
		}
	}
	require.Equal(t, 2, n)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
