package lore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
)

// QdrantStore stores lore as vectors in a Qdrant collection and searches it
// by embedding the query with the same model used during ingestion.
type QdrantStore struct {
	baseURL    string
	collection string
	apiKey     string
	query      Embedder
	document   Embedder
	client     *http.Client
}

// QdrantOptions configures a QdrantStore.
type QdrantOptions struct {
	URL        string
	Collection string
	APIKey     string
	// QueryEmbedder embeds search queries.
	QueryEmbedder Embedder
	// DocumentEmbedder embeds chunks during ingestion. Defaults to
	// QueryEmbedder.
	DocumentEmbedder Embedder
}

// NewQdrantStore creates a store for the collection.
func NewQdrantStore(opts QdrantOptions) (*QdrantStore, error) {
	if strings.TrimSpace(opts.Collection) == "" {
		return nil, fmt.Errorf("qdrant store requires a collection name")
	}
	if opts.QueryEmbedder == nil {
		return nil, fmt.Errorf("qdrant store requires an embedder")
	}
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		base = "http://localhost:6333"
	}
	doc := opts.DocumentEmbedder
	if doc == nil {
		doc = opts.QueryEmbedder
	}
	return &QdrantStore{
		baseURL:    base,
		collection: opts.Collection,
		apiKey:     opts.APIKey,
		query:      opts.QueryEmbedder,
		document:   doc,
		client:     &http.Client{Timeout: consts.Timeout30Seconds},
	}, nil
}

type qdrantSearchRequest struct {
	Vector      []float32 `json:"vector"`
	Limit       int       `json:"limit"`
	WithPayload bool      `json:"with_payload"`
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      json.RawMessage `json:"id"`
		Score   float64         `json:"score"`
		Payload map[string]any  `json:"payload"`
	} `json:"result"`
	Status any `json:"status"`
}

type qdrantPoint struct {
	ID      uint64         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type qdrantUpsertRequest struct {
	Points []qdrantPoint `json:"points"`
}

type qdrantCreateRequest struct {
	Vectors struct {
		Size     int    `json:"size"`
		Distance string `json:"distance"`
	} `json:"vectors"`
}

var errNotFound = errors.New("not found")

// Search embeds the query and returns the payload text of the nearest points.
func (q *QdrantStore) Search(ctx context.Context, query string, topK int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" || topK <= 0 {
		return "", nil
	}

	vector, err := q.query.Embed(ctx, query)
	if err != nil {
		return "", unavailable("qdrant", err)
	}

	var resp qdrantSearchResponse
	err = q.do(ctx, http.MethodPost, q.collectionPath("points", "search"), nil,
		qdrantSearchRequest{Vector: vector, Limit: topK, WithPayload: true}, &resp)
	if err != nil {
		return "", unavailable("qdrant", err)
	}

	snippets := make([]string, 0, len(resp.Result))
	for _, hit := range resp.Result {
		if text, ok := hit.Payload[textField].(string); ok {
			snippets = append(snippets, text)
		}
	}
	return joinSnippets(snippets), nil
}

// Recreate drops the collection. It is created again with the right vector
// size by the next Upsert.
func (q *QdrantStore) Recreate(ctx context.Context) error {
	err := q.do(ctx, http.MethodDelete, q.collectionPath(), nil, nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return fmt.Errorf("failed to delete collection %s: %w", q.collection, err)
	}
	return nil
}

// Upsert embeds every chunk and writes the points, creating the collection
// with cosine distance when it does not exist yet.
func (q *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]qdrantPoint, 0, len(chunks))
	for _, c := range chunks {
		vector, err := q.document.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("failed to embed chunk %s: %w", c.Key(), err)
		}
		points = append(points, qdrantPoint{
			ID:      c.ID,
			Vector:  vector,
			Payload: map[string]any{textField: c.Text, sourceField: c.Source},
		})
	}

	if err := q.ensureCollection(ctx, len(points[0].Vector)); err != nil {
		return err
	}

	params := url.Values{"wait": []string{"true"}}
	if err := q.do(ctx, http.MethodPut, q.collectionPath("points"), params, qdrantUpsertRequest{Points: points}, nil); err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	logger.Info("Upserted %d lore points into %s", len(points), q.collection)
	return nil
}

func (q *QdrantStore) ensureCollection(ctx context.Context, size int) error {
	err := q.do(ctx, http.MethodGet, q.collectionPath(), nil, nil, nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, errNotFound) {
		return fmt.Errorf("failed to inspect collection %s: %w", q.collection, err)
	}

	var req qdrantCreateRequest
	req.Vectors.Size = size
	req.Vectors.Distance = "Cosine"
	if err := q.do(ctx, http.MethodPut, q.collectionPath(), nil, req, nil); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", q.collection, err)
	}
	logger.Info("Created collection %s (size %d, cosine)", q.collection, size)
	return nil
}

func (q *QdrantStore) collectionPath(parts ...string) string {
	segments := append([]string{"collections", url.PathEscape(q.collection)}, parts...)
	return "/" + strings.Join(segments, "/")
}

func (q *QdrantStore) do(ctx context.Context, method, path string, params url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	endpoint := q.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, consts.BufferSize1KB))
		return fmt.Errorf("qdrant %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
