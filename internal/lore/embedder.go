package lore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/safetale/safetale-sync/internal/consts"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Task prefixes understood by nomic-embed-text.
const (
	QueryPrefix    = "search_query: "
	DocumentPrefix = "search_document: "
)

// OllamaEmbedder calls the Ollama embeddings endpoint.
type OllamaEmbedder struct {
	baseURL string
	model   string
	prefix  string
	client  *http.Client
}

// NewOllamaEmbedder creates an embedder for model. prefix is prepended to
// every text, see QueryPrefix and DocumentPrefix.
func NewOllamaEmbedder(baseURL, model, prefix string) *OllamaEmbedder {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = "http://localhost:11434"
	}
	return &OllamaEmbedder{
		baseURL: base,
		model:   model,
		prefix:  prefix,
		client:  &http.Client{Timeout: consts.Timeout60Seconds},
	}
}

// WithPrefix returns a copy of e using prefix.
func (e *OllamaEmbedder) WithPrefix(prefix string) *OllamaEmbedder {
	clone := *e
	clone.prefix = prefix
	return &clone
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: e.prefix + text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, consts.BufferSize1KB))
		return nil, fmt.Errorf("embedding failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("embedding failed: %s", out.Error)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("embedding failed: empty vector")
	}
	return out.Embedding, nil
}
