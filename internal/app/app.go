// Package app wires configuration into the running components.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/safetale/safetale-sync/internal/config"
	"github.com/safetale/safetale-sync/internal/llm"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/lore"
	"github.com/safetale/safetale-sync/internal/metrics"
	"github.com/safetale/safetale-sync/internal/session"
	"github.com/safetale/safetale-sync/internal/story"
	"github.com/safetale/safetale-sync/internal/web"
)

// App holds the components of a running server.
type App struct {
	Server    *web.Server
	Generator *llm.Lazy
	Metrics   *metrics.Metrics

	closers []io.Closer
}

// NewGenerator returns a lazily constructed client for the configured
// generation backend. Construction errors surface on first use.
func NewGenerator(ctx context.Context, cfg config.GenerationConfig) *llm.Lazy {
	opts := llm.Options{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
	backend := cfg.Backend
	return llm.NewLazy(cfg.Model, func() (llm.Client, error) {
		logger.Info("Connecting to %s (%s)", llm.DisplayName(backend), cfg.Model)
		return llm.New(ctx, backend, opts)
	})
}

// OpenRetriever returns the configured lore searcher, or nil when retrieval
// is disabled. The closer, if not nil, must be closed on shutdown.
func OpenRetriever(cfg config.RetrievalConfig) (lore.Searcher, io.Closer, error) {
	switch cfg.Backend {
	case config.RetrievalNone, "":
		return nil, nil, nil
	case config.RetrievalBluge:
		return lore.OpenBlugeReader(cfg.IndexPath), nil, nil
	case config.RetrievalQdrant:
		store, err := newQdrantStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown retrieval backend %q", cfg.Backend)
	}
}

// OpenStore returns a writable lore store for ingestion.
func OpenStore(cfg config.RetrievalConfig) (lore.Store, io.Closer, error) {
	switch cfg.Backend {
	case config.RetrievalBluge, config.RetrievalNone, "":
		idx, err := lore.OpenBlugeWriter(cfg.IndexPath)
		if err != nil {
			return nil, nil, err
		}
		return idx, idx, nil
	case config.RetrievalQdrant:
		store, err := newQdrantStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown retrieval backend %q", cfg.Backend)
	}
}

func newQdrantStore(cfg config.RetrievalConfig) (*lore.QdrantStore, error) {
	embedder := lore.NewOllamaEmbedder(cfg.EmbedURL, cfg.EmbedModel, lore.QueryPrefix)
	return lore.NewQdrantStore(lore.QdrantOptions{
		URL:              cfg.QdrantURL,
		Collection:       cfg.Collection,
		QueryEmbedder:    embedder,
		DocumentEmbedder: embedder.WithPrefix(lore.DocumentPrefix),
	})
}

// New builds the server and its collaborators from cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	if cfg.MetricsEnabled {
		a.Metrics = metrics.New()
	}

	a.Generator = NewGenerator(ctx, cfg.Generation)

	searcher, closer, err := OpenRetriever(cfg.Retrieval)
	if err != nil {
		return nil, fmt.Errorf("failed to open lore retrieval: %w", err)
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	deps := story.Dependencies{Generator: a.Generator, Metrics: a.Metrics}
	if searcher != nil {
		deps.Retriever = searcher
		logger.Info("Lore retrieval enabled (%s)", cfg.Retrieval.Backend)
	}
	pipeline := story.NewPipeline(deps, story.Config{
		BackendName:       llm.DisplayName(cfg.Generation.Backend),
		Model:             cfg.Generation.Model,
		RetrievalTimeout:  cfg.RetrievalTimeout(),
		GenerationTimeout: cfg.GenerationTimeout(),
	})

	registry := session.NewRegistry(a.Metrics)
	a.Server = web.NewServer(web.Options{
		Config:      cfg.Server,
		Registry:    registry,
		Broadcaster: session.NewBroadcaster(registry, cfg.Server.FanoutLimit, a.Metrics),
		Story:       story.NewService(pipeline),
		Health:      llm.NewProber(a.Generator),
		Metrics:     a.Metrics,
	})
	return a, nil
}

// Close releases resources opened by New.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
