package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/safetale/safetale-sync/internal/app"
	"github.com/safetale/safetale-sync/internal/config"
	"github.com/safetale/safetale-sync/internal/lockfile"
	"github.com/safetale/safetale-sync/internal/logger"
	"github.com/safetale/safetale-sync/internal/lore"
)

const usage = `Usage: ingest-lore [flags] FILE...

Splits text, markdown or HTML files into lore chunks and writes them to the
configured retrieval backend (bluge by default). The backend is recreated
before writing.

Flags:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("ingest-lore", flag.ContinueOnError)
	configPath := fs.String("config", config.GetConfigPath(), "path to the JSON config file")
	envFile := fs.String("env-file", ".env", "dotenv file loaded before the config")
	backend := fs.String("backend", "", "bluge or qdrant (overrides config)")
	indexPath := fs.String("index", "", "bluge index directory (overrides config)")
	watch := fs.Bool("watch", false, "keep running and re-ingest when a file changes")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	paths := fs.Args()
	if len(paths) == 0 {
		fs.Usage()
		return fmt.Errorf("no lore files given")
	}

	if err := config.LoadDotEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *backend != "" {
		cfg.Retrieval.Backend = *backend
	}
	if cfg.Retrieval.Backend == config.RetrievalNone {
		cfg.Retrieval.Backend = config.RetrievalBluge
	}
	if *indexPath != "" {
		cfg.Retrieval.IndexPath = *indexPath
	}

	level := logger.LevelInfo
	if *verbose {
		level = logger.LevelDebug
	}
	if err := logger.Init(level, logger.SinkStderr); err != nil {
		return err
	}

	if cfg.Retrieval.Backend == config.RetrievalBluge {
		lock := lockfile.ForIndex(cfg.Retrieval.IndexPath)
		if err := lock.Acquire(); err != nil {
			return err
		}
		defer lock.Release()
	}

	store, closer, err := app.OpenStore(cfg.Retrieval)
	if err != nil {
		return fmt.Errorf("failed to open lore store: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := lore.Ingest(ctx, store, paths, lore.IngestOptions{Recreate: true})
	if err != nil {
		return err
	}
	logger.Info("Ingested %d chunks into %s", n, cfg.Retrieval.Backend)

	if !*watch {
		return nil
	}
	logger.Info("Watching %d file(s) for changes, press Ctrl+C to stop", len(paths))
	return lore.Watch(ctx, store, paths, lore.DefaultWatchDelay, nil)
}
