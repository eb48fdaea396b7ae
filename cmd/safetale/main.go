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
	"github.com/safetale/safetale-sync/internal/consts"
	"github.com/safetale/safetale-sync/internal/logger"
)

type options struct {
	configPath  string
	envFile     string
	addr        string
	logLevel    string
	writeConfig bool
}

func parseArgs(args []string) (*options, error) {
	opts := &options{}
	fs := flag.NewFlagSet("safetale", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", config.GetConfigPath(), "path to the JSON config file")
	fs.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config")
	fs.StringVar(&opts.addr, "addr", "", "listen address (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error, none")
	fs.BoolVar(&opts.writeConfig, "write-config", false, "write the effective config to -config and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() (err error) {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	if opts.writeConfig {
		if err := cfg.Save(opts.configPath); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", opts.configPath)
		return nil
	}

	if err := logger.Init(logger.ParseLevel(cfg.LogLevel), cfg.LogPath); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		if err != nil {
			logger.Error("Fatal error: %v", err)
		}
		if closeErr := logger.Global().Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("Generation backend: %s (%s)", cfg.Generation.Backend, cfg.Generation.Model)
	logger.Info("Lore retrieval: %s", cfg.Retrieval.Backend)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Server.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
