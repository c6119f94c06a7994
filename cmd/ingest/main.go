// Package main implements the briefly-ingest CLI: submit one or more URLs
// through the full ingestion pipeline from the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/embedder"
	"github.com/briefly-ai/briefly/engine/fetcher"
	"github.com/briefly-ai/briefly/engine/ingest"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/engine/summarizer"
	"github.com/briefly-ai/briefly/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	summaryType := flag.String("type", "comprehensive", "summary granularity: brief, comprehensive, detailed")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	urls := flag.Args()
	if len(urls) == 0 {
		fmt.Fprintln(os.Stderr, "usage: briefly-ingest [-type brief|comprehensive|detailed] URL [URL...]")
		os.Exit(2)
	}

	st, err := domain.ValidateSummaryType(*summaryType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := config.Load()
	if err := run(cfg, logger, st, urls); err != nil {
		logger.Error("ingest failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, st domain.SummaryType, urls []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	index, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Ensure(ctx, cfg.Embedder.Dims); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	svc := ingest.New(ingest.Deps{
		Store: db,
		Fetcher: fetcher.New(nil, fetcher.Opts{
			Timeout:      cfg.Fetcher.Timeout.Std(),
			MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
			RatePerSec:   cfg.Fetcher.RatePerSec,
			UserAgent:    cfg.Fetcher.UserAgent,
		}, logger),
		Summarizer: summarizer.New(nil, summarizer.Opts{
			Endpoint:      cfg.Summarizer.Endpoint,
			APIKey:        cfg.Summarizer.APIKey,
			Model:         cfg.Summarizer.Model,
			Timeout:       cfg.Summarizer.Timeout.Std(),
			MaxInputChars: cfg.Summarizer.MaxInputChars,
		}, logger),
		Embedder: embedder.New(nil, embedder.Opts{
			BaseURL:       cfg.Embedder.OllamaURL,
			Model:         cfg.Embedder.Model,
			Dims:          cfg.Embedder.Dims,
			Timeout:       cfg.Embedder.Timeout.Std(),
			MaxInputChars: cfg.Embedder.MaxInputChars,
		}),
		Index:  index,
		Logger: logger,
	})

	failures := 0
	for _, url := range urls {
		start := time.Now()
		article, sum, created, err := svc.Submit(ctx, url, st)
		if err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "FAIL  %s  (%s)\n", url, domain.KindOf(err))
			continue
		}
		verb := "exists"
		if created {
			verb = "ready"
		}
		fmt.Printf("%-6s %s  [%s]  %s\n", verb, article.ID, time.Since(start).Round(time.Millisecond), article.Title)
		if sum != nil {
			fmt.Printf("       %s\n", sum.Text)
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d urls failed", failures, len(urls))
	}
	return nil
}

func openIndex(cfg config.Config) (semantic.Index, error) {
	switch cfg.Vector.Backend {
	case "memory":
		return semantic.NewMemory(), nil
	case "qdrant", "":
		idx, err := semantic.NewQdrant(cfg.Vector.QdrantURL, cfg.Vector.Collection)
		if err != nil {
			return nil, fmt.Errorf("qdrant connect: %w", err)
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}
}
