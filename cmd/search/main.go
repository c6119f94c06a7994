// Package main implements the briefly-search CLI: one-shot semantic search
// against an ingested corpus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/briefly-ai/briefly/engine/embedder"
	"github.com/briefly-ai/briefly/engine/search"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/pkg/config"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	limit := flag.Int("limit", 10, "maximum results")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	query := strings.Join(flag.Args(), " ")
	if strings.TrimSpace(query) == "" {
		fmt.Fprintln(os.Stderr, "usage: briefly-search [-limit N] QUERY...")
		os.Exit(2)
	}

	cfg := config.Load()
	if err := run(cfg, logger, query, *limit); err != nil {
		logger.Error("search failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger, query string, limit int) error {
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

	// The memory backend starts empty every process, so rebuild it from
	// stored embeddings before querying.
	if cfg.Vector.Backend == "memory" {
		if err := warmIndex(ctx, db, index); err != nil {
			return fmt.Errorf("warm index: %w", err)
		}
	}

	emb := embedder.New(nil, embedder.Opts{
		BaseURL:       cfg.Embedder.OllamaURL,
		Model:         cfg.Embedder.Model,
		Dims:          cfg.Embedder.Dims,
		Timeout:       cfg.Embedder.Timeout.Std(),
		MaxInputChars: cfg.Embedder.MaxInputChars,
	})
	svc := search.New(db, index, emb, search.Opts{
		MaxLimit: cfg.Search.MaxLimit,
		MinScore: cfg.Search.ScoreFloor,
	}, nil, logger)

	results, err := svc.Search(ctx, query, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%2d. %.3f  %s\n    %s\n    %s\n", i+1, r.Score, r.Title, r.URL, r.Excerpt)
	}
	return nil
}

// warmIndex fills an index from the embeddings of ready articles.
func warmIndex(ctx context.Context, db *store.Store, index semantic.Index) error {
	embs, err := db.ReadyEmbeddings(ctx)
	if err != nil {
		return err
	}
	if len(embs) == 0 {
		return nil
	}
	if err := index.Ensure(ctx, embs[0].Dims); err != nil {
		return err
	}
	for _, emb := range embs {
		if err := index.Upsert(ctx, emb.ArticleID, emb.Vector); err != nil {
			return err
		}
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
