// Package main implements the Briefly API server: article ingestion and
// semantic search over the summarized corpus.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/briefly-ai/briefly/engine/embedder"
	"github.com/briefly-ai/briefly/engine/fetcher"
	"github.com/briefly-ai/briefly/engine/ingest"
	"github.com/briefly-ai/briefly/engine/search"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/engine/summarizer"
	"github.com/briefly-ai/briefly/pkg/config"
	"github.com/briefly-ai/briefly/pkg/metrics"
	"github.com/briefly-ai/briefly/pkg/mid"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := config.Load()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Relational store ---
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// --- Vector index ---
	index, err := openIndex(cfg)
	if err != nil {
		return err
	}
	defer index.Close()
	if err := index.Ensure(ctx, cfg.Embedder.Dims); err != nil {
		return fmt.Errorf("ensure vector collection: %w", err)
	}

	// --- Optional NATS eventing ---
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL, nats.Name("briefly-api"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Drain()
	}

	// --- Pipeline components ---
	reg := metrics.New()
	fet := fetcher.New(nil, fetcher.Opts{
		Timeout:      cfg.Fetcher.Timeout.Std(),
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		RatePerSec:   cfg.Fetcher.RatePerSec,
		UserAgent:    cfg.Fetcher.UserAgent,
	}, logger)
	sum := summarizer.New(nil, summarizer.Opts{
		Endpoint:      cfg.Summarizer.Endpoint,
		APIKey:        cfg.Summarizer.APIKey,
		Model:         cfg.Summarizer.Model,
		Timeout:       cfg.Summarizer.Timeout.Std(),
		MaxInputChars: cfg.Summarizer.MaxInputChars,
	}, logger)
	emb := embedder.New(nil, embedder.Opts{
		BaseURL:       cfg.Embedder.OllamaURL,
		Model:         cfg.Embedder.Model,
		Dims:          cfg.Embedder.Dims,
		Timeout:       cfg.Embedder.Timeout.Std(),
		MaxInputChars: cfg.Embedder.MaxInputChars,
	})

	ingestSvc := ingest.New(ingest.Deps{
		Store:      st,
		Fetcher:    fet,
		Summarizer: sum,
		Embedder:   emb,
		Index:      index,
		NATS:       nc,
		Metrics:    reg,
		Logger:     logger,
	})
	searchSvc := search.New(st, index, emb, search.Opts{
		MaxLimit: cfg.Search.MaxLimit,
		MinScore: cfg.Search.ScoreFloor,
	}, reg, logger)

	// --- HTTP server ---
	srv := &server{
		ingest:  ingestSvc,
		search:  searchSvc,
		store:   st,
		index:   index,
		metrics: reg,
		logger:  logger,
	}
	handler := mid.Chain(srv.routes(),
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.Server.CORSOrigin),
		mid.OTel("briefly-api"),
	)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler,
		// Ingestion fetches and summarizes inline, so writes take a while.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Server.Port, "vector_backend", cfg.Vector.Backend)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutCtx)
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
