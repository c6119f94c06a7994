package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
)

func seedReadyArticle(t *testing.T, st *store.Store, url string, vec domain.Vector) *domain.Article {
	t.Helper()
	ctx := context.Background()
	a, created, err := st.CreateArticle(ctx, url)
	if err != nil || !created {
		t.Fatalf("CreateArticle(%s): created=%v err=%v", url, created, err)
	}
	a.Title = "Title for " + url
	a.Content = "Content for " + url
	sum := &domain.Summary{
		ArticleID: a.ID,
		Type:      domain.SummaryComprehensive,
		Text:      "Summary of " + url,
		KeyPoints: []string{"one", "two", "three"},
	}
	emb := &domain.Embedding{ArticleID: a.ID, Model: "test-embed", Dims: len(vec), Vector: vec}
	if err := st.CreateReady(ctx, a, sum, emb); err != nil {
		t.Fatalf("CreateReady: %v", err)
	}
	return a
}

func TestWarmIndexRebuildsFromStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "search.db"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	a1 := seedReadyArticle(t, st, "https://example.com/one", domain.Vector{1, 0, 0, 0})
	seedReadyArticle(t, st, "https://example.com/two", domain.Vector{0, 1, 0, 0})

	idx := semantic.NewMemory()
	if err := warmIndex(context.Background(), st, idx); err != nil {
		t.Fatalf("warmIndex: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("index has %d vectors, want 2", idx.Len())
	}

	hits, err := idx.Search(context.Background(), domain.Vector{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].ArticleID != a1.ID {
		t.Errorf("hits = %+v, want %s first", hits, a1.ID)
	}
}

func TestWarmIndexEmptyStore(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "empty.db"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	idx := semantic.NewMemory()
	if err := warmIndex(context.Background(), st, idx); err != nil {
		t.Fatalf("warmIndex: %v", err)
	}
	if idx.Len() != 0 {
		t.Errorf("index has %d vectors, want 0", idx.Len())
	}
}
