package search

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
)

// queryEmbedderFunc adapts a function to QueryEmbedder.
type queryEmbedderFunc func(context.Context, string) (domain.Vector, error)

func (f queryEmbedderFunc) Embed(ctx context.Context, text string) (domain.Vector, error) {
	return f(ctx, text)
}

func fixedEmbedder(v domain.Vector) QueryEmbedder {
	return queryEmbedderFunc(func(context.Context, string) (domain.Vector, error) {
		return v, nil
	})
}

// seedReady inserts a ready article with the given vector and summaries.
func seedReady(t *testing.T, st *store.Store, idx semantic.Index, url string, vec domain.Vector, sums ...domain.Summary) *domain.Article {
	t.Helper()
	ctx := context.Background()
	a, _, err := st.CreateArticle(ctx, url)
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	a.Title = "Title " + url
	a.Content = "Content " + url
	first := sums[0]
	first.ArticleID = a.ID
	emb := &domain.Embedding{ArticleID: a.ID, Model: "test", Dims: len(vec), Vector: vec}
	if err := st.CreateReady(ctx, a, &first, emb); err != nil {
		t.Fatalf("CreateReady: %v", err)
	}
	for _, sum := range sums[1:] {
		sum.ArticleID = a.ID
		if _, _, err := st.AttachSummary(ctx, &sum); err != nil {
			t.Fatalf("AttachSummary: %v", err)
		}
	}
	if err := idx.Upsert(ctx, a.ID, vec); err != nil {
		t.Fatalf("index upsert: %v", err)
	}
	return a
}

func testService(t *testing.T, emb QueryEmbedder) (*Service, *store.Store, *semantic.Memory) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	idx := semantic.NewMemory()
	return New(st, idx, emb, Opts{}, nil, nil), st, idx
}

func TestSearchRanksByCosine(t *testing.T) {
	svc, st, idx := testService(t, fixedEmbedder(domain.Vector{1, 0}))
	comp := domain.Summary{Type: domain.SummaryComprehensive, Text: "compsum"}

	far := seedReady(t, st, idx, "https://t.test/far", domain.Vector{0.5, 0.86}, comp)
	near := seedReady(t, st, idx, "https://t.test/near", domain.Vector{0.99, 0.05}, comp)

	results, err := svc.Search(context.Background(), "anything", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ArticleID != near.ID || results[1].ArticleID != far.ID {
		t.Errorf("order = %s, %s", results[0].URL, results[1].URL)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("scores not descending: %v", results)
	}
}

func TestSearchScoreFloor(t *testing.T) {
	svc, st, idx := testService(t, fixedEmbedder(domain.Vector{1, 0}))
	comp := domain.Summary{Type: domain.SummaryComprehensive, Text: "s"}

	seedReady(t, st, idx, "https://t.test/orthogonal", domain.Vector{0, 1}, comp)
	seedReady(t, st, idx, "https://t.test/close", domain.Vector{1, 0.1}, comp)

	results, err := svc.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || !strings.HasSuffix(results[0].URL, "/close") {
		t.Errorf("results = %+v, want only the close article", results)
	}
}

func TestSearchNegativeFloorDisablesFiltering(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	idx := semantic.NewMemory()
	svc := New(st, idx, fixedEmbedder(domain.Vector{1, 0}), Opts{MinScore: -1}, nil, nil)
	comp := domain.Summary{Type: domain.SummaryComprehensive, Text: "s"}

	seedReady(t, st, idx, "https://t.test/opposite", domain.Vector{-1, 0}, comp)
	seedReady(t, st, idx, "https://t.test/close", domain.Vector{1, 0.1}, comp)

	results, err := svc.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %+v, want both articles with the floor disabled", results)
	}
	if results[0].Score <= results[1].Score {
		t.Errorf("not ranked: %+v", results)
	}
}

func TestSearchExcerptPriorityAndTruncation(t *testing.T) {
	svc, st, idx := testService(t, fixedEmbedder(domain.Vector{1, 0}))

	longComp := strings.Repeat("c", 300)
	seedReady(t, st, idx, "https://t.test/a", domain.Vector{1, 0},
		domain.Summary{Type: domain.SummaryBrief, Text: "briefsum"},
		domain.Summary{Type: domain.SummaryComprehensive, Text: longComp},
	)

	results, err := svc.Search(context.Background(), "q", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	r := results[0]
	if r.SummaryType != domain.SummaryComprehensive {
		t.Errorf("excerpt drawn from %s, want comprehensive", r.SummaryType)
	}
	if want := strings.Repeat("c", 200) + "…"; r.Excerpt != want {
		t.Errorf("excerpt = %d chars ending %q", len(r.Excerpt), r.Excerpt[len(r.Excerpt)-4:])
	}
}

func TestSearchLimits(t *testing.T) {
	svc, st, idx := testService(t, fixedEmbedder(domain.Vector{1, 0}))
	comp := domain.Summary{Type: domain.SummaryBrief, Text: "s"}
	for i, u := range []string{"https://t.test/1", "https://t.test/2", "https://t.test/3"} {
		seedReady(t, st, idx, u, domain.Vector{1, float32(i) * 0.01}, comp)
	}

	results, err := svc.Search(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("limit not applied: %d results", len(results))
	}

	empty, err := svc.Search(context.Background(), "q", 0)
	if err != nil {
		t.Fatalf("Search limit 0: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("limit 0 returned %d results", len(empty))
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc, _, _ := testService(t, fixedEmbedder(domain.Vector{1}))
	if _, err := svc.Search(context.Background(), "   ", 5); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestSearchSkipsNonReadyHits(t *testing.T) {
	svc, st, idx := testService(t, fixedEmbedder(domain.Vector{1, 0}))
	comp := domain.Summary{Type: domain.SummaryBrief, Text: "s"}
	seedReady(t, st, idx, "https://t.test/ready", domain.Vector{1, 0}, comp)

	// A vector whose article is still pending must not surface.
	pending, _, err := st.CreateArticle(context.Background(), "https://t.test/pending")
	if err != nil {
		t.Fatalf("CreateArticle: %v", err)
	}
	if err := idx.Upsert(context.Background(), pending.ID, domain.Vector{1, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	results, err := svc.Search(context.Background(), "q", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || !strings.HasSuffix(results[0].URL, "/ready") {
		t.Errorf("results = %+v", results)
	}
}

func TestSearchEmptyCorpus(t *testing.T) {
	svc, _, _ := testService(t, fixedEmbedder(domain.Vector{1, 0}))
	results, err := svc.Search(context.Background(), "q", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("empty corpus returned %d results", len(results))
	}
}
