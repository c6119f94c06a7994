// Package search answers semantic queries over the ingested corpus: embed
// the query, rank by cosine similarity in the vector index, and hydrate the
// hits from the relational store.
package search

import (
	"context"
	"log/slog"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/pkg/metrics"
)

const excerptRunes = 200

// QueryEmbedder turns a query string into a vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) (domain.Vector, error)
}

// Opts configures a search service.
type Opts struct {
	// MaxLimit caps the requested result count.
	MaxLimit int
	// MinScore drops weak matches; cosine scores below it never surface.
	// Zero selects the default floor. A negative value disables the floor,
	// since cosine scores never fall below -1.
	MinScore float32
}

// DefaultOpts mirrors the API defaults.
var DefaultOpts = Opts{MaxLimit: 50, MinScore: 0.3}

// Service executes semantic searches.
type Service struct {
	store    *store.Store
	index    semantic.Index
	embedder QueryEmbedder
	opts     Opts
	logger   *slog.Logger

	searches *metrics.Counter
	duration *metrics.Histogram
}

// New creates a search service.
func New(st *store.Store, idx semantic.Index, emb QueryEmbedder, opts Opts, m *metrics.Registry, logger *slog.Logger) *Service {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = DefaultOpts.MaxLimit
	}
	if opts.MinScore == 0 {
		opts.MinScore = DefaultOpts.MinScore
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		index:    idx,
		embedder: emb,
		opts:     opts,
		logger:   logger,
		searches: m.Counter("briefly_search_total", "Semantic searches executed"),
		duration: m.Histogram("briefly_search_duration_seconds", "Semantic search duration", nil),
	}
}

// Search returns up to limit articles ranked by similarity to query, best
// first. Scores are raw cosine similarity in [-1, 1]. A non-positive limit
// returns an empty result.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	s.searches.Inc()
	start := time.Now()

	query, err := domain.ValidateQuery(query)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return []domain.SearchResult{}, nil
	}
	if limit > s.opts.MaxLimit {
		limit = s.opts.MaxLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	// Overfetch so hits pointing at deleted or not-ready articles still
	// leave enough candidates to fill the page.
	hits, err := s.index.Search(ctx, vec, limit*2)
	if err != nil {
		return nil, domain.E(domain.KindInternal, "search.Search", err)
	}

	results, err := s.hydrate(ctx, hits)
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}

	s.duration.Since(start)
	s.logger.Debug("search served", "query_len", len(query), "hits", len(hits), "results", len(results))
	return results, nil
}

// hydrate joins index hits with the relational store, dropping anything
// below the score floor or no longer ready.
func (s *Service) hydrate(ctx context.Context, hits []semantic.Hit) ([]domain.SearchResult, error) {
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Score >= s.opts.MinScore {
			ids = append(ids, h.ArticleID)
		}
	}
	articles, err := s.store.ArticlesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(ids))
	for _, h := range hits {
		a, ok := articles[h.ArticleID]
		if !ok {
			continue
		}
		sums, err := s.store.SummariesFor(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		excerpt, st := pickExcerpt(sums)
		results = append(results, domain.SearchResult{
			ArticleID:   a.ID,
			Title:       a.Title,
			URL:         a.URL,
			Excerpt:     excerpt,
			SummaryType: st,
			Score:       h.Score,
			CreatedAt:   a.CreatedAt,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

// pickExcerpt selects the excerpt source summary, preferring the richer
// granularities, and cuts it for display.
func pickExcerpt(sums []domain.Summary) (string, domain.SummaryType) {
	for _, want := range domain.ExcerptPriority {
		for _, sum := range sums {
			if sum.Type == want {
				return truncateRunes(sum.Text, excerptRunes), sum.Type
			}
		}
	}
	return "", ""
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}
