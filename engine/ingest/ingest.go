// Package ingest orchestrates the article pipeline: fetch, summarize, embed,
// commit, index. The relational store is written in one transaction so an
// article is never visible as ready without its summary and embedding; the
// vector index is updated only after that commit.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/pkg/fn"
	"github.com/briefly-ai/briefly/pkg/metrics"
	"github.com/briefly-ai/briefly/pkg/natsutil"
	"github.com/briefly-ai/briefly/pkg/resilience"
	"github.com/nats-io/nats.go"
)

const (
	// IngestedSubject carries events for articles that became searchable.
	IngestedSubject = "articles.ingested"
	// FailedSubject carries events for articles whose ingestion failed.
	FailedSubject = "articles.failed"
)

// fetchRetry drives re-attempts of transient fetch failures.
var fetchRetry = fn.RetryOpts{
	MaxAttempts: 3,
	InitialWait: time.Second,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// genRetry allows one extra attempt after a generation timeout.
var genRetry = fn.RetryOpts{
	MaxAttempts: 2,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     2 * time.Second,
	Jitter:      true,
}

// Deps holds the external dependencies of the ingestion service.
type Deps struct {
	Store      *store.Store
	Fetcher    ContentFetcher
	Summarizer SummaryGenerator
	Embedder   Embedder
	Index      semantic.Index
	NATS       *nats.Conn // optional, nil disables events
	Metrics    *metrics.Registry
	Logger     *slog.Logger
}

// Service runs article ingestion.
type Service struct {
	deps     Deps
	inflight *keyedMutex
	breaker  *resilience.Breaker

	submissions *metrics.Counter
	ingested    *metrics.Counter
	failed      *metrics.Counter
	duration    *metrics.Histogram
}

// New creates the ingestion service. The circuit breaker guards the
// generation backend so a down model API sheds load fast.
func New(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	m := deps.Metrics
	return &Service{
		deps:        deps,
		inflight:    newKeyedMutex(),
		breaker:     resilience.NewBreaker(resilience.DefaultBreakerOpts),
		submissions: m.Counter("briefly_ingest_submissions_total", "Article submissions received"),
		ingested:    m.Counter("briefly_ingest_ready_total", "Articles that became searchable"),
		failed:      m.Counter("briefly_ingest_failed_total", "Articles whose ingestion failed"),
		duration:    m.Histogram("briefly_ingest_duration_seconds", "End-to-end ingestion duration", nil),
	}
}

// event is the payload published on ingestion subjects.
type event struct {
	ArticleID string    `json:"article_id"`
	URL       string    `json:"url"`
	Status    string    `json:"status"`
	Kind      string    `json:"kind,omitempty"`
	At        time.Time `json:"at"`
}

// Submit ingests rawURL and returns the article with its summary of the
// requested type. Created reports whether a new ingestion ran; a URL that is
// already ready returns the stored article, generating and attaching the
// summary type on demand if it is missing.
func (s *Service) Submit(ctx context.Context, rawURL string, st domain.SummaryType) (*domain.Article, *domain.Summary, bool, error) {
	s.submissions.Inc()
	start := time.Now()

	url, err := domain.ValidateURL(rawURL)
	if err != nil {
		return nil, nil, false, err
	}
	if !domain.ValidSummaryTypes[st] {
		return nil, nil, false, domain.Ef(domain.KindInvalidInput, "ingest.Submit", "unknown summary type %q", st)
	}

	if !s.inflight.TryAcquire(url) {
		return nil, nil, false, domain.Ef(domain.KindIngestionInProgress, "ingest.Submit", "url %s is already being ingested", url)
	}
	defer s.inflight.Release(url)

	article, created, err := s.deps.Store.CreateArticle(ctx, url)
	if err != nil {
		return nil, nil, false, err
	}

	if !created {
		sum, err := s.summaryFor(ctx, article, st)
		if err != nil {
			return nil, nil, false, err
		}
		return article, sum, false, nil
	}

	sum, err := s.run(ctx, article, st)
	if err != nil {
		s.failed.Inc()
		s.fail(ctx, article, err)
		return nil, nil, false, err
	}

	s.ingested.Inc()
	s.duration.Since(start)
	s.publish(ctx, IngestedSubject, event{
		ArticleID: article.ID, URL: article.URL, Status: string(domain.StatusReady), At: time.Now().UTC(),
	})
	s.deps.Logger.Info("article ingested", "article_id", article.ID, "url", article.URL, "duration", time.Since(start))
	return article, sum, true, nil
}

// run drives one article through the pipeline stages.
func (s *Service) run(ctx context.Context, article *domain.Article, st domain.SummaryType) (*domain.Summary, error) {
	pipeline := fn.Then(s.fetchStage(), s.generateStage(st))

	r := pipeline(ctx, fetched{article: article})
	g, err := r.Unwrap()
	if err != nil {
		return nil, err
	}

	if err := s.deps.Store.SetStatus(ctx, article.ID, domain.StatusEmbedding); err != nil {
		return nil, err
	}

	emb := &domain.Embedding{
		ArticleID: article.ID,
		Model:     s.deps.Embedder.Model(),
		Dims:      len(g.vector),
		Vector:    g.vector,
	}
	if err := s.deps.Store.CreateReady(ctx, article, g.summary, emb); err != nil {
		return nil, err
	}

	// The index is best-effort after the commit: search falls back to a
	// rebuild (Reindex) if an upsert is lost.
	if err := s.deps.Index.Upsert(ctx, article.ID, g.vector); err != nil {
		s.deps.Logger.Warn("index upsert failed", "article_id", article.ID, "error", err)
	}
	return g.summary, nil
}

// fetchStage fetches the page with retry on transient failures and records
// the status transition.
func (s *Service) fetchStage() fn.Stage[fetched, fetched] {
	stage := func(ctx context.Context, f fetched) fn.Result[fetched] {
		doc, err := s.deps.Fetcher.Fetch(ctx, f.article.URL)
		if err != nil {
			return fn.Err[fetched](err)
		}
		f.doc = doc
		f.article.Title = doc.Title
		f.article.Content = doc.Body
		return fn.Ok(f)
	}

	retried := fn.RetryStage(fetchRetry, func(err error) bool {
		return domain.RetryableFetch(domain.KindOf(err))
	}, stage)

	entered := fn.Then(fn.TapStage(func(ctx context.Context, f fetched) {
		if err := s.deps.Store.SetStatus(ctx, f.article.ID, domain.StatusFetching); err != nil {
			s.deps.Logger.Warn("status update failed", "article_id", f.article.ID, "error", err)
		}
	}), retried)

	return fn.TracedStage("ingest.fetch", entered)
}

// generateStage runs summarization and embedding concurrently behind the
// generation circuit breaker, retrying once on timeout.
func (s *Service) generateStage(st domain.SummaryType) fn.Stage[fetched, generated] {
	stage := func(ctx context.Context, f fetched) fn.Result[generated] {
		var (
			sum *domain.Summary
			vec domain.Vector
		)
		r := fn.FanOutResult(
			func() fn.Result[struct{}] {
				out, err := s.deps.Summarizer.Summarize(ctx, f.doc, st)
				if err != nil {
					return fn.Err[struct{}](err)
				}
				sum = &domain.Summary{
					ArticleID: f.article.ID,
					Type:      out.Type,
					Text:      out.Text,
					KeyPoints: out.KeyPoints,
					Truncated: out.Truncated,
				}
				return fn.Ok(struct{}{})
			},
			func() fn.Result[struct{}] {
				v, err := s.deps.Embedder.Embed(ctx, f.doc.Body)
				if err != nil {
					return fn.Err[struct{}](err)
				}
				vec = v
				return fn.Ok(struct{}{})
			},
		)
		if _, err := r.Unwrap(); err != nil {
			return fn.Err[generated](err)
		}
		return fn.Ok(generated{fetched: f, summary: sum, vector: vec})
	}

	guarded := resilience.BreakerStage(s.breaker, stage)
	mapped := func(ctx context.Context, f fetched) fn.Result[generated] {
		r := guarded(ctx, f)
		if _, err := r.Unwrap(); errors.Is(err, resilience.ErrCircuitOpen) {
			return fn.Err[generated](domain.E(domain.KindGenerationUnavailable, "ingest.generate", err))
		}
		return r
	}
	retried := fn.RetryStage(genRetry, func(err error) bool {
		return domain.RetryableGeneration(domain.KindOf(err))
	}, mapped)

	entered := fn.Then(fn.TapStage(func(ctx context.Context, f fetched) {
		if err := s.deps.Store.SetStatus(ctx, f.article.ID, domain.StatusSummarizing); err != nil {
			s.deps.Logger.Warn("status update failed", "article_id", f.article.ID, "error", err)
		}
	}), retried)

	return fn.TracedStage("ingest.generate", entered)
}

// summaryFor returns the stored summary of the requested type, generating
// and attaching one from the stored content when missing.
func (s *Service) summaryFor(ctx context.Context, article *domain.Article, st domain.SummaryType) (*domain.Summary, error) {
	sums, err := s.deps.Store.SummariesFor(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	for i := range sums {
		if sums[i].Type == st {
			return &sums[i], nil
		}
	}

	doc := &domain.Document{URL: article.URL, Title: article.Title, Body: article.Content}
	out, err := s.deps.Summarizer.Summarize(ctx, doc, st)
	if err != nil {
		return nil, err
	}
	sum, _, err := s.deps.Store.AttachSummary(ctx, &domain.Summary{
		ArticleID: article.ID,
		Type:      out.Type,
		Text:      out.Text,
		KeyPoints: out.KeyPoints,
		Truncated: out.Truncated,
	})
	return sum, err
}

// fail records the terminal failure and publishes the event. Bookkeeping
// runs detached from the request context so cancellation cannot leave an
// article stuck mid-status.
func (s *Service) fail(ctx context.Context, article *domain.Article, cause error) {
	kind := domain.KindOf(cause)
	bg := context.WithoutCancel(ctx)
	if err := s.deps.Store.MarkFailed(bg, article.ID, kind); err != nil {
		s.deps.Logger.Error("mark failed", "article_id", article.ID, "error", err)
	}
	s.publish(bg, FailedSubject, event{
		ArticleID: article.ID, URL: article.URL, Status: string(domain.StatusFailed),
		Kind: string(kind), At: time.Now().UTC(),
	})
	s.deps.Logger.Error("article ingestion failed", "article_id", article.ID, "url", article.URL, "kind", kind, "error", cause)
}

func (s *Service) publish(ctx context.Context, subject string, ev event) {
	if err := natsutil.Publish(ctx, s.deps.NATS, subject, ev); err != nil {
		s.deps.Logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

// Reindex rebuilds the vector index from the relational store and returns
// the number of vectors written.
func (s *Service) Reindex(ctx context.Context) (int, error) {
	embs, err := s.deps.Store.ReadyEmbeddings(ctx)
	if err != nil {
		return 0, err
	}
	if len(embs) > 0 {
		if err := s.deps.Index.Ensure(ctx, embs[0].Dims); err != nil {
			return 0, err
		}
	}
	for _, emb := range embs {
		if err := s.deps.Index.Upsert(ctx, emb.ArticleID, emb.Vector); err != nil {
			return 0, domain.E(domain.KindInternal, "ingest.Reindex", err)
		}
	}
	s.deps.Logger.Info("index rebuilt", "vectors", len(embs))
	return len(embs), nil
}
