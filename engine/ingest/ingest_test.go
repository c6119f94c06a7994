package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/semantic"
	"github.com/briefly-ai/briefly/engine/store"
	"github.com/briefly-ai/briefly/engine/summarizer"
)

// --- Stubs ---

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	errs  []error // consumed per call, nil means success
	doc   *domain.Document
}

func (f *stubFetcher) Fetch(_ context.Context, url string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	doc := *f.doc
	doc.URL = url
	return &doc, nil
}

// blockingFetcher parks the first Fetch until release is closed, signalling
// entry on entered, so a test can overlap a second submission with it.
type blockingFetcher struct {
	entered chan struct{}
	release chan struct{}
	doc     *domain.Document
}

func (f *blockingFetcher) Fetch(_ context.Context, url string) (*domain.Document, error) {
	close(f.entered)
	<-f.release
	doc := *f.doc
	doc.URL = url
	return &doc, nil
}

type stubSummarizer struct {
	calls atomic.Int32
	err   error
}

func (s *stubSummarizer) Summarize(_ context.Context, doc *domain.Document, st domain.SummaryType) (*summarizer.Output, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &summarizer.Output{Type: st, Text: "summary of " + doc.Title, KeyPoints: []string{"a", "b", "c"}}, nil
}

type stubEmbedder struct {
	err error
}

func (e *stubEmbedder) Embed(context.Context, string) (domain.Vector, error) {
	if e.err != nil {
		return nil, e.err
	}
	return domain.Vector{0.1, 0.2, 0.3, 0.4}, nil
}

func (e *stubEmbedder) Model() string { return "stub-embed" }
func (e *stubEmbedder) Dims() int     { return 4 }

func testDoc() *domain.Document {
	return &domain.Document{Title: "Some Article", Body: "Long enough body text for the pipeline."}
}

func testService(t *testing.T, f ContentFetcher, sg SummaryGenerator, e Embedder) (*Service, *store.Store, *semantic.Memory) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	idx := semantic.NewMemory()
	svc := New(Deps{Store: st, Fetcher: f, Summarizer: sg, Embedder: e, Index: idx})
	return svc, st, idx
}

func fastRetries(t *testing.T) {
	t.Helper()
	origFetch, origGen := fetchRetry, genRetry
	fetchRetry.InitialWait, fetchRetry.MaxWait = 0, 0
	genRetry.InitialWait, genRetry.MaxWait = 0, 0
	t.Cleanup(func() { fetchRetry, genRetry = origFetch, origGen })
}

// --- Tests ---

func TestSubmitHappyPath(t *testing.T) {
	svc, st, idx := testService(t, &stubFetcher{doc: testDoc()}, &stubSummarizer{}, &stubEmbedder{})

	a, sum, created, err := svc.Submit(context.Background(), "https://example.com/post", domain.SummaryComprehensive)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !created {
		t.Error("want created=true")
	}
	if a.Status != domain.StatusReady || a.Title != "Some Article" {
		t.Errorf("article = %+v", a)
	}
	if sum == nil || sum.Type != domain.SummaryComprehensive || sum.Text == "" {
		t.Errorf("summary = %+v", sum)
	}

	stored, err := st.GetArticle(context.Background(), a.ID)
	if err != nil || stored.Status != domain.StatusReady {
		t.Fatalf("stored = %+v, err %v", stored, err)
	}
	if _, err := st.EmbeddingFor(context.Background(), a.ID); err != nil {
		t.Errorf("embedding missing: %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("index has %d vectors, want 1", idx.Len())
	}
}

func TestSubmitConcurrentSameURLRejected(t *testing.T) {
	f := &blockingFetcher{entered: make(chan struct{}), release: make(chan struct{}), doc: testDoc()}
	svc, _, idx := testService(t, f, &stubSummarizer{}, &stubEmbedder{})
	const url = "https://example.com/contended"

	type outcome struct {
		article *domain.Article
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		a, _, _, err := svc.Submit(context.Background(), url, domain.SummaryBrief)
		done <- outcome{a, err}
	}()

	// The first submission is parked inside Fetch, so the URL is claimed
	// before the database row exists.
	<-f.entered
	_, _, _, err := svc.Submit(context.Background(), url, domain.SummaryBrief)
	if domain.KindOf(err) != domain.KindIngestionInProgress {
		t.Fatalf("overlapping submit kind = %v, want %v", domain.KindOf(err), domain.KindIngestionInProgress)
	}

	close(f.release)
	first := <-done
	if first.err != nil {
		t.Fatalf("first submit: %v", first.err)
	}
	if first.article.Status != domain.StatusReady {
		t.Errorf("first article status = %v", first.article.Status)
	}
	if idx.Len() != 1 {
		t.Errorf("index has %d vectors, want 1", idx.Len())
	}
}

func TestSubmitInvalidInputs(t *testing.T) {
	svc, _, _ := testService(t, &stubFetcher{doc: testDoc()}, &stubSummarizer{}, &stubEmbedder{})

	if _, _, _, err := svc.Submit(context.Background(), "not a url", domain.SummaryBrief); domain.KindOf(err) != domain.KindInvalidInput {
		t.Errorf("bad url: kind = %v", domain.KindOf(err))
	}
	if _, _, _, err := svc.Submit(context.Background(), "https://example.com", "tweet"); domain.KindOf(err) != domain.KindInvalidInput {
		t.Errorf("bad type: kind = %v", domain.KindOf(err))
	}
}

func TestSubmitRetriesTransientFetch(t *testing.T) {
	fastRetries(t)
	f := &stubFetcher{
		doc: testDoc(),
		errs: []error{
			domain.Ef(domain.KindFetchFailed, "test", "502"),
			domain.Ef(domain.KindFetchTimeout, "test", "slow"),
			nil,
		},
	}
	svc, _, _ := testService(t, f, &stubSummarizer{}, &stubEmbedder{})

	a, _, _, err := svc.Submit(context.Background(), "https://example.com/flaky", domain.SummaryBrief)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if f.calls != 3 {
		t.Errorf("fetch calls = %d, want 3", f.calls)
	}
	if a.Status != domain.StatusReady {
		t.Errorf("status = %s", a.Status)
	}
}

func TestSubmitPermanentFetchFailsFast(t *testing.T) {
	fastRetries(t)
	f := &stubFetcher{
		doc:  testDoc(),
		errs: []error{domain.Ef(domain.KindFetchRejected, "test", "404"), nil, nil},
	}
	svc, st, idx := testService(t, f, &stubSummarizer{}, &stubEmbedder{})

	_, _, _, err := svc.Submit(context.Background(), "https://example.com/gone", domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindFetchRejected {
		t.Fatalf("kind = %v, want fetch_rejected", got)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, permanent errors must not be retried", f.calls)
	}

	a, err := st.GetArticleByURL(context.Background(), "https://example.com/gone")
	if err != nil {
		t.Fatalf("GetArticleByURL: %v", err)
	}
	if a.Status != domain.StatusFailed || a.FailureKind != domain.KindFetchRejected {
		t.Errorf("article = status %s kind %s", a.Status, a.FailureKind)
	}
	if idx.Len() != 0 {
		t.Error("failed article must not reach the index")
	}
}

func TestSubmitGenerationFailureMarksFailed(t *testing.T) {
	fastRetries(t)
	svc, st, _ := testService(t, &stubFetcher{doc: testDoc()},
		&stubSummarizer{err: domain.Ef(domain.KindGenerationUnavailable, "test", "down")}, &stubEmbedder{})

	_, _, _, err := svc.Submit(context.Background(), "https://example.com/a", domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindGenerationUnavailable {
		t.Fatalf("kind = %v", got)
	}

	a, _ := st.GetArticleByURL(context.Background(), "https://example.com/a")
	if a.Status != domain.StatusFailed || a.FailureKind != domain.KindGenerationUnavailable {
		t.Errorf("article = status %s kind %s", a.Status, a.FailureKind)
	}
}

func TestSubmitGenerationTimeoutRetriedOnce(t *testing.T) {
	fastRetries(t)
	sg := &stubSummarizer{err: domain.Ef(domain.KindGenerationTimeout, "test", "slow")}
	svc, _, _ := testService(t, &stubFetcher{doc: testDoc()}, sg, &stubEmbedder{})

	_, _, _, err := svc.Submit(context.Background(), "https://example.com/slow", domain.SummaryBrief)
	if got := domain.KindOf(err); got != domain.KindGenerationTimeout {
		t.Fatalf("kind = %v", got)
	}
	if n := sg.calls.Load(); n != 2 {
		t.Errorf("summarize calls = %d, want 2 (one retry after timeout)", n)
	}
}

func TestSubmitReadyURLIsIdempotent(t *testing.T) {
	f := &stubFetcher{doc: testDoc()}
	sg := &stubSummarizer{}
	svc, _, _ := testService(t, f, sg, &stubEmbedder{})
	ctx := context.Background()

	a1, _, created, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryComprehensive)
	if err != nil || !created {
		t.Fatalf("first submit: created=%v err=%v", created, err)
	}

	a2, sum, created, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryComprehensive)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if created || a2.ID != a1.ID {
		t.Errorf("second submit created=%v id=%s, want existing %s", created, a2.ID, a1.ID)
	}
	if sum == nil || sum.Type != domain.SummaryComprehensive {
		t.Errorf("summary = %+v", sum)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, resubmission must not refetch", f.calls)
	}
}

func TestSubmitNewTypeAttachesFromStoredContent(t *testing.T) {
	f := &stubFetcher{doc: testDoc()}
	svc, st, _ := testService(t, f, &stubSummarizer{}, &stubEmbedder{})
	ctx := context.Background()

	a, _, _, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryComprehensive)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, sum, created, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryBrief)
	if err != nil {
		t.Fatalf("Submit brief: %v", err)
	}
	if created {
		t.Error("attaching a summary type must not re-ingest")
	}
	if sum.Type != domain.SummaryBrief {
		t.Errorf("summary type = %s", sum.Type)
	}
	if f.calls != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls)
	}

	sums, _ := st.SummariesFor(ctx, a.ID)
	if len(sums) != 2 {
		t.Errorf("stored summaries = %d, want 2", len(sums))
	}
}

func TestSubmitFailedURLStartsFresh(t *testing.T) {
	fastRetries(t)
	f := &stubFetcher{
		doc:  testDoc(),
		errs: []error{domain.Ef(domain.KindFetchRejected, "test", "403")},
	}
	svc, _, _ := testService(t, f, &stubSummarizer{}, &stubEmbedder{})
	ctx := context.Background()

	if _, _, _, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryBrief); err == nil {
		t.Fatal("first submit should fail")
	}

	a, _, created, err := svc.Submit(ctx, "https://example.com/a", domain.SummaryBrief)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if !created {
		t.Error("resubmission of a failed url should run a fresh ingestion")
	}
	if a.Status != domain.StatusReady {
		t.Errorf("status = %s", a.Status)
	}
}

func TestReindexRebuildsFromStore(t *testing.T) {
	svc, _, _ := testService(t, &stubFetcher{doc: testDoc()}, &stubSummarizer{}, &stubEmbedder{})
	ctx := context.Background()

	for _, u := range []string{"https://example.com/1", "https://example.com/2"} {
		if _, _, _, err := svc.Submit(ctx, u, domain.SummaryBrief); err != nil {
			t.Fatalf("Submit(%s): %v", u, err)
		}
	}

	fresh := semantic.NewMemory()
	svc.deps.Index = fresh
	n, err := svc.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if n != 2 || fresh.Len() != 2 {
		t.Errorf("reindexed %d, index holds %d, want 2", n, fresh.Len())
	}
}
