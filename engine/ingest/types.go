package ingest

import (
	"context"
	"sync"

	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/briefly-ai/briefly/engine/summarizer"
)

// ContentFetcher retrieves and extracts one article page.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) (*domain.Document, error)
}

// SummaryGenerator produces a summary at a requested granularity.
type SummaryGenerator interface {
	Summarize(ctx context.Context, doc *domain.Document, st domain.SummaryType) (*summarizer.Output, error)
}

// Embedder produces the article vector.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.Vector, error)
	Model() string
	Dims() int
}

// fetched carries the article row and its extracted document between stages.
type fetched struct {
	article *domain.Article
	doc     *domain.Document
}

// generated adds the summary and vector produced from a fetched document.
type generated struct {
	fetched
	summary *domain.Summary
	vector  domain.Vector
}

// keyedMutex holds one in-flight marker per URL so concurrent submissions of
// the same address collide before touching the database.
type keyedMutex struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{held: make(map[string]struct{})}
}

// TryAcquire claims key, reporting false if it is already held.
func (k *keyedMutex) TryAcquire(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[key]; busy {
		return false
	}
	k.held[key] = struct{}{}
	return true
}

func (k *keyedMutex) Release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.held, key)
}
