// Package semantic owns the vector index used for similarity search.
// The relational store remains the source of truth; the index can always be
// rebuilt from stored embeddings.
package semantic

import (
	"context"

	"github.com/briefly-ai/briefly/engine/domain"
)

// Hit is one raw index match before hydration from the relational store.
type Hit struct {
	ArticleID string
	Score     float32
}

// Index is implemented by vector search backends.
type Index interface {
	// Ensure prepares the backing collection for vectors of the given width.
	Ensure(ctx context.Context, dims int) error
	// Upsert stores or replaces the vector for an article.
	Upsert(ctx context.Context, articleID string, vec domain.Vector) error
	// Delete removes an article's vector. Missing vectors are not an error.
	Delete(ctx context.Context, articleID string) error
	// Search returns up to limit nearest articles by cosine similarity,
	// best first.
	Search(ctx context.Context, vec domain.Vector, limit int) ([]Hit, error)
	// Count reports how many vectors the index holds.
	Count(ctx context.Context) (int, error)
	Close() error
}
