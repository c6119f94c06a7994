package semantic

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/briefly-ai/briefly/engine/domain"
)

// Memory is an in-process Index doing brute-force cosine scans. It serves
// tests and single-node deployments that do not run Qdrant.
type Memory struct {
	mu      sync.RWMutex
	vectors map[string]domain.Vector
}

var _ Index = (*Memory)(nil)

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{vectors: make(map[string]domain.Vector)}
}

func (m *Memory) Ensure(context.Context, int) error { return nil }

func (m *Memory) Upsert(_ context.Context, articleID string, vec domain.Vector) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(domain.Vector, len(vec))
	copy(cp, vec)
	m.vectors[articleID] = cp
	return nil
}

func (m *Memory) Delete(_ context.Context, articleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.vectors, articleID)
	return nil
}

func (m *Memory) Search(_ context.Context, vec domain.Vector, limit int) ([]Hit, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	hits := make([]Hit, 0, len(m.vectors))
	for id, v := range m.vectors {
		hits = append(hits, Hit{ArticleID: id, Score: cosine(vec, v)})
	}
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ArticleID < hits[j].ArticleID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *Memory) Count(context.Context) (int, error) { return m.Len(), nil }

func (m *Memory) Close() error { return nil }

// Len reports the number of indexed vectors.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func cosine(a, b domain.Vector) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
