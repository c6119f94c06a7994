// Package domain defines the core types, status machine, and error taxonomy
// for the Briefly engine. It acts as the validation gate at pipeline entry
// points: anything that crosses into engine code is checked here first.
package domain

import "time"

// SummaryType is the closed set of summary granularities.
type SummaryType string

const (
	SummaryBrief         SummaryType = "brief"
	SummaryComprehensive SummaryType = "comprehensive"
	SummaryDetailed      SummaryType = "detailed"
)

// ValidSummaryTypes is the set of recognised summary types.
var ValidSummaryTypes = map[SummaryType]bool{
	SummaryBrief:         true,
	SummaryComprehensive: true,
	SummaryDetailed:      true,
}

// ExcerptPriority orders summary types from most to least preferred when
// deriving a search excerpt.
var ExcerptPriority = []SummaryType{SummaryComprehensive, SummaryDetailed, SummaryBrief}

// ArticleStatus tracks an article through the ingestion state machine.
type ArticleStatus string

const (
	StatusPending     ArticleStatus = "pending"
	StatusFetching    ArticleStatus = "fetching"
	StatusSummarizing ArticleStatus = "summarizing"
	StatusEmbedding   ArticleStatus = "embedding"
	StatusReady       ArticleStatus = "ready"
	StatusFailed      ArticleStatus = "failed"
)

// Terminal reports whether no further transitions are allowed except a
// fresh re-submission.
func (s ArticleStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Vector is a fixed-dimension embedding vector.
type Vector []float32

// Document is the normalized output of a content fetch.
type Document struct {
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Article is the relational source of truth for one ingested URL.
type Article struct {
	ID          string        `json:"id"`
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Content     string        `json:"content"`
	Status      ArticleStatus `json:"status"`
	FailureKind Kind          `json:"failure_kind,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Summary is a write-once generated summary of one article. An article may
// hold several summaries, at most one per SummaryType.
type Summary struct {
	ID        string      `json:"id"`
	ArticleID string      `json:"article_id"`
	Type      SummaryType `json:"summary_type"`
	Text      string      `json:"summary_text"`
	KeyPoints []string    `json:"key_points"`
	Truncated bool        `json:"truncated,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Embedding is the current vector for one article, tagged with the model
// identifier that produced it so re-embedding is distinguishable.
type Embedding struct {
	ArticleID string    `json:"article_id"`
	Model     string    `json:"model"`
	Dims      int       `json:"dims"`
	Vector    Vector    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchResult is one ranked hit. Score is raw cosine similarity in [-1, 1];
// 1.0 means the query vector matches the article's embedding exactly.
type SearchResult struct {
	ArticleID   string      `json:"article_id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Excerpt     string      `json:"summary_excerpt"`
	SummaryType SummaryType `json:"summary_type"`
	Score       float32     `json:"similarity_score"`
	CreatedAt   time.Time   `json:"created_at"`
}
