package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/briefly-ai/briefly/engine/domain"
	"github.com/google/uuid"
)

var articleColumns = []string{"id", "url", "title", "content", "status", "failure_kind", "created_at", "updated_at"}

// CreateArticle registers url for ingestion and returns the article row.
// Behaviour depends on what already exists for the URL:
//   - nothing: a fresh pending article, created=true
//   - a ready article: that article, created=false
//   - a failed article: the row is reset to pending and its summaries and
//     embedding are wiped, created=true
//   - an article mid-ingestion: ingestion_in_progress
func (s *Store) CreateArticle(ctx context.Context, url string) (*domain.Article, bool, error) {
	const op = "store.CreateArticle"

	var (
		out     *domain.Article
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.articleBy(ctx, tx, sq.Eq{"url": url})
		switch {
		case err == nil:
			switch {
			case existing.Status == domain.StatusReady:
				out, created = existing, false
				return nil
			case existing.Status == domain.StatusFailed:
				out, err = s.resetArticle(ctx, tx, existing)
				created = true
				return err
			default:
				return domain.Ef(domain.KindIngestionInProgress, op, "url %s is already being ingested", url)
			}
		case errors.Is(err, sql.ErrNoRows):
			now := s.now()
			a := &domain.Article{
				ID:        uuid.NewString(),
				URL:       url,
				Status:    domain.StatusPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			q := s.sb.Insert("articles").
				Columns(articleColumns...).
				Values(a.ID, a.URL, a.Title, a.Content, a.Status, a.FailureKind, a.CreatedAt, a.UpdatedAt)
			if _, err := execTx(ctx, tx, q); err != nil {
				return domain.E(domain.KindInternal, op, err)
			}
			out, created = a, true
			return nil
		default:
			return domain.E(domain.KindInternal, op, err)
		}
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// resetArticle prepares a previously failed article for a fresh attempt.
func (s *Store) resetArticle(ctx context.Context, tx *sql.Tx, a *domain.Article) (*domain.Article, error) {
	for _, table := range []string{"summaries", "embeddings"} {
		if _, err := execTx(ctx, tx, s.sb.Delete(table).Where(sq.Eq{"article_id": a.ID})); err != nil {
			return nil, fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	a.Status = domain.StatusPending
	a.FailureKind = ""
	a.Title = ""
	a.Content = ""
	a.UpdatedAt = s.now()
	q := s.sb.Update("articles").
		SetMap(map[string]any{
			"status": a.Status, "failure_kind": "", "title": "", "content": "", "updated_at": a.UpdatedAt,
		}).
		Where(sq.Eq{"id": a.ID})
	if _, err := execTx(ctx, tx, q); err != nil {
		return nil, fmt.Errorf("reset article: %w", err)
	}
	return a, nil
}

// SetStatus advances the article's ingestion status.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.ArticleStatus) error {
	const op = "store.SetStatus"
	q := s.sb.Update("articles").
		SetMap(map[string]any{"status": status, "updated_at": s.now()}).
		Where(sq.Eq{"id": id})
	res, err := exec(ctx, s.db, q)
	if err != nil {
		return domain.E(domain.KindInternal, op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Ef(domain.KindNotFound, op, "article %s not found", id)
	}
	return nil
}

// MarkFailed records a terminal failure with the error kind that caused it.
func (s *Store) MarkFailed(ctx context.Context, id string, kind domain.Kind) error {
	const op = "store.MarkFailed"
	q := s.sb.Update("articles").
		SetMap(map[string]any{"status": domain.StatusFailed, "failure_kind": string(kind), "updated_at": s.now()}).
		Where(sq.Eq{"id": id})
	if _, err := exec(ctx, s.db, q); err != nil {
		return domain.E(domain.KindInternal, op, err)
	}
	return nil
}

// CreateReady commits the outcome of a successful ingestion in one
// transaction: the article gains its title and content, the summary and
// embedding are inserted, and the status flips to ready. A crash at any
// point leaves the article in its pre-commit state.
func (s *Store) CreateReady(ctx context.Context, a *domain.Article, sum *domain.Summary, emb *domain.Embedding) error {
	const op = "store.CreateReady"

	now := s.now()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		q := s.sb.Update("articles").
			SetMap(map[string]any{
				"title": a.Title, "content": a.Content,
				"status": domain.StatusReady, "failure_kind": "", "updated_at": now,
			}).
			Where(sq.Eq{"id": a.ID})
		res, err := execTx(ctx, tx, q)
		if err != nil {
			return domain.E(domain.KindInternal, op, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.Ef(domain.KindNotFound, op, "article %s not found", a.ID)
		}
		if err := insertSummary(ctx, tx, s.sb, sum, now); err != nil {
			return domain.E(domain.KindInternal, op, err)
		}
		if err := upsertEmbedding(ctx, tx, s.sb, emb, now); err != nil {
			return domain.E(domain.KindInternal, op, err)
		}
		a.Status = domain.StatusReady
		a.UpdatedAt = now
		sum.CreatedAt = now
		emb.CreatedAt = now
		return nil
	})
}

// AttachSummary adds a summary of a new granularity to a ready article.
// Summaries are write-once per type: if one already exists the stored copy
// is returned and created is false.
func (s *Store) AttachSummary(ctx context.Context, sum *domain.Summary) (*domain.Summary, bool, error) {
	const op = "store.AttachSummary"

	var (
		out     *domain.Summary
		created bool
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := summaryBy(ctx, tx, s.sb, sq.Eq{"article_id": sum.ArticleID, "summary_type": sum.Type})
		switch {
		case err == nil:
			out, created = existing, false
			return nil
		case errors.Is(err, sql.ErrNoRows):
			if err := insertSummary(ctx, tx, s.sb, sum, s.now()); err != nil {
				return domain.E(domain.KindInternal, op, err)
			}
			out, created = sum, true
			return nil
		default:
			return domain.E(domain.KindInternal, op, err)
		}
	})
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

// GetArticle returns the article by id.
func (s *Store) GetArticle(ctx context.Context, id string) (*domain.Article, error) {
	const op = "store.GetArticle"
	a, err := s.articleBy(ctx, s.db, sq.Eq{"id": id})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Ef(domain.KindNotFound, op, "article %s not found", id)
	}
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return a, nil
}

// GetArticleByURL returns the article for a normalized URL.
func (s *Store) GetArticleByURL(ctx context.Context, url string) (*domain.Article, error) {
	const op = "store.GetArticleByURL"
	a, err := s.articleBy(ctx, s.db, sq.Eq{"url": url})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Ef(domain.KindNotFound, op, "no article for url %s", url)
	}
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return a, nil
}

// SummariesFor returns all summaries of one article, newest first.
func (s *Store) SummariesFor(ctx context.Context, articleID string) ([]domain.Summary, error) {
	const op = "store.SummariesFor"
	q := s.sb.Select("id", "article_id", "summary_type", "summary_text", "key_points", "truncated", "created_at").
		From("summaries").
		Where(sq.Eq{"article_id": articleID}).
		OrderBy("created_at DESC, summary_type ASC")
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	defer rows.Close()

	var out []domain.Summary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, domain.E(domain.KindInternal, op, err)
		}
		out = append(out, *sum)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return out, nil
}

// ListArticles returns a page of articles, newest first, plus the total count.
func (s *Store) ListArticles(ctx context.Context, skip, limit int) ([]domain.Article, int, error) {
	const op = "store.ListArticles"

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles").Scan(&total); err != nil {
		return nil, 0, domain.E(domain.KindInternal, op, err)
	}

	q := s.sb.Select(articleColumns...).
		From("articles").
		OrderBy("created_at DESC, id ASC").
		Offset(uint64(skip)).
		Limit(uint64(limit))
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, 0, domain.E(domain.KindInternal, op, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, domain.E(domain.KindInternal, op, err)
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, 0, domain.E(domain.KindInternal, op, err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, domain.E(domain.KindInternal, op, err)
	}
	return out, total, nil
}

// EmbeddingFor returns the stored embedding for one article.
func (s *Store) EmbeddingFor(ctx context.Context, articleID string) (*domain.Embedding, error) {
	const op = "store.EmbeddingFor"
	q := s.sb.Select("article_id", "model", "dims", "vector", "created_at").
		From("embeddings").
		Where(sq.Eq{"article_id": articleID})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}

	var (
		emb  domain.Embedding
		blob []byte
	)
	err = s.db.QueryRowContext(ctx, sqlStr, args...).
		Scan(&emb.ArticleID, &emb.Model, &emb.Dims, &blob, &emb.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Ef(domain.KindNotFound, op, "no embedding for article %s", articleID)
	}
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	if emb.Vector, err = decodeVector(blob); err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return &emb, nil
}

// ReadyEmbeddings streams the embeddings of all ready articles, for index
// rebuilds.
func (s *Store) ReadyEmbeddings(ctx context.Context) ([]domain.Embedding, error) {
	const op = "store.ReadyEmbeddings"
	q := s.sb.Select("e.article_id", "e.model", "e.dims", "e.vector", "e.created_at").
		From("embeddings e").
		Join("articles a ON a.id = e.article_id").
		Where(sq.Eq{"a.status": domain.StatusReady})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	defer rows.Close()

	var out []domain.Embedding
	for rows.Next() {
		var (
			emb  domain.Embedding
			blob []byte
		)
		if err := rows.Scan(&emb.ArticleID, &emb.Model, &emb.Dims, &blob, &emb.CreatedAt); err != nil {
			return nil, domain.E(domain.KindInternal, op, err)
		}
		if emb.Vector, err = decodeVector(blob); err != nil {
			return nil, domain.E(domain.KindInternal, op, err)
		}
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return out, nil
}

// ArticlesByIDs returns the ready articles among ids, keyed by id.
func (s *Store) ArticlesByIDs(ctx context.Context, ids []string) (map[string]domain.Article, error) {
	const op = "store.ArticlesByIDs"
	if len(ids) == 0 {
		return map[string]domain.Article{}, nil
	}
	q := s.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": ids, "status": domain.StatusReady})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	defer rows.Close()

	out := make(map[string]domain.Article, len(ids))
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, domain.E(domain.KindInternal, op, err)
		}
		out[a.ID] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, domain.E(domain.KindInternal, op, err)
	}
	return out, nil
}

// ReadyCount returns the number of searchable articles.
func (s *Store) ReadyCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM articles WHERE status = ?", domain.StatusReady).Scan(&n)
	if err != nil {
		return 0, domain.E(domain.KindInternal, "store.ReadyCount", err)
	}
	return n, nil
}

// runner abstracts *sql.DB and *sql.Tx.
type runner interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) articleBy(ctx context.Context, r runner, where sq.Eq) (*domain.Article, error) {
	sqlStr, args, err := s.sb.Select(articleColumns...).From("articles").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return scanArticle(r.QueryRowContext(ctx, sqlStr, args...))
}

func summaryBy(ctx context.Context, r runner, sb sq.StatementBuilderType, where sq.Eq) (*domain.Summary, error) {
	sqlStr, args, err := sb.Select("id", "article_id", "summary_type", "summary_text", "key_points", "truncated", "created_at").
		From("summaries").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	return scanSummary(r.QueryRowContext(ctx, sqlStr, args...))
}

func insertSummary(ctx context.Context, tx *sql.Tx, sb sq.StatementBuilderType, sum *domain.Summary, now time.Time) error {
	if sum.ID == "" {
		sum.ID = uuid.NewString()
	}
	points, err := json.Marshal(sum.KeyPoints)
	if err != nil {
		return fmt.Errorf("marshal key points: %w", err)
	}
	q := sb.Insert("summaries").
		Columns("id", "article_id", "summary_type", "summary_text", "key_points", "truncated", "created_at").
		Values(sum.ID, sum.ArticleID, sum.Type, sum.Text, string(points), sum.Truncated, now)
	if _, err := execTx(ctx, tx, q); err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	sum.CreatedAt = now
	return nil
}

func upsertEmbedding(ctx context.Context, tx *sql.Tx, sb sq.StatementBuilderType, emb *domain.Embedding, now time.Time) error {
	q := sb.Insert("embeddings").
		Columns("article_id", "model", "dims", "vector", "created_at").
		Values(emb.ArticleID, emb.Model, emb.Dims, encodeVector(emb.Vector), now).
		Suffix("ON CONFLICT (article_id) DO UPDATE SET model = excluded.model, dims = excluded.dims, vector = excluded.vector, created_at = excluded.created_at")
	if _, err := execTx(ctx, tx, q); err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (*domain.Article, error) {
	var (
		a    domain.Article
		kind string
	)
	err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Content, &a.Status, &kind, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.FailureKind = domain.Kind(kind)
	return &a, nil
}

func scanSummary(row scannable) (*domain.Summary, error) {
	var (
		sum    domain.Summary
		points string
	)
	err := row.Scan(&sum.ID, &sum.ArticleID, &sum.Type, &sum.Text, &points, &sum.Truncated, &sum.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(points), &sum.KeyPoints); err != nil {
		return nil, fmt.Errorf("unmarshal key points: %w", err)
	}
	return &sum, nil
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func exec(ctx context.Context, r runner, q sqlizer) (sql.Result, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return r.ExecContext(ctx, sqlStr, args...)
}

func execTx(ctx context.Context, tx *sql.Tx, q sqlizer) (sql.Result, error) {
	return exec(ctx, tx, q)
}
