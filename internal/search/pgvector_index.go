package search

import (
	"context"
	"fmt"

	"github.com/kalambet/artribune/internal/storage"
	"github.com/pgvector/pgvector-go"
)

var _ VectorIndex = (*PgVectorIndex)(nil)

// PgVectorIndex answers nearest-neighbor queries with pgvector's cosine
// distance operator on a Postgres corpus store.
type PgVectorIndex struct {
	store      *storage.Store
	dimensions int
}

// NewPgVectorIndex ensures the vector extension and the article_embeddings
// table exist for the configured dimension.
func NewPgVectorIndex(ctx context.Context, store *storage.Store, dimensions int) (*PgVectorIndex, error) {
	if store.Dialect() != storage.DialectPostgres {
		return nil, fmt.Errorf("pgvector index requires the postgres driver, got %s", store.Dialect())
	}
	if dimensions < 1 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dimensions)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS article_embeddings (
			article_id BIGINT PRIMARY KEY REFERENCES articles(id) ON DELETE CASCADE,
			embedding  vector(%d) NOT NULL,
			model      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dimensions),
		`CREATE INDEX IF NOT EXISTS idx_article_embeddings_hnsw
			ON article_embeddings USING hnsw (embedding vector_cosine_ops)`,
	}
	for _, stmt := range stmts {
		if _, err := store.DB().ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("preparing pgvector schema: %w", err)
		}
	}
	return &PgVectorIndex{store: store, dimensions: dimensions}, nil
}

// Upsert stores the embedding of one article.
func (x *PgVectorIndex) Upsert(ctx context.Context, articleID int64, vec []float32, model string) error {
	if len(vec) != x.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d", len(vec), x.dimensions)
	}
	_, err := x.store.DB().ExecContext(ctx, `INSERT INTO article_embeddings (article_id, embedding, model)
		VALUES ($1, $2, $3)
		ON CONFLICT (article_id) DO UPDATE SET embedding = EXCLUDED.embedding, model = EXCLUDED.model`,
		articleID, pgvector.NewVector(vec), model)
	if err != nil {
		return fmt.Errorf("upserting embedding for article %d: %w", articleID, err)
	}
	return nil
}

// Nearest returns the k articles with the smallest cosine distance to vec.
// Similarity is reported as 1 - distance.
func (x *PgVectorIndex) Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, nil
	}
	if len(vec) != x.dimensions {
		return nil, fmt.Errorf("query embedding has %d dimensions, index expects %d", len(vec), x.dimensions)
	}

	var out []Neighbor
	err := x.store.Read(ctx, func(h *storage.Handle) error {
		out = out[:0]
		q := pgvector.NewVector(vec)
		rows, err := h.QueryContext(ctx, `SELECT e.article_id, 1 - (e.embedding <=> ?) AS similarity, a.published_at
			FROM article_embeddings e
			JOIN articles a ON a.id = e.article_id
			ORDER BY e.embedding <=> ?, a.published_at DESC NULLS LAST, a.id
			LIMIT ?`, q, q, k)
		if err != nil {
			return fmt.Errorf("querying nearest neighbors: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				n         Neighbor
				published storage.NullTime
			)
			if err := rows.Scan(&n.ArticleID, &n.Similarity, &published); err != nil {
				return fmt.Errorf("scanning neighbor: %w", err)
			}
			n.PublishedAt = published.Ptr()
			out = append(out, n)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
