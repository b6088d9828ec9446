// Package storagetest seeds corpus stores for tests in other packages.
package storagetest

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/kalambet/artribune/internal/storage"
)

// Open returns a migrated SQLite store in a temporary directory.
func Open(t testing.TB) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Options{
		Driver:         storage.DialectSQLite,
		DataDir:        t.TempDir(),
		PoolSize:       4,
		AcquireTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// Date returns a UTC timestamp pointer for fixtures.
func Date(year int, month time.Month, day int) *time.Time {
	t := time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
	return &t
}

// AddArticle inserts a with its explicit id. Empty URLs are derived from
// the id.
func AddArticle(t testing.TB, s *storage.Store, a storage.Article) {
	t.Helper()
	if a.URL == "" {
		a.URL = "https://example.org/articles/" + strconv.FormatInt(a.ID, 10)
	}
	var published any
	if a.PublishedAt != nil {
		published = a.PublishedAt.UTC()
	}
	exec(t, s, `INSERT INTO articles (id, title, url, content, excerpt, published_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.URL, a.Content, a.Excerpt, published, a.Metadata)
}

// AddEntity inserts an entity with its explicit id.
func AddEntity(t testing.TB, s *storage.Store, id int64, name string, typ storage.EntityType) {
	t.Helper()
	exec(t, s, `INSERT INTO entities (id, name, type) VALUES (?, ?, ?)`, id, name, string(typ))
}

// Link adds article-entity edges.
func Link(t testing.TB, s *storage.Store, articleID int64, entityIDs ...int64) {
	t.Helper()
	for _, id := range entityIDs {
		exec(t, s, `INSERT INTO article_entities (article_id, entity_id) VALUES (?, ?)`, articleID, id)
	}
}

// AddEmbedding stores a BLOB embedding for the SQLite vector index.
func AddEmbedding(t testing.TB, s *storage.Store, articleID int64, vec []float32) {
	t.Helper()
	exec(t, s, `INSERT INTO article_embeddings (article_id, embedding) VALUES (?, ?)`,
		articleID, storage.EncodeVector(vec))
}

func exec(t testing.TB, s *storage.Store, query string, args ...any) {
	t.Helper()
	if _, err := s.DB().ExecContext(context.Background(), s.Dialect().Rebind(query), args...); err != nil {
		t.Fatalf("seeding store: %v", err)
	}
}
