package storage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kalambet/artribune/internal/storage"
	"github.com/kalambet/artribune/internal/storage/storagetest"
)

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	opts := storage.Options{Driver: storage.DialectSQLite, DataDir: dir, PoolSize: 2}

	s1, err := storage.Open(opts)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := storage.Open(opts)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()
	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}

	if len(v1) == 0 || len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
	for i := 1; i < len(v2); i++ {
		if v2[i] <= v2[i-1] {
			t.Errorf("migrations not in ascending order: %v", v2)
		}
	}
}

func TestOpenInMemoryUsesSingleConnection(t *testing.T) {
	s, err := storage.Open(storage.Options{Driver: storage.DialectSQLite, DataDir: ":memory:", PoolSize: 8})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if got := s.Pool().Stats().Size; got != 1 {
		t.Errorf("pool size = %d, want 1 for in-memory database", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := storage.Open(storage.Options{Driver: "oracle"}); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestGetArticle(t *testing.T) {
	s := storagetest.Open(t)
	storagetest.AddArticle(t, s, storage.Article{
		ID:          7,
		Title:       "Biennale diary",
		URL:         "https://example.org/biennale",
		Content:     "Full text",
		Excerpt:     "Short",
		PublishedAt: storagetest.Date(2024, time.May, 3),
		Metadata:    storage.Metadata{"category": "news"},
	})

	a, err := s.GetArticle(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if a.Title != "Biennale diary" || a.URL != "https://example.org/biennale" {
		t.Errorf("unexpected article: %+v", a)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(*storagetest.Date(2024, time.May, 3)) {
		t.Errorf("PublishedAt = %v", a.PublishedAt)
	}
	if a.Metadata["category"] != "news" {
		t.Errorf("Metadata = %v", a.Metadata)
	}

	_, err = s.GetArticle(context.Background(), 999)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentArticlesOrdering(t *testing.T) {
	s := storagetest.Open(t)
	storagetest.AddArticle(t, s, storage.Article{ID: 1, Title: "undated"})
	storagetest.AddArticle(t, s, storage.Article{ID: 2, Title: "old", PublishedAt: storagetest.Date(2020, time.January, 1)})
	storagetest.AddArticle(t, s, storage.Article{ID: 3, Title: "new", PublishedAt: storagetest.Date(2024, time.January, 1)})
	storagetest.AddArticle(t, s, storage.Article{ID: 4, Title: "new twin", PublishedAt: storagetest.Date(2024, time.January, 1)})

	got, err := s.RecentArticles(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentArticles: %v", err)
	}
	want := []int64{3, 4, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("got %d articles, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: id %d, want %d", i, got[i].ID, id)
		}
	}

	got, err = s.RecentArticles(context.Background(), 2)
	if err != nil {
		t.Fatalf("RecentArticles: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("limit not applied: got %d", len(got))
	}
}

func TestSearchFullText(t *testing.T) {
	s := storagetest.Open(t)
	storagetest.AddArticle(t, s, storage.Article{ID: 1, Title: "Maurizio Cattelan at the Guggenheim", Content: "Cattelan's banana returns."})
	storagetest.AddArticle(t, s, storage.Article{ID: 2, Title: "Venice notes", Content: "A passing mention of Cattelan."})
	storagetest.AddArticle(t, s, storage.Article{ID: 3, Title: "Unrelated", Content: "Nothing to see."})

	hits, err := s.SearchFullText(context.Background(), "cattelan", 10)
	if err != nil {
		t.Fatalf("SearchFullText: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].ID != 1 {
		t.Errorf("top hit = %d, want 1", hits[0].ID)
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Errorf("hit %d has non-positive score %f", h.ID, h.Score)
		}
	}

	// FTS syntax characters are treated as text.
	if _, err := s.SearchFullText(context.Background(), `"unbalanced AND (`, 10); err != nil {
		t.Errorf("query with FTS syntax failed: %v", err)
	}
}

func seedGraph(t *testing.T) *storage.Store {
	t.Helper()
	s := storagetest.Open(t)
	storagetest.AddEntity(t, s, 1, "Damien Hirst", storage.EntityPerson)
	storagetest.AddEntity(t, s, 2, "Damien Hirst Foundation", storage.EntityOrganization)
	storagetest.AddEntity(t, s, 3, "Gagosian", storage.EntityOrganization)
	storagetest.AddEntity(t, s, 4, "100%_Real", storage.EntityEvent)

	storagetest.AddArticle(t, s, storage.Article{ID: 10, Title: "a", PublishedAt: storagetest.Date(2023, time.March, 1)})
	storagetest.AddArticle(t, s, storage.Article{ID: 11, Title: "b", PublishedAt: storagetest.Date(2024, time.March, 1)})
	storagetest.AddArticle(t, s, storage.Article{ID: 12, Title: "c"})
	storagetest.Link(t, s, 10, 1, 3)
	storagetest.Link(t, s, 11, 1, 3)
	storagetest.Link(t, s, 12, 2)
	return s
}

func TestResolveEntitiesExactWins(t *testing.T) {
	s := seedGraph(t)

	got, err := s.ResolveEntities(context.Background(), "damien hirst", nil)
	if err != nil {
		t.Fatalf("ResolveEntities: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("expected exact match only, got %+v", got)
	}
}

func TestResolveEntitiesPrefixFallback(t *testing.T) {
	s := seedGraph(t)

	got, err := s.ResolveEntities(context.Background(), "Damien", nil)
	if err != nil {
		t.Fatalf("ResolveEntities: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 prefix matches, got %+v", got)
	}

	org := storage.EntityOrganization
	got, err = s.ResolveEntities(context.Background(), "Damien", &org)
	if err != nil {
		t.Fatalf("ResolveEntities with type: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("expected the foundation only, got %+v", got)
	}
}

func TestResolveEntitiesWordPrefix(t *testing.T) {
	s := seedGraph(t)

	person := storage.EntityPerson
	got, err := s.ResolveEntities(context.Background(), "Hirst", &person)
	if err != nil {
		t.Fatalf("ResolveEntities: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Damien Hirst" {
		t.Errorf("got %+v", got)
	}

	if _, err := s.ResolveEntities(context.Background(), "irst", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("infix must not match, got %v", err)
	}
}

func TestResolveEntitiesWildcardsAreLiteral(t *testing.T) {
	s := seedGraph(t)

	if _, err := s.ResolveEntities(context.Background(), "%", nil); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("'%%' must not match everything, got %v", err)
	}
	got, err := s.ResolveEntities(context.Background(), "100%_", nil)
	if err != nil {
		t.Fatalf("ResolveEntities: %v", err)
	}
	if len(got) != 1 || got[0].ID != 4 {
		t.Errorf("got %+v", got)
	}
}

func TestResolveEntitiesNotFound(t *testing.T) {
	s := seedGraph(t)
	_, err := s.ResolveEntities(context.Background(), "Banksy", nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestArticlesForEntities(t *testing.T) {
	s := seedGraph(t)

	got, total, err := s.ArticlesForEntities(context.Background(), []int64{1, 2}, 10)
	if err != nil {
		t.Fatalf("ArticlesForEntities: %v", err)
	}
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	want := []int64{11, 10, 12}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: id %d, want %d", i, got[i].ID, id)
		}
	}

	got, total, err = s.ArticlesForEntities(context.Background(), []int64{1, 2}, 1)
	if err != nil {
		t.Fatalf("ArticlesForEntities: %v", err)
	}
	if len(got) != 1 || total != 3 {
		t.Errorf("limit 1: got %d articles, total %d", len(got), total)
	}
}

func TestCoEntities(t *testing.T) {
	s := seedGraph(t)

	got, err := s.CoEntities(context.Background(), []int64{10, 12})
	if err != nil {
		t.Fatalf("CoEntities: %v", err)
	}
	if len(got[10]) != 2 || len(got[12]) != 1 {
		t.Errorf("unexpected co-entities: %+v", got)
	}
	if got[10][1].Name != "Gagosian" || got[10][1].Type != storage.EntityOrganization {
		t.Errorf("unexpected entity: %+v", got[10][1])
	}

	empty, err := s.CoEntities(context.Background(), nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("CoEntities(nil) = %v, %v", empty, err)
	}
}

func TestArticlesByIDs(t *testing.T) {
	s := seedGraph(t)

	got, err := s.ArticlesByIDs(context.Background(), []int64{10, 12, 404})
	if err != nil {
		t.Fatalf("ArticlesByIDs: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d articles, want 2", len(got))
	}
	if _, ok := got[404]; ok {
		t.Error("missing id must be absent")
	}
}

func TestReadCancelledContext(t *testing.T) {
	s := storagetest.Open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RecentArticles(ctx, 5)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if got := s.Pool().Stats().InUse; got != 0 {
		t.Errorf("InUse = %d after cancelled read", got)
	}
}
