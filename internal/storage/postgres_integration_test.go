//go:build integration

package storage_test

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/kalambet/artribune/internal/storage"
	"github.com/kalambet/artribune/internal/storage/storagetest"
)

var postgresDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()
	dsn, teardown, err := storagetest.StartPostgres(ctx)
	if err != nil {
		log.Fatalf("error starting postgres container: %v", err)
	}
	postgresDSN = dsn

	code := m.Run()

	if err := teardown(ctx); err != nil {
		log.Printf("error tearing down postgres container: %v", err)
	}
	os.Exit(code)
}

func openPostgres(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(storage.Options{
		Driver:         storage.DialectPostgres,
		DSN:            postgresDSN,
		PoolSize:       4,
		AcquireTimeout: 2 * time.Second,
		RetryAttempts:  1,
	})
	if err != nil {
		t.Fatalf("opening postgres store: %v", err)
	}
	t.Cleanup(func() {
		s.DB().Exec(`TRUNCATE article_entities, entities, articles CASCADE`)
		s.Close()
	})
	return s
}

func TestPostgresFullTextAndGraph(t *testing.T) {
	s := openPostgres(t)
	ctx := context.Background()

	storagetest.AddArticle(t, s, storage.Article{ID: 1, Title: "Cattelan retrospective", Content: "Maurizio Cattelan in New York", PublishedAt: storagetest.Date(2024, time.June, 1)})
	storagetest.AddArticle(t, s, storage.Article{ID: 2, Title: "Art fair roundup", Content: "Cattelan was mentioned once"})
	storagetest.AddEntity(t, s, 1, "Maurizio Cattelan", storage.EntityPerson)
	storagetest.AddEntity(t, s, 2, "Guggenheim", storage.EntityOrganization)
	storagetest.Link(t, s, 1, 1, 2)
	storagetest.Link(t, s, 2, 1)

	hits, err := s.SearchFullText(ctx, "cattelan", 10)
	if err != nil {
		t.Fatalf("SearchFullText: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}

	entities, err := s.ResolveEntities(ctx, "maurizio", nil)
	if err != nil {
		t.Fatalf("ResolveEntities: %v", err)
	}
	if len(entities) != 1 {
		t.Fatalf("got %+v", entities)
	}

	articles, total, err := s.ArticlesForEntities(ctx, []int64{entities[0].ID}, 10)
	if err != nil {
		t.Fatalf("ArticlesForEntities: %v", err)
	}
	if total != 2 || articles[0].ID != 1 {
		t.Errorf("total=%d first=%d", total, articles[0].ID)
	}

	co, err := s.CoEntities(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("CoEntities: %v", err)
	}
	if len(co[1]) != 2 {
		t.Errorf("co-entities of article 1: %+v", co[1])
	}

	if _, err := s.GetArticle(ctx, 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
