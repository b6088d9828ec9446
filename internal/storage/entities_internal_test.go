package storage

import (
	"context"
	"testing"
	"time"
)

func TestCollectCoEntitiesRerunDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	s, err := Open(Options{Driver: DialectSQLite, DataDir: t.TempDir(), PoolSize: 2, AcquireTimeout: time.Second})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	for _, stmt := range []string{
		`INSERT INTO articles (id, title, url) VALUES (10, 'Hirst at Gagosian', 'https://example.org/10')`,
		`INSERT INTO entities (id, name, type) VALUES (1, 'Damien Hirst', 'PERSON'), (2, 'Gagosian', 'ORGANIZATION')`,
		`INSERT INTO article_entities (article_id, entity_id) VALUES (10, 1), (10, 2)`,
	} {
		if _, err := s.DB().ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}

	out := map[int64][]Entity{99: {{ID: 7, Name: "stale"}}}
	err = s.Pool().WithHandle(ctx, func(h *Handle) error {
		// Two passes stand in for a read that Store.Read retried.
		if err := collectCoEntities(ctx, h, []int64{10}, out); err != nil {
			return err
		}
		return collectCoEntities(ctx, h, []int64{10}, out)
	})
	if err != nil {
		t.Fatalf("collectCoEntities: %v", err)
	}
	if len(out) != 1 || len(out[10]) != 2 {
		t.Fatalf("got %+v, want two entities for article 10 only", out)
	}
	if out[10][0].Name != "Damien Hirst" || out[10][1].Name != "Gagosian" {
		t.Errorf("unexpected order: %+v", out[10])
	}
}
