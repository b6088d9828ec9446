package search

import (
	"context"
	"fmt"

	"github.com/kalambet/artribune/internal/storage"
)

// FullTextStore runs ranked full-text queries. *storage.Store implements it.
type FullTextStore interface {
	SearchFullText(ctx context.Context, query string, limit int) ([]storage.ScoredArticle, error)
}

// LexicalSearcher ranks articles by full-text relevance.
type LexicalSearcher struct {
	store    FullTextStore
	maxLimit int
}

// NewLexicalSearcher creates a LexicalSearcher. Limits above maxLimit are clamped.
func NewLexicalSearcher(store FullTextStore, maxLimit int) *LexicalSearcher {
	return &LexicalSearcher{store: store, maxLimit: maxLimit}
}

func (s *LexicalSearcher) Modality() Modality { return Lexical }

// Search returns up to limit hits whose score is the backend's relevance rank.
func (s *LexicalSearcher) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, s.maxLimit)

	rows, err := s.store.SearchFullText(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: full-text search: %w", ErrBackendUnavailable, err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, hitFromArticle(r.Article, r.Score, Lexical))
	}
	SortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
