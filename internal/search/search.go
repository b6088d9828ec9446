// Package search implements lexical, semantic and hybrid article search over
// the corpus store.
package search

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/artribune/internal/storage"
)

// ErrBackendUnavailable wraps any failure of a search backend: the corpus
// store, the vector index or the embedding provider.
var ErrBackendUnavailable = errors.New("search backend unavailable")

// ErrEmptyQuery is returned for a query that is empty after trimming.
var ErrEmptyQuery = errors.New("query must not be empty")

// Modality names the search backend that produced a hit.
type Modality string

const (
	Lexical  Modality = "lexical"
	Semantic Modality = "semantic"
	Hybrid   Modality = "hybrid"
)

// Hit is one ranked search result.
type Hit struct {
	ArticleID   int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"published_at"`
	Score       float64    `json:"score"`
	Modality    Modality   `json:"modality"`

	// Normalized per-modality contributions, set on hybrid hits only.
	LexicalScore  *float64 `json:"lexical_score,omitempty"`
	SemanticScore *float64 `json:"semantic_score,omitempty"`
}

// Searcher is implemented by every search backend. Results are ordered by
// the total hit order and hold at most limit entries.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
	Modality() Modality
}

func hitFromArticle(a storage.Article, score float64, m Modality) Hit {
	return Hit{
		ArticleID:   a.ID,
		Title:       a.Title,
		URL:         a.URL,
		Excerpt:     a.Excerpt,
		PublishedAt: a.PublishedAt,
		Score:       score,
		Modality:    m,
	}
}

// SortHits orders hits by score descending, then published_at descending
// with undated hits last, then article id ascending.
func SortHits(hits []Hit) {
	slices.SortFunc(hits, compareHits)
}

func compareHits(a, b Hit) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return -1
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return 1
	case a.PublishedAt != nil && b.PublishedAt != nil:
		if c := b.PublishedAt.Compare(*a.PublishedAt); c != 0 {
			return c
		}
	}
	switch {
	case a.ArticleID < b.ArticleID:
		return -1
	case a.ArticleID > b.ArticleID:
		return 1
	}
	return 0
}

// clampLimit bounds limit to [1, max]. A non-positive max disables the upper bound.
func clampLimit(limit, max int) int {
	if limit < 1 {
		limit = 1
	}
	if max > 0 && limit > max {
		limit = max
	}
	return limit
}

func normalizeQuery(q string) (string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return "", ErrEmptyQuery
	}
	return q, nil
}
