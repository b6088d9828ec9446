package search

import (
	"context"
	"fmt"
	"time"

	"github.com/kalambet/artribune/internal/storage"
)

// Embedder turns query text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Neighbor is one nearest-neighbor match. Similarity is cosine similarity,
// higher is closer. PublishedAt breaks similarity ties when the candidate
// list is cut.
type Neighbor struct {
	ArticleID   int64
	Similarity  float64
	PublishedAt *time.Time
}

// VectorIndex finds the k articles whose embeddings are closest to vec,
// ordered by similarity desc, published_at desc (undated last), id asc.
type VectorIndex interface {
	Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// ArticleStore hydrates article ids. *storage.Store implements it.
type ArticleStore interface {
	ArticlesByIDs(ctx context.Context, ids []int64) (map[int64]storage.Article, error)
}

// SemanticSearcher ranks articles by embedding similarity to the query.
type SemanticSearcher struct {
	embedder   Embedder
	index      VectorIndex
	articles   ArticleStore
	maxLimit   int
	candidates int
}

// NewSemanticSearcher creates a SemanticSearcher. The index is asked for at
// least candidates neighbors so that hits whose article has disappeared from
// the corpus can be dropped without shrinking the result below limit.
func NewSemanticSearcher(e Embedder, idx VectorIndex, articles ArticleStore, maxLimit, candidates int) *SemanticSearcher {
	return &SemanticSearcher{
		embedder:   e,
		index:      idx,
		articles:   articles,
		maxLimit:   maxLimit,
		candidates: candidates,
	}
}

func (s *SemanticSearcher) Modality() Modality { return Semantic }

// Search embeds query, looks up its nearest neighbors and returns up to
// limit hits scored by similarity.
func (s *SemanticSearcher) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	limit = clampLimit(limit, s.maxLimit)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrBackendUnavailable, err)
	}

	neighbors, err := s.index.Nearest(ctx, vec, max(limit, s.candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: vector lookup: %w", ErrBackendUnavailable, err)
	}
	if len(neighbors) == 0 {
		return []Hit{}, nil
	}

	ids := make([]int64, len(neighbors))
	for i, n := range neighbors {
		ids[i] = n.ArticleID
	}
	articles, err := s.articles.ArticlesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: hydrating vector hits: %w", ErrBackendUnavailable, err)
	}

	hits := make([]Hit, 0, len(neighbors))
	seen := make(map[int64]struct{}, len(neighbors))
	for _, n := range neighbors {
		a, ok := articles[n.ArticleID]
		if !ok {
			continue
		}
		if _, dup := seen[n.ArticleID]; dup {
			continue
		}
		seen[n.ArticleID] = struct{}{}
		hits = append(hits, hitFromArticle(a, n.Similarity, Semantic))
	}
	SortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}
