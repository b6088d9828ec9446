package search

import (
	"container/heap"
	"context"
	"fmt"
	"math"

	"github.com/kalambet/artribune/internal/storage"
)

// Compile-time check that SQLiteIndex implements VectorIndex.
var _ VectorIndex = (*SQLiteIndex)(nil)

// SQLiteIndex answers nearest-neighbor queries with a brute-force cosine
// scan over the article_embeddings BLOB table. Rows whose dimension differs
// from the query are skipped.
type SQLiteIndex struct {
	store *storage.Store
}

// NewSQLiteIndex wraps a SQLite corpus store. The article_embeddings table
// is created by the store's migrations.
func NewSQLiteIndex(store *storage.Store) *SQLiteIndex {
	return &SQLiteIndex{store: store}
}

// Nearest returns the k most similar articles, most similar first.
func (x *SQLiteIndex) Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k < 1 {
		return nil, nil
	}
	queryNorm := norm(vec)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query embedding has zero norm")
	}

	h := &neighborHeap{}
	err := x.store.Read(ctx, func(hd *storage.Handle) error {
		*h = (*h)[:0]
		rows, err := hd.QueryContext(ctx, `SELECT e.article_id, e.embedding, a.published_at
			FROM article_embeddings e
			JOIN articles a ON a.id = e.article_id`)
		if err != nil {
			return fmt.Errorf("querying vectors: %w", err)
		}
		defer rows.Close()

		// Reusable buffer for decoding embeddings to avoid per-row allocations.
		var buf []float32
		for rows.Next() {
			var (
				id        int64
				blob      []byte
				published storage.NullTime
			)
			if err := rows.Scan(&id, &blob, &published); err != nil {
				return fmt.Errorf("scanning row: %w", err)
			}
			buf, err = storage.DecodeVectorInto(buf, blob)
			if err != nil {
				return fmt.Errorf("decoding embedding for article %d: %w", id, err)
			}
			if len(buf) != len(vec) {
				continue
			}

			n := Neighbor{ArticleID: id, Similarity: cosine(vec, buf, queryNorm), PublishedAt: published.Ptr()}
			if h.Len() < k {
				heap.Push(h, n)
			} else if worse((*h)[0], n) {
				(*h)[0] = n
				heap.Fix(h, 0)
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]Neighbor, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(Neighbor)
	}
	return out, nil
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * |b|). aNorm is the precomputed norm of a.
func cosine(a, b []float32, aNorm float64) float64 {
	var dot, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if bNormSq == 0 {
		return 0
	}
	return dot / (aNorm * math.Sqrt(bNormSq))
}

// worse reports whether a ranks below b: lower similarity, then older (undated
// last), then larger article id.
func worse(a, b Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	switch {
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return true
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return false
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.Before(*b.PublishedAt)
	}
	return a.ArticleID > b.ArticleID
}

// neighborHeap is a min-heap keeping the worst retained neighbor at the root.
type neighborHeap []Neighbor

func (h neighborHeap) Len() int           { return len(h) }
func (h neighborHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h neighborHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *neighborHeap) Push(x any)        { *h = append(*h, x.(Neighbor)) }
func (h *neighborHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
