package search

import (
	"errors"
	"fmt"
	"math"
)

// Weights control the contribution of each modality to a hybrid score.
type Weights struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

// DefaultWeights gives both modalities equal influence.
var DefaultWeights = Weights{Lexical: 0.5, Semantic: 0.5}

// Validate rejects negative weights and an all-zero pair.
func (w Weights) Validate() error {
	if w.Lexical < 0 || w.Semantic < 0 {
		return fmt.Errorf("hybrid weights must be non-negative, got %+v", w)
	}
	if w.Lexical == 0 && w.Semantic == 0 {
		return errors.New("hybrid weights must not both be zero")
	}
	return nil
}

// Merge fuses a lexical and a semantic result list into one ranked list.
// Each list is min-max normalized to [0,1]; a single hit or a list whose
// scores are all equal normalizes to 1. The combined score is the weighted
// sum of the normalized scores, a modality that did not return an article
// contributing 0. Articles are deduplicated by id and ordered by the total
// hit order, then truncated to limit when limit is positive.
//
// Merge is deterministic and does not modify its inputs.
func Merge(lexical, semantic []Hit, limit int, w Weights) []Hit {
	lexNorm := normalize(lexical)
	semNorm := normalize(semantic)

	merged := make(map[int64]*Hit, len(lexNorm)+len(semNorm))
	base := func(src []Hit) {
		for _, h := range src {
			if _, ok := merged[h.ArticleID]; ok {
				continue
			}
			hit := h
			hit.Modality = Hybrid
			hit.Score = 0
			hit.LexicalScore = nil
			hit.SemanticScore = nil
			merged[h.ArticleID] = &hit
		}
	}
	base(lexical)
	base(semantic)

	for id, hit := range merged {
		if n, ok := lexNorm[id]; ok {
			hit.LexicalScore = ptr(n)
			hit.Score += w.Lexical * n
		}
		if n, ok := semNorm[id]; ok {
			hit.SemanticScore = ptr(n)
			hit.Score += w.Semantic * n
		}
	}

	out := make([]Hit, 0, len(merged))
	for _, h := range merged {
		out = append(out, *h)
	}
	SortHits(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalize min-max scales the scores of hits, keyed by article id. A
// duplicated article keeps its best raw score.
func normalize(hits []Hit) map[int64]float64 {
	if len(hits) == 0 {
		return nil
	}
	raw := make(map[int64]float64, len(hits))
	for _, h := range hits {
		if s, ok := raw[h.ArticleID]; !ok || h.Score > s {
			raw[h.ArticleID] = h.Score
		}
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range raw {
		lo = min(lo, s)
		hi = max(hi, s)
	}

	out := make(map[int64]float64, len(raw))
	span := hi - lo
	for id, s := range raw {
		if len(raw) == 1 || span == 0 {
			out[id] = 1
			continue
		}
		out[id] = (s - lo) / span
	}
	return out
}

func ptr(f float64) *float64 { return &f }
