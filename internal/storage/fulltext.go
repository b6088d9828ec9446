package storage

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

const pgDocument = `to_tsvector('simple', coalesce(a.title, '') || ' ' || coalesce(a.excerpt, '') || ' ' || coalesce(a.content, ''))`

// SearchFullText runs a ranked full-text query over title, excerpt and
// content. Higher scores are better on both dialects. The caller is
// responsible for the final ordering of ties.
func (s *Store) SearchFullText(ctx context.Context, query string, limit int) ([]ScoredArticle, error) {
	var (
		stmt string
		args []any
	)
	switch s.dialect {
	case DialectPostgres:
		stmt = `WITH q AS (SELECT plainto_tsquery('simple', ?) AS tsq)
			SELECT ` + articleColumns + `, ts_rank(` + pgDocument + `, q.tsq) AS score
			FROM articles a, q
			WHERE ` + pgDocument + ` @@ q.tsq
			ORDER BY score DESC, a.published_at DESC NULLS LAST, a.id ASC
			LIMIT ?`
		args = []any{query, limit}
	default:
		match := ftsMatchExpr(query)
		if match == "" {
			return nil, nil
		}
		stmt = `SELECT ` + articleColumns + `, -bm25(articles_fts) AS score
			FROM articles_fts
			JOIN articles a ON a.id = articles_fts.rowid
			WHERE articles_fts MATCH ?
			ORDER BY score DESC, a.published_at DESC NULLS LAST, a.id ASC
			LIMIT ?`
		args = []any{match, limit}
	}

	var out []ScoredArticle
	err := s.Read(ctx, func(h *Handle) error {
		rows, err := h.QueryContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("full-text query: %w", err)
		}
		defer rows.Close()
		out = out[:0]
		for rows.Next() {
			var score float64
			a, err := scanArticle(rows, &score)
			if err != nil {
				return fmt.Errorf("scanning full-text hit: %w", err)
			}
			out = append(out, ScoredArticle{Article: a, Score: score})
		}
		return rows.Err()
	})
	return out, err
}

// ftsMatchExpr quotes every whitespace-separated token so user input never
// reaches the FTS5 query parser as syntax. Tokens are ANDed; tokens without
// any letter or digit are dropped.
func ftsMatchExpr(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		if strings.IndexFunc(f, isWordRune) < 0 {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
