package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// YearCount is the number of dated articles published in one year. Events
// counts the articles linked to at least one EVENT entity.
type YearCount struct {
	Year     int `json:"year"`
	Articles int `json:"articles"`
	Events   int `json:"events"`
}

// TimelineFilter restricts a timeline. Zero fields leave that side open.
type TimelineFilter struct {
	Since    time.Time
	FromYear int
	ToYear   int
}

// yearExpr extracts the UTC publication year of col.
func (d Dialect) yearExpr(col string) string {
	if d == DialectPostgres {
		return "CAST(EXTRACT(YEAR FROM " + col + " AT TIME ZONE 'UTC') AS INTEGER)"
	}
	// SQLite keeps timestamps as text starting with YYYY-MM-DD.
	return "CAST(substr(" + col + ", 1, 4) AS INTEGER)"
}

// dayExpr renders col as a sortable YYYY-MM-DD string.
func (d Dialect) dayExpr(col string) string {
	if d == DialectPostgres {
		return "to_char(" + col + " AT TIME ZONE 'UTC', 'YYYY-MM-DD')"
	}
	return "substr(" + col + ", 1, 10)"
}

// Timeline counts dated articles per publication year, newest year first,
// returning at most limit years.
func (s *Store) Timeline(ctx context.Context, f TimelineFilter, limit int) ([]YearCount, error) {
	if limit < 1 {
		return []YearCount{}, nil
	}
	year := s.dialect.yearExpr("a.published_at")
	where := []string{"a.published_at IS NOT NULL"}
	args := []any{string(EntityEvent)}
	if !f.Since.IsZero() {
		where = append(where, s.dialect.dayExpr("a.published_at")+" >= ?")
		args = append(args, f.Since.UTC().Format(time.DateOnly))
	}
	if f.FromYear > 0 {
		where = append(where, year+" >= ?")
		args = append(args, f.FromYear)
	}
	if f.ToYear > 0 {
		where = append(where, year+" <= ?")
		args = append(args, f.ToYear)
	}
	args = append(args, limit)

	stmt := `SELECT ` + year + ` AS year, COUNT(*) AS articles,
			SUM(CASE WHEN EXISTS (
				SELECT 1 FROM article_entities ae
				JOIN entities e ON e.id = ae.entity_id
				WHERE ae.article_id = a.id AND e.type = ?
			) THEN 1 ELSE 0 END) AS events
		FROM articles a
		WHERE ` + strings.Join(where, " AND ") + `
		GROUP BY 1
		ORDER BY 1 DESC
		LIMIT ?`

	var out []YearCount
	err := s.Read(ctx, func(h *Handle) error {
		out = out[:0]
		rows, err := h.QueryContext(ctx, stmt, args...)
		if err != nil {
			return fmt.Errorf("querying timeline: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var y YearCount
			if err := rows.Scan(&y.Year, &y.Articles, &y.Events); err != nil {
				return fmt.Errorf("scanning timeline row: %w", err)
			}
			out = append(out, y)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []YearCount{}
	}
	return out, nil
}
