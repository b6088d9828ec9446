package storage

import (
	"context"
	"fmt"
	"strings"
)

// maxPrefixMatches bounds how many entities a prefix lookup may resolve to.
const maxPrefixMatches = 50

// ResolveEntities finds the entities a subject name refers to. Exact
// case-insensitive matches win; prefix matches on the whole name or on any
// word of it ("hirst" finds "Damien Hirst") are used only when there is no
// exact match. typ, when non-nil, restricts both passes. No match yields
// ErrNotFound.
func (s *Store) ResolveEntities(ctx context.Context, name string, typ *EntityType) ([]Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}

	typeClause := ""
	var typeArgs []any
	if typ != nil {
		typeClause = " AND type = ?"
		typeArgs = []any{string(*typ)}
	}

	var out []Entity
	err := s.Read(ctx, func(h *Handle) error {
		exact, err := queryEntities(ctx, h,
			`SELECT id, name, type FROM entities WHERE lower(name) = ?`+typeClause+` ORDER BY id`,
			append([]any{strings.ToLower(name)}, typeArgs...)...)
		if err != nil {
			return err
		}
		if len(exact) > 0 {
			out = exact
			return nil
		}
		out, err = queryEntities(ctx, h,
			`SELECT id, name, type FROM entities
			WHERE (lower(name) LIKE ? ESCAPE '\' OR lower(name) LIKE ? ESCAPE '\')`+typeClause+
				fmt.Sprintf(` ORDER BY name, id LIMIT %d`, maxPrefixMatches),
			append([]any{prefixPattern(name), "% " + prefixPattern(name)}, typeArgs...)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
	}
	return out, nil
}

func queryEntities(ctx context.Context, h *Handle, query string, args ...any) ([]Entity, error) {
	rows, err := h.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entities: %w", err)
	}
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type); err != nil {
			return nil, fmt.Errorf("scanning entity: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ArticlesForEntities returns up to limit distinct articles linked to any of
// the entities, newest first (undated last), ties by ascending id, together
// with the total number of linked articles.
func (s *Store) ArticlesForEntities(ctx context.Context, entityIDs []int64, limit int) ([]Article, int, error) {
	if len(entityIDs) == 0 {
		return nil, 0, nil
	}
	var (
		out   []Article
		total int
	)
	err := s.Read(ctx, func(h *Handle) error {
		clause, args := h.Dialect().InInt64("ae.entity_id", entityIDs)
		sub := `SELECT DISTINCT ae.article_id FROM article_entities ae WHERE ` + clause

		if err := h.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+sub+`) linked`, args...).Scan(&total); err != nil {
			return fmt.Errorf("counting linked articles: %w", err)
		}

		rows, err := h.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles a
			WHERE a.id IN (`+sub+`)
			ORDER BY a.published_at DESC NULLS LAST, a.id ASC
			LIMIT ?`, append(args, limit)...)
		if err != nil {
			return fmt.Errorf("querying linked articles: %w", err)
		}
		out, err = collectArticles(rows)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// CoEntities returns the entities linked to each of the given articles,
// keyed by article id.
func (s *Store) CoEntities(ctx context.Context, articleIDs []int64) (map[int64][]Entity, error) {
	out := make(map[int64][]Entity, len(articleIDs))
	if len(articleIDs) == 0 {
		return out, nil
	}
	err := s.Read(ctx, func(h *Handle) error {
		return collectCoEntities(ctx, h, articleIDs, out)
	})
	return out, err
}

// collectCoEntities fills out from scratch so that a retried read does not
// append to a partial result.
func collectCoEntities(ctx context.Context, h *Handle, articleIDs []int64, out map[int64][]Entity) error {
	clear(out)
	clause, args := h.Dialect().InInt64("ae.article_id", articleIDs)
	rows, err := h.QueryContext(ctx, `SELECT ae.article_id, e.id, e.name, e.type
		FROM article_entities ae
		JOIN entities e ON e.id = ae.entity_id
		WHERE `+clause+`
		ORDER BY ae.article_id, e.id`, args...)
	if err != nil {
		return fmt.Errorf("querying co-occurring entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			articleID int64
			e         Entity
		)
		if err := rows.Scan(&articleID, &e.ID, &e.Name, &e.Type); err != nil {
			return fmt.Errorf("scanning co-occurring entity: %w", err)
		}
		out[articleID] = append(out[articleID], e)
	}
	return rows.Err()
}

// EntityPair is two entities of the same type linked to Shared common
// articles. A.ID is always below B.ID.
type EntityPair struct {
	A      Entity
	B      Entity
	Shared int
}

// CoOccurrences returns the entity pairs of type typ that share the most
// articles, strongest first, then by names.
func (s *Store) CoOccurrences(ctx context.Context, typ EntityType, limit int) ([]EntityPair, error) {
	if limit < 1 {
		return []EntityPair{}, nil
	}
	var out []EntityPair
	err := s.Read(ctx, func(h *Handle) error {
		out = out[:0]
		rows, err := h.QueryContext(ctx, `SELECT e1.id, e1.name, e1.type, e2.id, e2.name, e2.type, COUNT(*) AS shared
			FROM article_entities x
			JOIN article_entities y ON y.article_id = x.article_id AND x.entity_id < y.entity_id
			JOIN entities e1 ON e1.id = x.entity_id
			JOIN entities e2 ON e2.id = y.entity_id
			WHERE e1.type = ? AND e2.type = ?
			GROUP BY e1.id, e1.name, e1.type, e2.id, e2.name, e2.type
			ORDER BY shared DESC, e1.name, e2.name, e1.id, e2.id
			LIMIT ?`, string(typ), string(typ), limit)
		if err != nil {
			return fmt.Errorf("querying co-occurrences: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var p EntityPair
			if err := rows.Scan(&p.A.ID, &p.A.Name, &p.A.Type, &p.B.ID, &p.B.Name, &p.B.Type, &p.Shared); err != nil {
				return fmt.Errorf("scanning co-occurrence: %w", err)
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []EntityPair{}
	}
	return out, nil
}
