package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const articleColumns = `a.id, a.title, a.url, a.content, a.excerpt, a.published_at, a.created_at, a.metadata`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(sc rowScanner, extra ...any) (Article, error) {
	var (
		a         Article
		published NullTime
		created   NullTime
	)
	dest := append([]any{&a.ID, &a.Title, &a.URL, &a.Content, &a.Excerpt, &published, &created, &a.Metadata}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return Article{}, err
	}
	a.PublishedAt = published.Ptr()
	a.CreatedAt = created.Time
	return a, nil
}

// GetArticle returns the full article record or ErrNotFound.
func (s *Store) GetArticle(ctx context.Context, id int64) (*Article, error) {
	var out Article
	err := s.Read(ctx, func(h *Handle) error {
		row := h.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles a WHERE a.id = ?`, id)
		a, err := scanArticle(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("article %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("querying article %d: %w", id, err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RecentArticles returns the newest articles: published_at descending with
// undated articles last, ties broken by ascending id.
func (s *Store) RecentArticles(ctx context.Context, limit int) ([]Article, error) {
	var out []Article
	err := s.Read(ctx, func(h *Handle) error {
		rows, err := h.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles a
			ORDER BY a.published_at DESC NULLS LAST, a.id ASC
			LIMIT ?`, limit)
		if err != nil {
			return fmt.Errorf("querying recent articles: %w", err)
		}
		out, err = collectArticles(rows)
		return err
	})
	return out, err
}

// ArticlesByIDs hydrates the given ids. Missing ids are absent from the map.
func (s *Store) ArticlesByIDs(ctx context.Context, ids []int64) (map[int64]Article, error) {
	out := make(map[int64]Article, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	err := s.Read(ctx, func(h *Handle) error {
		clause, args := h.Dialect().InInt64("a.id", ids)
		rows, err := h.QueryContext(ctx, `SELECT `+articleColumns+` FROM articles a WHERE `+clause, args...)
		if err != nil {
			return fmt.Errorf("querying articles by id: %w", err)
		}
		list, err := collectArticles(rows)
		if err != nil {
			return err
		}
		for _, a := range list {
			out[a.ID] = a
		}
		return nil
	})
	return out, err
}

func collectArticles(rows *sql.Rows) ([]Article, error) {
	defer rows.Close()
	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
