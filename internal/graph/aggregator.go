// Package graph reconstructs relationship profiles from entity co-occurrence
// in the article corpus.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/artribune/internal/storage"
)

// Store is the corpus access the aggregator needs. *storage.Store implements it.
type Store interface {
	ResolveEntities(ctx context.Context, name string, typ *storage.EntityType) ([]storage.Entity, error)
	ArticlesForEntities(ctx context.Context, entityIDs []int64, limit int) ([]storage.Article, int, error)
	CoEntities(ctx context.Context, articleIDs []int64) (map[int64][]storage.Entity, error)
	CoOccurrences(ctx context.Context, typ storage.EntityType, limit int) ([]storage.EntityPair, error)
}

// MaxSummaries bounds the article summaries attached to a profile.
const MaxSummaries = 10

const previewLen = 200

// ArticleSummary is the short form of an article inside a profile.
type ArticleSummary struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	URL            string     `json:"url"`
	PublishedAt    *time.Time `json:"published_date"`
	ContentPreview string     `json:"content_preview"`
}

// Profile is the relationship summary of one subject.
type Profile struct {
	Subject       string
	Entities      []storage.Entity
	TotalArticles int
	Articles      []ArticleSummary

	// Categories holds every category of the lens, possibly empty.
	Categories map[Category][]string
	// Unique counts distinct names per category before capping.
	Unique map[Category]int
}

// Names returns the ranked names of category c, never nil.
func (p *Profile) Names(c Category) []string {
	if names := p.Categories[c]; names != nil {
		return names
	}
	return []string{}
}

// Aggregator builds profiles.
type Aggregator struct {
	store       Store
	categoryCap int
	logger      *slog.Logger
}

// NewAggregator creates an Aggregator capping each category at categoryCap names.
func NewAggregator(store Store, categoryCap int, logger *slog.Logger) *Aggregator {
	if categoryCap < 1 {
		categoryCap = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{store: store, categoryCap: categoryCap, logger: logger}
}

// BuildProfile resolves name, walks up to limit of its most recent articles
// and ranks the entities co-occurring with it into the lens categories.
// An unresolvable name yields storage.ErrNotFound.
func (a *Aggregator) BuildProfile(ctx context.Context, name string, typeHint *storage.EntityType, limit int, lens Lens) (*Profile, error) {
	subjects, err := a.store.ResolveEntities(ctx, name, typeHint)
	if err != nil {
		return nil, err
	}

	subjectIDs := make([]int64, len(subjects))
	excluded := map[string]struct{}{fold(name): {}}
	for i, e := range subjects {
		subjectIDs[i] = e.ID
		excluded[fold(e.Name)] = struct{}{}
	}

	articles, total, err := a.store.ArticlesForEntities(ctx, subjectIDs, limit)
	if err != nil {
		return nil, fmt.Errorf("loading articles for %q: %w", name, err)
	}

	articleIDs := make([]int64, len(articles))
	for i, art := range articles {
		articleIDs[i] = art.ID
	}
	co, err := a.store.CoEntities(ctx, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("loading co-occurring entities for %q: %w", name, err)
	}

	subjectSet := make(map[int64]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		subjectSet[id] = struct{}{}
	}

	t := newTally(lens.Categories)
	for rank, art := range articles {
		seen := make(map[Category]map[string]struct{}, len(lens.Categories))
		add := func(c Category, display string) {
			key := fold(display)
			if key == "" {
				return
			}
			if _, skip := excluded[key]; skip {
				return
			}
			if seen[c] == nil {
				seen[c] = make(map[string]struct{})
			}
			if _, dup := seen[c][key]; dup {
				return
			}
			seen[c][key] = struct{}{}
			t.add(c, key, display, rank)
		}

		for _, e := range co[art.ID] {
			if _, self := subjectSet[e.ID]; self {
				continue
			}
			if c, ok := lens.ByType[e.Type]; ok {
				add(c, e.Name)
			}
		}
		mentions := art.Metadata.Mentions()
		for _, list := range slices.Sorted(maps.Keys(mentions)) {
			c, ok := lens.ByMetadata[list]
			if !ok {
				continue
			}
			for _, n := range mentions[list] {
				add(c, n)
			}
		}
	}

	p := &Profile{
		Subject:       name,
		Entities:      subjects,
		TotalArticles: total,
		Articles:      summarize(articles),
		Categories:    make(map[Category][]string, len(lens.Categories)),
		Unique:        make(map[Category]int, len(lens.Categories)),
	}
	for _, c := range lens.Categories {
		names, unique := t.ranked(c, a.categoryCap)
		p.Categories[c] = names
		p.Unique[c] = unique
	}

	a.logger.Debug("built profile",
		"subject", name,
		"lens", lens.Name,
		"resolved", len(subjects),
		"articles", len(articles),
		"total_articles", total,
	)
	return p, nil
}

// EntityArticles returns up to limit articles linked to the entities name
// resolves to, with the total number of linked articles.
func (a *Aggregator) EntityArticles(ctx context.Context, name string, typeHint *storage.EntityType, limit int) ([]storage.Article, int, []storage.Entity, error) {
	subjects, err := a.store.ResolveEntities(ctx, name, typeHint)
	if err != nil {
		return nil, 0, nil, err
	}
	ids := make([]int64, len(subjects))
	for i, e := range subjects {
		ids[i] = e.ID
	}
	articles, total, err := a.store.ArticlesForEntities(ctx, ids, limit)
	if err != nil {
		return nil, 0, nil, fmt.Errorf("loading articles for %q: %w", name, err)
	}
	return articles, total, subjects, nil
}

// Edge links two entities that appear in the same articles.
type Edge struct {
	Source         string `json:"source"`
	Target         string `json:"target"`
	SharedArticles int    `json:"shared_articles"`
}

// Network returns the strongest co-occurrence edges between entities of
// type typ, at most limit of them.
func (a *Aggregator) Network(ctx context.Context, typ storage.EntityType, limit int) ([]Edge, error) {
	pairs, err := a.store.CoOccurrences(ctx, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("loading %s network: %w", typ, err)
	}
	edges := make([]Edge, len(pairs))
	for i, p := range pairs {
		edges[i] = Edge{Source: p.A.Name, Target: p.B.Name, SharedArticles: p.Shared}
	}
	a.logger.Debug("built network", "type", typ, "edges", len(edges))
	return edges, nil
}

// tally accumulates per-category occurrence counts.
type tally struct {
	byCat map[Category]map[string]*occurrence
}

type occurrence struct {
	display   string
	key       string
	count     int
	firstRank int
}

func newTally(cats []Category) *tally {
	t := &tally{byCat: make(map[Category]map[string]*occurrence, len(cats))}
	for _, c := range cats {
		t.byCat[c] = make(map[string]*occurrence)
	}
	return t
}

func (t *tally) add(c Category, key, display string, rank int) {
	m, ok := t.byCat[c]
	if !ok {
		return
	}
	if o, ok := m[key]; ok {
		o.count++
		return
	}
	m[key] = &occurrence{display: display, key: key, count: 1, firstRank: rank}
}

// ranked orders a category by frequency desc, first-seen article rank asc,
// then name, and caps it.
func (t *tally) ranked(c Category, limit int) ([]string, int) {
	occ := make([]*occurrence, 0, len(t.byCat[c]))
	for _, o := range t.byCat[c] {
		occ = append(occ, o)
	}
	slices.SortFunc(occ, func(a, b *occurrence) int {
		if a.count != b.count {
			return b.count - a.count
		}
		if a.firstRank != b.firstRank {
			return a.firstRank - b.firstRank
		}
		return strings.Compare(a.key, b.key)
	})

	unique := len(occ)
	if len(occ) > limit {
		occ = occ[:limit]
	}
	names := make([]string, len(occ))
	for i, o := range occ {
		names[i] = o.display
	}
	return names, unique
}

func summarize(articles []storage.Article) []ArticleSummary {
	n := min(len(articles), MaxSummaries)
	out := make([]ArticleSummary, n)
	for i := range n {
		a := articles[i]
		out[i] = ArticleSummary{
			ID:             a.ID,
			Title:          a.Title,
			URL:            a.URL,
			PublishedAt:    a.PublishedAt,
			ContentPreview: preview(a.Content),
		}
	}
	return out
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLen {
		return s
	}
	r := []rune(s)
	return string(r[:previewLen])
}

func fold(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
