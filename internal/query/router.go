// Package query validates client requests and dispatches them to the search
// backends, the hybrid merger and the relationship aggregator.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/artribune/internal/graph"
	"github.com/kalambet/artribune/internal/search"
	"github.com/kalambet/artribune/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Default limits applied when a request leaves the limit unset.
const (
	DefaultRecentLimit  = 20
	DefaultEntityLimit  = 10
	DefaultProfileLimit = 15
)

// Corpus is the direct article access of the router.
type Corpus interface {
	GetArticle(ctx context.Context, id int64) (*storage.Article, error)
	RecentArticles(ctx context.Context, limit int) ([]storage.Article, error)
	CoEntities(ctx context.Context, articleIDs []int64) (map[int64][]storage.Entity, error)
	Timeline(ctx context.Context, f storage.TimelineFilter, limit int) ([]storage.YearCount, error)
}

// Profiler builds relationship profiles. *graph.Aggregator implements it.
type Profiler interface {
	BuildProfile(ctx context.Context, name string, typeHint *storage.EntityType, limit int, lens graph.Lens) (*graph.Profile, error)
	EntityArticles(ctx context.Context, name string, typeHint *storage.EntityType, limit int) ([]storage.Article, int, []storage.Entity, error)
	Network(ctx context.Context, typ storage.EntityType, limit int) ([]graph.Edge, error)
}

// Config holds the router's limits and fusion settings.
type Config struct {
	DefaultLimit     int
	MaxLimit         int
	ProfileLimit     int
	Weights          search.Weights
	SubsearchTimeout time.Duration
}

// Router is the single entry point for every read operation.
type Router struct {
	lexical  search.Searcher
	semantic search.Searcher
	corpus   Corpus
	profiles Profiler
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Router. Zero config values fall back to defaults.
func New(lexical, semantic search.Searcher, corpus Corpus, profiles Profiler, cfg Config, logger *slog.Logger) *Router {
	if cfg.MaxLimit < 1 {
		cfg.MaxLimit = 50
	}
	if cfg.DefaultLimit < 1 {
		cfg.DefaultLimit = 10
	}
	if cfg.ProfileLimit < 1 {
		cfg.ProfileLimit = DefaultProfileLimit
	}
	if cfg.SubsearchTimeout <= 0 {
		cfg.SubsearchTimeout = 5 * time.Second
	}
	if cfg.Weights.Validate() != nil {
		cfg.Weights = search.DefaultWeights
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		lexical:  lexical,
		semantic: semantic,
		corpus:   corpus,
		profiles: profiles,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxLimit reports the upper bound applied to every limit.
func (r *Router) MaxLimit() int { return r.cfg.MaxLimit }

// Search validates req and answers it in the requested mode.
func (r *Router) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, err
	}
	limit, err := resolveLimit(req.Limit, r.cfg.DefaultLimit, r.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}

	if mode == ModeEntity {
		return r.searchEntity(ctx, req, limit)
	}

	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, invalid("query must not be empty")
	}

	resp := &SearchResponse{Query: q, Mode: mode, DegradedSources: []string{}}
	switch mode {
	case ModeDatabase:
		resp.Results, err = r.single(ctx, r.lexical, q, limit)
		resp.Sources = []string{string(search.Lexical)}
	case ModeSemantic:
		resp.Results, err = r.single(ctx, r.semantic, q, limit)
		resp.Sources = []string{string(search.Semantic)}
	case ModeHybrid:
		err = r.hybrid(ctx, q, limit, resp)
	}
	if err != nil {
		return nil, err
	}
	if resp.Results == nil {
		resp.Results = []search.Hit{}
	}
	resp.TotalResults = len(resp.Results)
	return resp, nil
}

func (r *Router) single(ctx context.Context, s search.Searcher, q string, limit int) ([]search.Hit, error) {
	hits, err := s.Search(ctx, q, limit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return hits, nil
}

// hybrid runs both sub-searches concurrently, each bounded by the
// sub-search timeout, and merges whatever succeeded. A failed branch never
// cancels the other.
func (r *Router) hybrid(ctx context.Context, q string, limit int, resp *SearchResponse) error {
	var (
		lexHits, semHits []search.Hit
		lexErr, semErr   error
		g                errgroup.Group
	)
	branch := func(s search.Searcher, hits *[]search.Hit, errp *error) func() error {
		return func() error {
			bctx, cancel := context.WithTimeout(ctx, r.cfg.SubsearchTimeout)
			defer cancel()
			*hits, *errp = s.Search(bctx, q, limit)
			return nil
		}
	}
	start := time.Now()
	g.Go(branch(r.lexical, &lexHits, &lexErr))
	g.Go(branch(r.semantic, &semHits, &semErr))
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	logger := LoggerFrom(ctx, r.logger)
	switch {
	case lexErr != nil && semErr != nil:
		logger.Error("hybrid search failed", "lexical_error", lexErr, "semantic_error", semErr)
		return fmt.Errorf("hybrid search: %w", errors.Join(lexErr, semErr))
	case lexErr != nil:
		logger.Warn("hybrid search degraded", "failed", search.Lexical, "error", lexErr)
		resp.Degraded = true
		resp.DegradedSources = []string{string(search.Lexical)}
		resp.Sources = []string{string(search.Semantic)}
	case semErr != nil:
		logger.Warn("hybrid search degraded", "failed", search.Semantic, "error", semErr)
		resp.Degraded = true
		resp.DegradedSources = []string{string(search.Semantic)}
		resp.Sources = []string{string(search.Lexical)}
	default:
		resp.Sources = []string{string(search.Lexical), string(search.Semantic)}
	}

	resp.Results = search.Merge(lexHits, semHits, limit, r.cfg.Weights)
	logger.Debug("hybrid search merged",
		"lexical", len(lexHits),
		"semantic", len(semHits),
		"merged", len(resp.Results),
		"elapsed", time.Since(start),
	)
	return nil
}

// entityModality tags hits produced by entity-mode search.
const entityModality search.Modality = "entity"

func (r *Router) searchEntity(ctx context.Context, req SearchRequest, limit int) (*SearchResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Query)
	}
	if name == "" {
		return nil, invalid("entity mode requires a name")
	}
	typ, err := parseTypeHint(req.EntityType)
	if err != nil {
		return nil, err
	}

	articles, _, _, err := r.profiles.EntityArticles(ctx, name, typ, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]search.Hit, len(articles))
	for i, a := range articles {
		hits[i] = search.Hit{
			ArticleID:   a.ID,
			Title:       a.Title,
			URL:         a.URL,
			Excerpt:     a.Excerpt,
			PublishedAt: a.PublishedAt,
			Modality:    entityModality,
		}
	}
	return &SearchResponse{
		Query:           name,
		Mode:            ModeEntity,
		TotalResults:    len(hits),
		Results:         hits,
		Sources:         []string{"entity_graph"},
		DegradedSources: []string{},
	}, nil
}

func parseTypeHint(s string) (*storage.EntityType, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := storage.ParseEntityType(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	return &t, nil
}
