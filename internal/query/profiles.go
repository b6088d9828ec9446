package query

import (
	"context"
	"strings"
	"time"

	"github.com/kalambet/artribune/internal/graph"
	"github.com/kalambet/artribune/internal/storage"
)

// ArtistProfile is the artist relationship profile envelope.
type ArtistProfile struct {
	ArtistName        string                 `json:"artist_name"`
	TotalArticles     int                    `json:"total_articles"`
	Venues            []string               `json:"venues"`
	Collaborators     []string               `json:"collaborators"`
	ExhibitionsEvents []string               `json:"exhibitions_events"`
	Articles          []graph.ArticleSummary `json:"articles"`
	ResolvedEntities  []EntityRef            `json:"resolved_entities"`
	Summary           ArtistSummary          `json:"summary"`
}

// ArtistSummary counts distinct names before category caps apply.
type ArtistSummary struct {
	TotalArticlesFound     int `json:"total_articles_found"`
	UniqueVenues           int `json:"unique_venues"`
	UniqueEvents           int `json:"unique_events"`
	PotentialCollaborators int `json:"potential_collaborators"`
}

// VenueProfile is the venue relationship profile envelope.
type VenueProfile struct {
	VenueName         string                 `json:"venue_name"`
	TotalArticles     int                    `json:"total_articles"`
	FeaturedArtists   []string               `json:"featured_artists"`
	EventsExhibitions []string               `json:"events_exhibitions"`
	Articles          []graph.ArticleSummary `json:"articles"`
	ResolvedEntities  []EntityRef            `json:"resolved_entities"`
	Summary           VenueSummary           `json:"summary"`
}

// VenueSummary counts distinct names before category caps apply.
type VenueSummary struct {
	TotalArticlesFound int `json:"total_articles_found"`
	UniqueArtists      int `json:"unique_artists"`
	UniqueEvents       int `json:"unique_events"`
}

// EntityRef identifies a resolved entity.
type EntityRef struct {
	ID   int64              `json:"id"`
	Name string             `json:"name"`
	Type storage.EntityType `json:"type"`
}

// EntityArticles lists the articles linked to an entity.
type EntityArticles struct {
	EntityName       string           `json:"entity_name"`
	EntityType       string           `json:"entity_type,omitempty"`
	TotalResults     int              `json:"total_results"`
	TotalLinked      int              `json:"total_linked"`
	ResolvedEntities []EntityRef      `json:"resolved_entities"`
	Articles         []ArticleSummary `json:"articles"`
}

// ArticleSummary is an article in list responses.
type ArticleSummary struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"published_date"`
}

func refs(entities []storage.Entity) []EntityRef {
	out := make([]EntityRef, len(entities))
	for i, e := range entities {
		out[i] = EntityRef{ID: e.ID, Name: e.Name, Type: e.Type}
	}
	return out
}

func summaries(articles []storage.Article) []ArticleSummary {
	out := make([]ArticleSummary, len(articles))
	for i, a := range articles {
		out[i] = ArticleSummary{ID: a.ID, Title: a.Title, URL: a.URL, Excerpt: a.Excerpt, PublishedAt: a.PublishedAt}
	}
	return out
}

func (r *Router) profile(ctx context.Context, name string, limit int, typ *storage.EntityType, lens graph.Lens) (*graph.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("a %s name is required", lens.Name)
	}
	limit, err := resolveLimit(limit, r.cfg.ProfileLimit, r.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}
	return r.profiles.BuildProfile(ctx, name, typ, limit, lens)
}

// ArtistProfile builds the relationship profile of an artist. Any entity
// type may be the subject; a PERSON match is preferred when one exists.
func (r *Router) ArtistProfile(ctx context.Context, name string, limit int) (*ArtistProfile, error) {
	p, err := r.preferTyped(ctx, name, limit, storage.EntityPerson, graph.ArtistLens)
	if err != nil {
		return nil, err
	}
	return &ArtistProfile{
		ArtistName:        strings.TrimSpace(name),
		TotalArticles:     p.TotalArticles,
		Venues:            p.Names(graph.Venues),
		Collaborators:     p.Names(graph.Collaborators),
		ExhibitionsEvents: p.Names(graph.ExhibitionsEvents),
		Articles:          p.Articles,
		ResolvedEntities:  refs(p.Entities),
		Summary: ArtistSummary{
			TotalArticlesFound:     p.TotalArticles,
			UniqueVenues:           p.Unique[graph.Venues],
			UniqueEvents:           p.Unique[graph.ExhibitionsEvents],
			PotentialCollaborators: p.Unique[graph.Collaborators],
		},
	}, nil
}

// VenueProfile builds the relationship profile of a venue, preferring an
// ORGANIZATION match.
func (r *Router) VenueProfile(ctx context.Context, name string, limit int) (*VenueProfile, error) {
	p, err := r.preferTyped(ctx, name, limit, storage.EntityOrganization, graph.VenueLens)
	if err != nil {
		return nil, err
	}
	return &VenueProfile{
		VenueName:         strings.TrimSpace(name),
		TotalArticles:     p.TotalArticles,
		FeaturedArtists:   p.Names(graph.FeaturedArtists),
		EventsExhibitions: p.Names(graph.EventsExhibitions),
		Articles:          p.Articles,
		ResolvedEntities:  refs(p.Entities),
		Summary: VenueSummary{
			TotalArticlesFound: p.TotalArticles,
			UniqueArtists:      p.Unique[graph.FeaturedArtists],
			UniqueEvents:       p.Unique[graph.EventsExhibitions],
		},
	}, nil
}

// preferTyped resolves with the lens' natural type first and falls back to
// any type when that finds nothing.
func (r *Router) preferTyped(ctx context.Context, name string, limit int, typ storage.EntityType, lens graph.Lens) (*graph.Profile, error) {
	p, err := r.profile(ctx, name, limit, &typ, lens)
	if err == nil || !isNotFound(err) {
		return p, err
	}
	return r.profile(ctx, name, limit, nil, lens)
}

// EntityArticles lists articles linked to the named entity. entityType
// accepts enum names and aliases (artist, venue, ...).
func (r *Router) EntityArticles(ctx context.Context, name, entityType string, limit int) (*EntityArticles, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("entity_name is required")
	}
	typ, err := parseTypeHint(entityType)
	if err != nil {
		return nil, err
	}
	limit, err = resolveLimit(limit, DefaultEntityLimit, r.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}

	articles, total, resolved, err := r.profiles.EntityArticles(ctx, name, typ, limit)
	if err != nil {
		return nil, err
	}
	out := &EntityArticles{
		EntityName:       name,
		TotalResults:     len(articles),
		TotalLinked:      total,
		ResolvedEntities: refs(resolved),
		Articles:         summaries(articles),
	}
	if typ != nil {
		out.EntityType = string(*typ)
	}
	return out, nil
}
