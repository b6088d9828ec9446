// Package api exposes the query router over HTTP and as an MCP tool server.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kalambet/artribune/internal/query"
)

const (
	ServiceName    = "artribune-mcp"
	ServiceVersion = "1.0.0"

	maxBodySize = 64 << 10
)

// Service is the read API behind every endpoint. *query.Router implements it.
type Service interface {
	Search(ctx context.Context, req query.SearchRequest) (*query.SearchResponse, error)
	Article(ctx context.Context, id int64) (*query.ArticleDetail, error)
	ArticleEntities(ctx context.Context, id int64) (*query.ArticleEntities, error)
	ArticleContent(ctx context.Context, id int64, withMetadata bool) (*query.ArticleContent, error)
	Recent(ctx context.Context, limit int) (*query.RecentArticles, error)
	ArtistProfile(ctx context.Context, name string, limit int) (*query.ArtistProfile, error)
	VenueProfile(ctx context.Context, name string, limit int) (*query.VenueProfile, error)
	EntityArticles(ctx context.Context, name, entityType string, limit int) (*query.EntityArticles, error)
	Analyze(ctx context.Context, req query.AnalysisRequest) (*query.AnalysisResponse, error)
}

// Deps holds the dependencies of the HTTP handler.
type Deps struct {
	Service        Service
	Gate           Authorizer
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// NewHandler builds the REST API. /health is public; everything else needs
// a bearer key.
func NewHandler(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(deps.Logger))
	r.Use(AccessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIKey(deps.Gate))

		r.Get("/search/{mode}", handleSearch(deps))
		r.Get("/article/{id}", handleArticle(deps))
		r.Get("/article/{id}/entities", handleArticleEntities(deps))
		r.Get("/article/{id}/content", handleArticleContent(deps))
		r.Get("/recent", handleRecent(deps))

		r.Post("/mcp/search_articles", handleSearchArticles(deps))
		r.Post("/mcp/get_artist_profile", handleArtistProfile(deps))
		r.Post("/mcp/get_venue_profile", handleVenueProfile(deps))
		r.Post("/mcp/search_by_entity", handleSearchByEntity(deps))
		r.Post("/mcp/tri_query", handleTriQuery(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusNotFound, CodeNotFound, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpError(w, http.StatusMethodNotAllowed, CodeInvalidArgument, "method not allowed")
	})
	return r
}

// Health is the body of GET /health.
type Health struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, Health{Status: "healthy", Service: ServiceName, Version: ServiceVersion})
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode, err := query.ParseMode(chi.URLParam(r, "mode"))
		if err == nil && mode == query.ModeEntity {
			err = fmt.Errorf("%w: entity search is served by /mcp/search_by_entity", query.ErrInvalidArgument)
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp, err := deps.Service.Search(r.Context(), query.SearchRequest{
			Mode:  mode,
			Query: r.URL.Query().Get("query"),
			Limit: limit,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func handleArticle(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := query.ParseArticleID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		a, err := deps.Service.Article(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, a)
	}
}

func handleArticleEntities(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := query.ParseArticleID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out, err := deps.Service.ArticleEntities(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}

func handleArticleContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := query.ParseArticleID(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		withMetadata := false
		if raw := r.URL.Query().Get("include_metadata"); raw != "" {
			if withMetadata, err = strconv.ParseBool(raw); err != nil {
				httpError(w, http.StatusBadRequest, CodeInvalidArgument, "include_metadata must be a boolean")
				return
			}
		}
		out, err := deps.Service.ArticleContent(r.Context(), id, withMetadata)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}

func handleRecent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		out, err := deps.Service.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}

func handleSearchArticles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		mode, err := query.ParseMode(q.Get("search_type"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		limit, err := query.ParseLimit(q.Get("limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp, err := deps.Service.Search(r.Context(), query.SearchRequest{
			Mode:       mode,
			Query:      q.Get("query"),
			Limit:      limit,
			Name:       q.Get("entity_name"),
			EntityType: q.Get("entity_type"),
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, resp)
	}
}

func handleArtistProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := deps.Service.ArtistProfile(r.Context(), r.URL.Query().Get("artist_name"), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, p)
	}
}

func handleVenueProfile(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := query.ParseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := deps.Service.VenueProfile(r.Context(), r.URL.Query().Get("venue_name"), limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, p)
	}
}

// EntitySearchRequest is the body of POST /mcp/search_by_entity.
type EntitySearchRequest struct {
	EntityName string `json:"entity_name"`
	EntityType string `json:"entity_type"`
	Limit      *int   `json:"limit"`
}

func handleSearchByEntity(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req EntitySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, CodeInvalidArgument, "invalid request body")
			return
		}
		limit := 0
		if req.Limit != nil {
			if *req.Limit < 1 {
				httpError(w, http.StatusBadRequest, CodeInvalidArgument, "limit must be at least 1")
				return
			}
			limit = *req.Limit
		}
		out, err := deps.Service.EntityArticles(r.Context(), req.EntityName, req.EntityType, limit)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}

func handleTriQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		defer r.Body.Close()

		var req query.AnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, CodeInvalidArgument, "invalid request body")
			return
		}
		out, err := deps.Service.Analyze(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, out)
	}
}
