package api

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/artribune/internal/query"
)

// NewMCPServer registers the artribune tools on an MCP server. Every tool
// delegates to svc and answers with the same JSON documents as the REST API.
func NewMCPServer(svc Service, logger *slog.Logger) *server.MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := server.NewMCPServer(
		"artribune",
		ServiceVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions("artribune: search contemporary art articles and explore relationships between artists, venues and events."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_articles",
			mcp.WithDescription("Search Artribune articles by keyword, meaning, or both."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithString("search_type",
				mcp.Description("database (keyword), semantic, or hybrid (default database)"),
				mcp.Enum(string(query.ModeDatabase), string(query.ModeSemantic), string(query.ModeHybrid)),
			),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 10)")),
		),
		mcpSearchArticles(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_article",
			mcp.WithDescription("Fetch the full record of one article."),
			mcp.WithNumber("article_id", mcp.Description("Article id"), mcp.Required()),
		),
		mcpGetArticle(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_article_content",
			mcp.WithDescription("Get the text of an article, optionally with its extracted metadata."),
			mcp.WithNumber("article_id", mcp.Description("Article id"), mcp.Required()),
			mcp.WithBoolean("include_metadata", mcp.Description("Include the extracted metadata document (default false)")),
		),
		mcpArticleContent(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_recent_articles",
			mcp.WithDescription("List the most recently published articles."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of articles (default 20)")),
		),
		mcpRecentArticles(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_artist_profile",
			mcp.WithDescription("Relationship profile of an artist: venues, collaborators and exhibitions drawn from the articles that mention them."),
			mcp.WithString("artist_name", mcp.Description("Artist name, full or partial"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Number of articles to analyse (default 15)")),
		),
		mcpArtistProfile(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_venue_profile",
			mcp.WithDescription("Relationship profile of a gallery, museum or other venue: featured artists and events."),
			mcp.WithString("venue_name", mcp.Description("Venue name, full or partial"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Number of articles to analyse (default 15)")),
		),
		mcpVenueProfile(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("search_by_entity",
			mcp.WithDescription("List articles tagged with a named entity."),
			mcp.WithString("entity_name", mcp.Description("Entity name"), mcp.Required()),
			mcp.WithString("entity_type", mcp.Description("Optional type: artist, venue, organization, location, event")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of articles (default 10)")),
		),
		mcpSearchByEntity(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("get_article_entities",
			mcp.WithDescription("List the artists, venues, events and other entities of one article."),
			mcp.WithNumber("article_id", mcp.Description("Article id"), mcp.Required()),
		),
		mcpArticleEntities(svc, logger),
	)

	s.AddTool(
		mcp.NewTool("tri_query",
			mcp.WithDescription("Combined analysis: hybrid article search, the artist co-occurrence network and the yearly publication timeline."),
			mcp.WithString("query", mcp.Description("Natural-language question"), mcp.Required()),
			mcp.WithBoolean("use_semantic", mcp.Description("Run the hybrid search (default true)")),
			mcp.WithBoolean("use_graph", mcp.Description("Include the artist co-occurrence network (default false)")),
			mcp.WithBoolean("use_dates", mcp.Description("Include the yearly timeline (default false)")),
			mcp.WithNumber("max_results", mcp.Description("Maximum entries per part (default 10)")),
			mcp.WithString("date_range", mcp.Description("all, last_year, YYYY or YYYY-YYYY (default all)")),
		),
		mcpTriQuery(svc, logger),
	)

	return s
}

func mcpTriQuery(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		useSemantic := req.GetBool("use_semantic", true)
		out, err := svc.Analyze(ctx, query.AnalysisRequest{
			Query:       q,
			UseSemantic: &useSemantic,
			UseGraph:    req.GetBool("use_graph", false),
			UseDates:    req.GetBool("use_dates", false),
			MaxResults:  req.GetInt("max_results", 0),
			DateRange:   req.GetString("date_range", ""),
		})
		return mcpRespond(logger, "tri_query", out, err), nil
	}
}

func mcpSearchArticles(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		mode, err := query.ParseMode(req.GetString("search_type", ""))
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if mode == query.ModeEntity {
			return mcpError("use search_by_entity for entity search"), nil
		}
		resp, err := svc.Search(ctx, query.SearchRequest{
			Mode:  mode,
			Query: q,
			Limit: req.GetInt("limit", 0),
		})
		return mcpRespond(logger, "search_articles", resp, err), nil
	}
}

func mcpGetArticle(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("article_id")
		if err != nil {
			return mcpError("article_id is required"), nil
		}
		a, err := svc.Article(ctx, int64(id))
		return mcpRespond(logger, "get_article", a, err), nil
	}
}

func mcpArticleContent(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("article_id")
		if err != nil {
			return mcpError("article_id is required"), nil
		}
		out, err := svc.ArticleContent(ctx, int64(id), req.GetBool("include_metadata", false))
		return mcpRespond(logger, "get_article_content", out, err), nil
	}
}

func mcpRecentArticles(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		out, err := svc.Recent(ctx, req.GetInt("limit", 0))
		return mcpRespond(logger, "get_recent_articles", out, err), nil
	}
}

func mcpArtistProfile(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("artist_name")
		if err != nil {
			return mcpError("artist_name is required"), nil
		}
		p, err := svc.ArtistProfile(ctx, name, req.GetInt("limit", 0))
		return mcpRespond(logger, "get_artist_profile", p, err), nil
	}
}

func mcpVenueProfile(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("venue_name")
		if err != nil {
			return mcpError("venue_name is required"), nil
		}
		p, err := svc.VenueProfile(ctx, name, req.GetInt("limit", 0))
		return mcpRespond(logger, "get_venue_profile", p, err), nil
	}
}

func mcpSearchByEntity(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, err := req.RequireString("entity_name")
		if err != nil {
			return mcpError("entity_name is required"), nil
		}
		out, err := svc.EntityArticles(ctx, name, req.GetString("entity_type", ""), req.GetInt("limit", 0))
		return mcpRespond(logger, "search_by_entity", out, err), nil
	}
}

func mcpArticleEntities(svc Service, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireInt("article_id")
		if err != nil {
			return mcpError("article_id is required"), nil
		}
		out, err := svc.ArticleEntities(ctx, int64(id))
		return mcpRespond(logger, "get_article_entities", out, err), nil
	}
}

// mcpRespond renders v as JSON text, or err as a tool error carrying the
// same client message the REST API would send.
func mcpRespond(logger *slog.Logger, tool string, v any, err error) *mcp.CallToolResult {
	if err != nil {
		status, code, msg := classify(err)
		if status >= 500 {
			logger.Error("tool call failed", "tool", tool, "code", code, "error", err)
		}
		return mcpError(code + ": " + msg)
	}
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("encoding tool result", "tool", tool, "error", err)
		return mcpError(CodeInternal + ": internal error")
	}
	return mcpText(string(b))
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
