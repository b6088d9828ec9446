package query

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kalambet/artribune/internal/storage"
)

// ArticleDetail is the full article record with the enrichment fields of
// its metadata document.
type ArticleDetail struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Content     string     `json:"content"`
	Excerpt     string     `json:"excerpt"`
	PublishedAt *time.Time `json:"published_date"`
	CreatedAt   time.Time  `json:"created_at"`

	Description       any `json:"description,omitempty"`
	Category          any `json:"category,omitempty"`
	Entities          any `json:"entities,omitempty"`
	Images            any `json:"images,omitempty"`
	InternalLinks     any `json:"internal_links,omitempty"`
	ExternalLinks     any `json:"external_links,omitempty"`
	MediaFiles        any `json:"media_files,omitempty"`
	ExtractionVersion any `json:"extraction_version,omitempty"`
}

// RecentArticles is the envelope of the recent-articles listing.
type RecentArticles struct {
	TotalResults int              `json:"total_results"`
	Articles     []ArticleSummary `json:"articles"`
}

// ArticleEntities lists the entities of one article, from both the tagged
// edges and the metadata document.
type ArticleEntities struct {
	ArticleID      int64               `json:"article_id"`
	Title          string              `json:"title"`
	Linked         []EntityRef         `json:"linked_entities"`
	Mentions       map[string][]string `json:"entities"`
	TotalMentioned int                 `json:"total_entities"`
}

// ArticleContent is the text of an article, optionally with its metadata
// document.
type ArticleContent struct {
	ID        int64            `json:"id"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	WordCount int              `json:"word_count"`
	Metadata  storage.Metadata `json:"metadata,omitempty"`
}

// mentionLists are always present in ArticleEntities.Mentions.
var mentionLists = []string{"artists", "venues", "locations", "organizations", "events"}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// Article returns the full record of one article.
func (r *Router) Article(ctx context.Context, id int64) (*ArticleDetail, error) {
	if id < 1 {
		return nil, invalid("article id must be a positive integer")
	}
	a, err := r.corpus.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	d := &ArticleDetail{
		ID:          a.ID,
		Title:       a.Title,
		URL:         a.URL,
		Content:     a.Content,
		Excerpt:     a.Excerpt,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
	if m := a.Metadata; len(m) > 0 {
		d.Description = m["description"]
		d.Category = m["category"]
		d.Entities = m["entities"]
		d.Images = m["images"]
		d.InternalLinks = m["internal_links"]
		d.ExternalLinks = m["external_links"]
		d.MediaFiles = m["media_files"]
		d.ExtractionVersion = m["extraction_version"]
	}
	return d, nil
}

// ArticleContent returns the text of one article. The metadata document is
// included only when requested.
func (r *Router) ArticleContent(ctx context.Context, id int64, withMetadata bool) (*ArticleContent, error) {
	if id < 1 {
		return nil, invalid("article id must be a positive integer")
	}
	a, err := r.corpus.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	out := &ArticleContent{
		ID:        a.ID,
		Title:     a.Title,
		Content:   a.Content,
		WordCount: len(strings.Fields(a.Content)),
	}
	if withMetadata && len(a.Metadata) > 0 {
		out.Metadata = a.Metadata
	}
	return out, nil
}

// Recent lists the newest articles.
func (r *Router) Recent(ctx context.Context, limit int) (*RecentArticles, error) {
	limit, err := resolveLimit(limit, DefaultRecentLimit, r.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}
	articles, err := r.corpus.RecentArticles(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &RecentArticles{TotalResults: len(articles), Articles: summaries(articles)}, nil
}

// ArticleEntities returns the entities attached to an article.
func (r *Router) ArticleEntities(ctx context.Context, id int64) (*ArticleEntities, error) {
	if id < 1 {
		return nil, invalid("article id must be a positive integer")
	}
	a, err := r.corpus.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	linked, err := r.corpus.CoEntities(ctx, []int64{id})
	if err != nil {
		return nil, err
	}

	mentions := a.Metadata.Mentions()
	out := &ArticleEntities{
		ArticleID: a.ID,
		Title:     a.Title,
		Linked:    refs(linked[id]),
		Mentions:  make(map[string][]string, len(mentionLists)),
	}
	for _, list := range mentionLists {
		names := mentions[list]
		if names == nil {
			names = []string{}
		}
		out.Mentions[list] = names
	}
	for _, names := range mentions {
		out.TotalMentioned += len(names)
	}
	return out, nil
}
