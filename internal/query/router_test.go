package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/artribune/internal/graph"
	"github.com/kalambet/artribune/internal/search"
	"github.com/kalambet/artribune/internal/storage"
	"github.com/kalambet/artribune/internal/storage/storagetest"
)

// mockSearcher returns canned hits, or blocks until its context is done
// when block is set.
type mockSearcher struct {
	modality search.Modality
	hits     []search.Hit
	err      error
	block    bool
	started  chan struct{}
	wait     chan struct{}

	calls    atomic.Int32
	gotLimit atomic.Int32
}

func (m *mockSearcher) Modality() search.Modality { return m.modality }

func (m *mockSearcher) Search(ctx context.Context, q string, limit int) ([]search.Hit, error) {
	m.calls.Add(1)
	m.gotLimit.Store(int32(limit))
	if m.started != nil {
		close(m.started)
	}
	if m.wait != nil {
		select {
		case <-m.wait:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", search.ErrBackendUnavailable, ctx.Err())
		}
	}
	if m.block {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %w", search.ErrBackendUnavailable, ctx.Err())
	}
	if m.err != nil {
		return nil, m.err
	}
	hits := m.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(t *testing.T, lex, sem search.Searcher) (*Router, *storage.Store) {
	t.Helper()
	s := storagetest.Open(t)
	agg := graph.NewAggregator(s, 25, quietLogger())
	r := New(lex, sem, s, agg, Config{
		DefaultLimit:     10,
		MaxLimit:         50,
		Weights:          search.DefaultWeights,
		SubsearchTimeout: 200 * time.Millisecond,
	}, quietLogger())
	return r, s
}

func cattelanSearchers() (*mockSearcher, *mockSearcher) {
	lex := &mockSearcher{modality: search.Lexical, hits: []search.Hit{
		{ArticleID: 101, Score: 9.2, PublishedAt: day(2024, time.May, 1), Modality: search.Lexical},
		{ArticleID: 203, Score: 4.1, PublishedAt: day(2024, time.June, 1), Modality: search.Lexical},
	}}
	sem := &mockSearcher{modality: search.Semantic, hits: []search.Hit{
		{ArticleID: 203, Score: 0.81, PublishedAt: day(2024, time.June, 1), Modality: search.Semantic},
		{ArticleID: 500, Score: 0.77, PublishedAt: day(2023, time.January, 1), Modality: search.Semantic},
	}}
	return lex, sem
}

func resultIDs(hits []search.Hit) []int64 {
	out := make([]int64, len(hits))
	for i, h := range hits {
		out[i] = h.ArticleID
	}
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearchValidationBeforeBackend(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, _ := newTestRouter(t, lex, sem)

	tests := []struct {
		name string
		req  SearchRequest
	}{
		{"empty query", SearchRequest{Mode: ModeDatabase, Query: "   "}},
		{"unknown mode", SearchRequest{Mode: "fuzzy", Query: "x"}},
		{"negative limit", SearchRequest{Mode: ModeHybrid, Query: "x", Limit: -3}},
		{"entity without name", SearchRequest{Mode: ModeEntity}},
		{"entity bad type", SearchRequest{Mode: ModeEntity, Name: "x", EntityType: "planet"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Search(context.Background(), tt.req)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
		})
	}
	if lex.calls.Load() != 0 || sem.calls.Load() != 0 {
		t.Errorf("backends called on invalid input: lexical=%d semantic=%d", lex.calls.Load(), sem.calls.Load())
	}
}

func TestSearchLimitDefaultAndClamp(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, _ := newTestRouter(t, lex, sem)

	if _, err := r.Search(context.Background(), SearchRequest{Mode: ModeDatabase, Query: "x"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := lex.gotLimit.Load(); got != 10 {
		t.Errorf("default limit = %d, want 10", got)
	}

	if _, err := r.Search(context.Background(), SearchRequest{Mode: ModeDatabase, Query: "x", Limit: 5000}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got := lex.gotLimit.Load(); got != 50 {
		t.Errorf("clamped limit = %d, want 50", got)
	}
}

func TestSearchHybridCattelan(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, _ := newTestRouter(t, lex, sem)

	resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: " Cattelan ", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if want := []int64{203, 101, 500}; !equalIDs(resultIDs(resp.Results), want) {
		t.Errorf("results = %v, want %v", resultIDs(resp.Results), want)
	}
	if resp.Query != "Cattelan" || resp.Mode != ModeHybrid || resp.TotalResults != 3 {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Degraded || len(resp.DegradedSources) != 0 || len(resp.Sources) != 2 {
		t.Errorf("unexpected degradation: %+v", resp)
	}
	if lex.gotLimit.Load() != 5 || sem.gotLimit.Load() != 5 {
		t.Errorf("branches must fetch limit candidates, got %d/%d", lex.gotLimit.Load(), sem.gotLimit.Load())
	}

	resp, err = r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: "Cattelan", Limit: 2})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) > 2 {
		t.Errorf("limit not respected: %d results", len(resp.Results))
	}
}

func TestSearchHybridRunsBranchesConcurrently(t *testing.T) {
	lex, sem := cattelanSearchers()
	lex.started, sem.started = make(chan struct{}), make(chan struct{})
	// Each branch waits for the other to have started.
	lex.wait, sem.wait = sem.started, lex.started
	r, _ := newTestRouter(t, lex, sem)

	resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: "Cattelan"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Degraded {
		t.Errorf("sequential execution detected: %+v", resp.DegradedSources)
	}
}

func TestSearchHybridDegraded(t *testing.T) {
	tests := []struct {
		name       string
		failLex    bool
		wantSource string
		wantIDs    []int64
	}{
		{"lexical down", true, "lexical", []int64{203, 500}},
		{"semantic down", false, "semantic", []int64{101, 203}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex, sem := cattelanSearchers()
			failing := sem
			if tt.failLex {
				failing = lex
			}
			failing.err = fmt.Errorf("%w: connection refused", search.ErrBackendUnavailable)
			r, _ := newTestRouter(t, lex, sem)

			resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: "Cattelan"})
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if !resp.Degraded || len(resp.DegradedSources) != 1 || resp.DegradedSources[0] != tt.wantSource {
				t.Errorf("degradation = %v %v", resp.Degraded, resp.DegradedSources)
			}
			if !equalIDs(resultIDs(resp.Results), tt.wantIDs) {
				t.Errorf("results = %v, want %v", resultIDs(resp.Results), tt.wantIDs)
			}
		})
	}
}

func TestSearchHybridBranchTimeoutIsDegraded(t *testing.T) {
	lex, sem := cattelanSearchers()
	sem.block = true
	r, _ := newTestRouter(t, lex, sem)

	start := time.Now()
	resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: "Cattelan"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !resp.Degraded || resp.DegradedSources[0] != "semantic" {
		t.Errorf("expected semantic degradation, got %+v", resp)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("hybrid waited %s, expected the sub-search timeout to bound it", elapsed)
	}
}

func TestSearchHybridBothFail(t *testing.T) {
	lex, sem := cattelanSearchers()
	lex.err = fmt.Errorf("%w: lexical", search.ErrBackendUnavailable)
	sem.err = fmt.Errorf("%w: %w", search.ErrBackendUnavailable, storage.ErrPoolTimeout)
	r, _ := newTestRouter(t, lex, sem)

	_, err := r.Search(context.Background(), SearchRequest{Mode: ModeHybrid, Query: "Cattelan"})
	if !errors.Is(err, search.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
	if !errors.Is(err, storage.ErrPoolTimeout) {
		t.Errorf("pool timeout cause lost: %v", err)
	}
}

func TestSearchHybridCallerCancelled(t *testing.T) {
	lex, sem := cattelanSearchers()
	lex.block, sem.block = true, true
	r, _ := newTestRouter(t, lex, sem)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		_, err = r.Search(ctx, SearchRequest{Mode: ModeHybrid, Query: "Cattelan"})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	wg.Wait()

	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSearchSingleModes(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, _ := newTestRouter(t, lex, sem)

	resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeDatabase, Query: "Cattelan"})
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	if resp.Sources[0] != "lexical" || !equalIDs(resultIDs(resp.Results), []int64{101, 203}) {
		t.Errorf("database response: %+v", resp)
	}

	resp, err = r.Search(context.Background(), SearchRequest{Mode: ModeSemantic, Query: "Cattelan", Limit: 1})
	if err != nil {
		t.Fatalf("semantic: %v", err)
	}
	if resp.Sources[0] != "semantic" || resp.TotalResults != 1 {
		t.Errorf("semantic response: %+v", resp)
	}

	sem.err = fmt.Errorf("%w: down", search.ErrBackendUnavailable)
	if _, err := r.Search(context.Background(), SearchRequest{Mode: ModeSemantic, Query: "Cattelan"}); !errors.Is(err, search.ErrBackendUnavailable) {
		t.Errorf("semantic failure: got %v", err)
	}
}

func seedHirst(t *testing.T, s *storage.Store) {
	t.Helper()
	storagetest.AddEntity(t, s, 1, "Damien Hirst", storage.EntityPerson)
	storagetest.AddEntity(t, s, 2, "Gagosian", storage.EntityOrganization)
	storagetest.AddEntity(t, s, 3, "Jeff Koons", storage.EntityPerson)
	for i := int64(1); i <= 4; i++ {
		storagetest.AddArticle(t, s, storage.Article{ID: i, Title: fmt.Sprintf("story %d", i), PublishedAt: storagetest.Date(2024, time.Month(i), 1)})
		storagetest.Link(t, s, i, 1, 2)
	}
	storagetest.Link(t, s, 1, 3)
	storagetest.Link(t, s, 2, 3)
}

func TestArtistAndVenueProfiles(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, s := newTestRouter(t, lex, sem)
	seedHirst(t, s)

	p, err := r.ArtistProfile(context.Background(), "Hirst", 0)
	if err != nil {
		t.Fatalf("ArtistProfile: %v", err)
	}
	if len(p.Venues) != 1 || p.Venues[0] != "Gagosian" {
		t.Errorf("venues = %v", p.Venues)
	}
	if len(p.Collaborators) != 1 || p.Collaborators[0] != "Jeff Koons" {
		t.Errorf("collaborators = %v", p.Collaborators)
	}
	if p.ExhibitionsEvents == nil || len(p.ExhibitionsEvents) != 0 {
		t.Errorf("exhibitions_events = %#v, want empty non-nil", p.ExhibitionsEvents)
	}
	if p.TotalArticles != 4 || p.Summary.UniqueVenues != 1 {
		t.Errorf("unexpected totals: %+v", p)
	}

	v, err := r.VenueProfile(context.Background(), "Gagosian", 0)
	if err != nil {
		t.Fatalf("VenueProfile: %v", err)
	}
	if len(v.FeaturedArtists) != 2 || v.FeaturedArtists[0] != "Damien Hirst" {
		t.Errorf("featured_artists = %v", v.FeaturedArtists)
	}

	if _, err := r.ArtistProfile(context.Background(), "Banksy", 0); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.ArtistProfile(context.Background(), " ", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestArtistProfileFallsBackToAnyType(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, s := newTestRouter(t, lex, sem)
	seedHirst(t, s)

	// Gagosian is an ORGANIZATION; the artist lens still resolves it.
	p, err := r.ArtistProfile(context.Background(), "Gagosian", 0)
	if err != nil {
		t.Fatalf("ArtistProfile: %v", err)
	}
	if p.TotalArticles != 4 {
		t.Errorf("total_articles = %d", p.TotalArticles)
	}
}

func TestEntityArticlesAndEntityMode(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, s := newTestRouter(t, lex, sem)
	seedHirst(t, s)

	got, err := r.EntityArticles(context.Background(), "jeff koons", "artist", 0)
	if err != nil {
		t.Fatalf("EntityArticles: %v", err)
	}
	if got.TotalResults != 2 || got.EntityType != "PERSON" || got.Articles[0].ID != 2 {
		t.Errorf("unexpected result: %+v", got)
	}

	if _, err := r.EntityArticles(context.Background(), "jeff koons", "planet", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for bad type, got %v", err)
	}

	resp, err := r.Search(context.Background(), SearchRequest{Mode: ModeEntity, Name: "Gagosian", Limit: 3})
	if err != nil {
		t.Fatalf("entity mode: %v", err)
	}
	if resp.TotalResults != 3 || resp.Results[0].ArticleID != 4 {
		t.Errorf("entity mode response: %+v", resp)
	}
}

func TestArticleAndRecent(t *testing.T) {
	lex, sem := cattelanSearchers()
	r, s := newTestRouter(t, lex, sem)
	storagetest.AddArticle(t, s, storage.Article{
		ID: 9, Title: "Detail", Content: "Body",
		Metadata: storage.Metadata{
			"category": "review",
			"entities": map[string]any{"artists": []any{"Tracey Emin"}},
		},
	})
	for i := int64(10); i < 40; i++ {
		storagetest.AddArticle(t, s, storage.Article{ID: i, Title: "bulk", PublishedAt: storagetest.Date(2024, 1, int(i-9))})
	}

	d, err := r.Article(context.Background(), 9)
	if err != nil {
		t.Fatalf("Article: %v", err)
	}
	if d.Category != "review" || d.Content != "Body" {
		t.Errorf("unexpected detail: %+v", d)
	}
	if _, err := r.Article(context.Background(), 404); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	recent, err := r.Recent(context.Background(), 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if recent.TotalResults != DefaultRecentLimit || recent.Articles[0].ID != 39 {
		t.Errorf("recent: total=%d first=%d", recent.TotalResults, recent.Articles[0].ID)
	}

	ents, err := r.ArticleEntities(context.Background(), 9)
	if err != nil {
		t.Fatalf("ArticleEntities: %v", err)
	}
	if ents.TotalMentioned != 1 || len(ents.Mentions["venues"]) != 0 || ents.Mentions["venues"] == nil {
		t.Errorf("unexpected entities: %+v", ents)
	}

	content, err := r.ArticleContent(context.Background(), 9, false)
	if err != nil {
		t.Fatalf("ArticleContent: %v", err)
	}
	if content.WordCount != 1 || content.Metadata != nil {
		t.Errorf("unexpected content: %+v", content)
	}
	content, err = r.ArticleContent(context.Background(), 9, true)
	if err != nil {
		t.Fatalf("ArticleContent: %v", err)
	}
	if content.Metadata["category"] != "review" {
		t.Errorf("metadata not included: %+v", content.Metadata)
	}
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"5", 5, false},
		{" 12 ", 12, false},
		{"abc", 0, true},
		{"0", 0, true},
		{"-1", 0, true},
		{"2.5", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseLimit(tt.raw)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLimit(%q) = %d, %v", tt.raw, got, err)
		}
		if err != nil && !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("ParseLimit(%q) error not ErrInvalidArgument: %v", tt.raw, err)
		}
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeDatabase, "HYBRID": ModeHybrid, "semantic": ModeSemantic, "entity": ModeEntity, "lexical": ModeDatabase} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
}
