package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kalambet/artribune/internal/graph"
	"github.com/kalambet/artribune/internal/storage"
	"golang.org/x/sync/errgroup"
)

// DefaultAnalysisLimit bounds each part of a combined analysis when the
// request leaves max_results unset.
const DefaultAnalysisLimit = 10

// Analysis parts, in the order they are reported.
const (
	SystemSemantic = "semantic"
	SystemGraph    = "graph"
	SystemTemporal = "temporal"
)

// AnalysisRequest asks for any combination of a hybrid search over Query,
// the artist co-occurrence network and the publication timeline.
type AnalysisRequest struct {
	Query       string `json:"query"`
	UseSemantic *bool  `json:"use_semantic,omitempty"`
	UseGraph    bool   `json:"use_graph"`
	UseDates    bool   `json:"use_dates"`
	MaxResults  int    `json:"max_results"`
	DateRange   string `json:"date_range"`
}

func (req AnalysisRequest) semantic() bool {
	return req.UseSemantic == nil || *req.UseSemantic
}

// NetworkAnalysis lists the strongest artist co-occurrences.
type NetworkAnalysis struct {
	Collaborations []graph.Edge `json:"collaborations"`
	TotalFound     int          `json:"total_found"`
}

// TimelineAnalysis lists article counts per year.
type TimelineAnalysis struct {
	Timeline   []storage.YearCount `json:"timeline"`
	DateRange  string              `json:"date_range"`
	TotalYears int                 `json:"total_years"`
}

// AnalysisResponse carries the parts that ran. A part that failed is named
// in DegradedSystems and left out.
type AnalysisResponse struct {
	Query           string            `json:"query"`
	SystemsUsed     []string          `json:"systems_used"`
	DegradedSystems []string          `json:"degraded_systems"`
	Semantic        *SearchResponse   `json:"semantic_analysis,omitempty"`
	Graph           *NetworkAnalysis  `json:"graph_data,omitempty"`
	Temporal        *TimelineAnalysis `json:"temporal_data,omitempty"`
	Summary         string            `json:"combined_summary"`
}

// ParseDateRange turns a date range into a timeline filter and its canonical
// label. Accepted forms: "" or "all", "last_year" (the 365 days before now),
// a single year "2024" and an inclusive span "2020-2024".
func ParseDateRange(raw string, now time.Time) (storage.TimelineFilter, string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "all":
		return storage.TimelineFilter{}, "all", nil
	case "last_year":
		return storage.TimelineFilter{Since: now.UTC().AddDate(0, 0, -365)}, s, nil
	}
	from, to, span := strings.Cut(s, "-")
	fy, err := parseYear(from)
	if err != nil {
		return storage.TimelineFilter{}, "", invalid("date_range must be all, last_year, YYYY or YYYY-YYYY, got %q", raw)
	}
	ty := fy
	if span {
		if ty, err = parseYear(to); err != nil {
			return storage.TimelineFilter{}, "", invalid("date_range must be all, last_year, YYYY or YYYY-YYYY, got %q", raw)
		}
	}
	if fy > ty {
		return storage.TimelineFilter{}, "", invalid("date_range starts after it ends: %q", raw)
	}
	label := strconv.Itoa(fy)
	if ty != fy {
		label += "-" + strconv.Itoa(ty)
	}
	return storage.TimelineFilter{FromYear: fy, ToYear: ty}, label, nil
}

func parseYear(s string) (int, error) {
	if len(s) != 4 {
		return 0, errors.New("not a year")
	}
	return strconv.Atoi(s)
}

// Analyze runs the requested parts concurrently. Parts fail independently;
// the request fails only when every requested part did.
func (r *Router) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, invalid("query is required")
	}
	if !req.semantic() && !req.UseGraph && !req.UseDates {
		return nil, invalid("at least one of use_semantic, use_graph, use_dates must be set")
	}
	limit, err := resolveLimit(req.MaxResults, DefaultAnalysisLimit, r.cfg.MaxLimit)
	if err != nil {
		return nil, err
	}
	filter, rangeLabel, err := ParseDateRange(req.DateRange, r.now())
	if err != nil {
		return nil, err
	}

	resp := &AnalysisResponse{Query: q, SystemsUsed: []string{}, DegradedSystems: []string{}}
	var (
		semErr, graphErr, timeErr error
		g                         errgroup.Group
	)
	if req.semantic() {
		g.Go(func() error {
			resp.Semantic, semErr = r.Search(ctx, SearchRequest{Mode: ModeHybrid, Query: q, Limit: limit})
			return nil
		})
	}
	if req.UseGraph {
		g.Go(func() error {
			var edges []graph.Edge
			edges, graphErr = r.profiles.Network(ctx, storage.EntityPerson, limit)
			if graphErr == nil {
				resp.Graph = &NetworkAnalysis{Collaborations: edges, TotalFound: len(edges)}
			}
			return nil
		})
	}
	if req.UseDates {
		g.Go(func() error {
			var years []storage.YearCount
			years, timeErr = r.corpus.Timeline(ctx, filter, limit)
			if timeErr == nil {
				resp.Temporal = &TimelineAnalysis{Timeline: years, DateRange: rangeLabel, TotalYears: len(years)}
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	logger := LoggerFrom(ctx, r.logger)
	var (
		summary []string
		errs    []error
	)
	record := func(system string, requested bool, err error, part func() string) {
		if !requested {
			return
		}
		if err != nil {
			logger.Warn("analysis part failed", "system", system, "error", err)
			resp.DegradedSystems = append(resp.DegradedSystems, system)
			summary = append(summary, system+": unavailable")
			errs = append(errs, fmt.Errorf("%s: %w", system, err))
			return
		}
		resp.SystemsUsed = append(resp.SystemsUsed, system)
		summary = append(summary, part())
	}
	record(SystemSemantic, req.semantic(), semErr, func() string {
		return fmt.Sprintf("%s: %d results", SystemSemantic, resp.Semantic.TotalResults)
	})
	record(SystemGraph, req.UseGraph, graphErr, func() string {
		return fmt.Sprintf("%s: %d collaborations", SystemGraph, resp.Graph.TotalFound)
	})
	record(SystemTemporal, req.UseDates, timeErr, func() string {
		return fmt.Sprintf("%s: %d years", SystemTemporal, resp.Temporal.TotalYears)
	})

	if len(resp.SystemsUsed) == 0 {
		return nil, errors.Join(errs...)
	}
	resp.Summary = strings.Join(summary, " | ")
	return resp, nil
}
