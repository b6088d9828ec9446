package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kalambet/artribune/internal/search"
)

// ErrInvalidArgument marks a request rejected before any backend call.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Mode selects how a search request is answered.
type Mode string

const (
	ModeDatabase Mode = "database"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
	ModeEntity   Mode = "entity"
)

// ParseMode validates a mode name. An empty string selects database mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeDatabase, nil
	case ModeDatabase, ModeSemantic, ModeHybrid, ModeEntity:
		return m, nil
	case "lexical", "fulltext":
		return ModeDatabase, nil
	default:
		return "", invalid("unknown search mode %q", s)
	}
}

// ParseLimit parses a limit parameter. An empty value yields 0, which the
// router replaces with the operation's default. Non-numeric and
// non-positive values are invalid.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalid("limit must be an integer, got %q", raw)
	}
	if n < 1 {
		return 0, invalid("limit must be at least 1, got %d", n)
	}
	return n, nil
}

// ParseArticleID parses a positive article id.
func ParseArticleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, invalid("article id must be a positive integer, got %q", raw)
	}
	return id, nil
}

// resolveLimit applies the default for an unset limit and clamps into
// [1, max].
func resolveLimit(limit, def, max int) (int, error) {
	switch {
	case limit < 0:
		return 0, invalid("limit must be at least 1, got %d", limit)
	case limit == 0:
		limit = def
	}
	if limit > max {
		limit = max
	}
	if limit < 1 {
		limit = 1
	}
	return limit, nil
}

// SearchRequest is a text or entity search.
type SearchRequest struct {
	Mode  Mode
	Query string
	Limit int

	// Entity mode only.
	Name       string
	EntityType string
}

// SearchResponse is the envelope of every search mode.
type SearchResponse struct {
	Query           string       `json:"query"`
	Mode            Mode         `json:"mode"`
	TotalResults    int          `json:"total_results"`
	Results         []search.Hit `json:"results"`
	Sources         []string     `json:"sources"`
	Degraded        bool         `json:"degraded"`
	DegradedSources []string     `json:"degraded_sources"`
}
