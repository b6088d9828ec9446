package storage

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrPoolTimeout is returned when no connection handle became free within the
// acquire timeout.
var ErrPoolTimeout = errors.New("connection pool timeout")

// ErrUnavailable is returned when the corpus store cannot be reached after
// the retry budget is spent.
var ErrUnavailable = errors.New("corpus store unavailable")

// Article is a corpus article as stored by the ingestion pipeline.
type Article struct {
	ID          int64
	Title       string
	URL         string
	Content     string
	Excerpt     string
	PublishedAt *time.Time
	CreatedAt   time.Time
	Metadata    Metadata
}

// ScoredArticle is an article with the relevance score reported by a backend.
type ScoredArticle struct {
	Article
	Score float64
}

// EntityType is the closed set of entity categories produced by the tagger.
type EntityType string

const (
	EntityPerson       EntityType = "PERSON"
	EntityLocation     EntityType = "LOCATION"
	EntityOrganization EntityType = "ORGANIZATION"
	EntityEvent        EntityType = "EVENT"

	// Reserved for future tagger releases; stored but never classified.
	EntityWork     EntityType = "WORK"
	EntityMovement EntityType = "MOVEMENT"
)

var entityTypes = map[EntityType]struct{}{
	EntityPerson:       {},
	EntityLocation:     {},
	EntityOrganization: {},
	EntityEvent:        {},
	EntityWork:         {},
	EntityMovement:     {},
}

// entityTypeAliases maps the vocabulary used by assistant clients onto the
// tagger's types.
var entityTypeAliases = map[string]EntityType{
	"artist":       EntityPerson,
	"person":       EntityPerson,
	"venue":        EntityOrganization,
	"gallery":      EntityOrganization,
	"museum":       EntityOrganization,
	"organization": EntityOrganization,
	"location":     EntityLocation,
	"place":        EntityLocation,
	"event":        EntityEvent,
	"exhibition":   EntityEvent,
}

// ParseEntityType accepts either an enum name (PERSON) or a client alias
// (artist, venue, ...).
func ParseEntityType(s string) (EntityType, error) {
	s = strings.TrimSpace(s)
	if t := EntityType(strings.ToUpper(s)); t.Valid() {
		return t, nil
	}
	if t, ok := entityTypeAliases[strings.ToLower(s)]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// Valid reports whether t is one of the enumerated entity types.
func (t EntityType) Valid() bool {
	_, ok := entityTypes[t]
	return ok
}

// Entity is a named entity linked to articles through ArticleEntity edges.
type Entity struct {
	ID   int64
	Name string
	Type EntityType
}

// Metadata is the opaque JSON document attached to an article.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. Postgres returns JSONB as []byte, SQLite
// returns TEXT as string.
func (m *Metadata) Scan(value any) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("metadata: unsupported type %T", value)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	out := Metadata{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Malformed metadata is treated as absent, matching the ingestion
		// pipeline's own lenient parsing.
		*m = Metadata{}
		return nil
	}
	*m = out
	return nil
}

// Mentions returns the entity-name lists stored under metadata["entities"],
// keyed by list name (artists, venues, events, ...). Non-string items are
// skipped.
func (m Metadata) Mentions() map[string][]string {
	raw, ok := m["entities"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(raw))
	for key, v := range raw {
		items, ok := v.([]any)
		if !ok {
			continue
		}
		for _, it := range items {
			if s, ok := it.(string); ok && strings.TrimSpace(s) != "" {
				out[key] = append(out[key], strings.TrimSpace(s))
			}
		}
	}
	return out
}

// NullTime scans timestamps from either driver: Postgres yields time.Time,
// SQLite may yield time.Time or RFC3339 text depending on the column type.
type NullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (n *NullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case []byte:
		return n.parse(string(v))
	case string:
		return n.parse(v)
	default:
		return fmt.Errorf("timestamp: unsupported type %T", value)
	}
}

func (n *NullTime) parse(s string) error {
	if s == "" {
		n.Valid = false
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			n.Time, n.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("timestamp: cannot parse %q", s)
}

// Ptr returns the time, or nil when the column was NULL.
func (n NullTime) Ptr() *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}
