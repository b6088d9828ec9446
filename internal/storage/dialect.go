package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect selects the SQL flavour of the corpus store.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect validates a storage.driver config value.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectPostgres, DialectSQLite:
		return d, nil
	case "postgresql", "pq":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported storage driver %q", s)
	}
}

// Rebind rewrites '?' placeholders to '$n' for Postgres. Queries in this
// package never contain a literal '?' outside placeholders.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// InInt64 renders "col IN (...)" for the dialect: a single array parameter on
// Postgres, expanded placeholders on SQLite.
func (d Dialect) InInt64(column string, ids []int64) (string, []any) {
	if d == DialectPostgres {
		return column + " = ANY(?)", []any{pq.Array(ids)}
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return column + " IN (?" + strings.Repeat(",?", len(ids)-1) + ")", args
}

// likeEscaper escapes LIKE wildcards; patterns use ESCAPE '\'.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func prefixPattern(s string) string {
	return likeEscaper.Replace(strings.ToLower(s)) + "%"
}
