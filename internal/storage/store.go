package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// Options configures Open.
type Options struct {
	Driver Dialect
	// DSN is the Postgres connection string. Ignored for SQLite.
	DSN string
	// DataDir holds the SQLite database file. ":memory:" opens an in-memory
	// database limited to a single connection.
	DataDir        string
	PoolSize       int
	AcquireTimeout time.Duration
	RetryAttempts  int
	Logger         *slog.Logger
}

// Store gives read access to the article corpus and its entity graph. All
// queries run on handles leased from the pool.
type Store struct {
	db      *sql.DB
	dialect Dialect
	pool    *Pool
	retries int
	logger  *slog.Logger
}

// Open connects to the corpus store, applies pending schema migrations and
// sizes the connection pool.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  *sql.DB
		err error
	)
	poolSize := opts.PoolSize
	switch opts.Driver {
	case DialectPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("postgres driver requires a DSN")
		}
		db, err = sql.Open("postgres", opts.DSN)
	case DialectSQLite:
		var dsn string
		if opts.DataDir == ":memory:" {
			dsn = ":memory:"
			// Every new connection would see its own empty database.
			poolSize = 1
		} else {
			if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
			dsn = "file:" + filepath.Join(opts.DataDir, "artribune.db") +
				"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
		}
		db, err = sql.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &Store{
		db:      db,
		dialect: opts.Driver,
		retries: opts.RetryAttempts,
		logger:  logger,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	s.pool = NewPool(db, opts.Driver, poolSize, opts.AcquireTimeout)
	logger.Info("corpus store ready", "driver", opts.Driver, "pool_size", s.pool.Stats().Size)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Pool returns the connection pool shared by every query path.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Dialect reports the store's SQL dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// DB exposes the raw database for fixtures and schema setup. Query paths
// must go through Read instead.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Read leases a handle and runs fn on it, retrying transient connection
// failures. Exhausting the retries yields ErrUnavailable; pool timeouts and
// context errors are returned as-is.
func (s *Store) Read(ctx context.Context, fn func(h *Handle) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 50 * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			s.logger.Debug("retrying corpus store read", "attempt", attempt, "error", err)
		}
		err = s.pool.WithHandle(ctx, fn)
		if err == nil || !isTransient(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// isTransient reports connection-level failures worth retrying.
func isTransient(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ErrPoolTimeout), errors.Is(err, ErrNotFound):
		return false
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, sql.ErrConnDone):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// migrate applies the embedded migrations for the store's dialect that have
// not been recorded in schema_version yet.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	dir := "migrations/" + string(s.dialect)
	entries, err := migrationsFS.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRowContext(ctx, s.dialect.Rebind("SELECT COUNT(*) FROM schema_version WHERE version = ?"), version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.ExecContext(ctx, s.dialect.Rebind("INSERT INTO schema_version (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
		s.logger.Debug("applied migration", "version", version, "dialect", s.dialect)
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}
