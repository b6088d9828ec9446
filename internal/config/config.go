package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Vector    VectorConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	Graph     GraphConfig
	Auth      AuthConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type StorageConfig struct {
	Driver         string
	DSN            string
	DataDir        string
	PoolSize       int
	AcquireTimeout Duration
	RetryAttempts  int
}

type VectorConfig struct {
	Backend    string
	Dimensions int
}

type EmbeddingConfig struct {
	BaseURL       string
	Model         string
	RatePerSecond float64
}

type SearchConfig struct {
	DefaultLimit     int
	MaxLimit         int
	WeightLexical    float64
	WeightSemantic   float64
	SubsearchTimeout Duration
	VectorCandidates int
}

type GraphConfig struct {
	CategoryCap  int
	DefaultLimit int
}

type AuthConfig struct {
	APIKeys []string
}

// Duration is a time.Duration read from strings such as "5s" or "250ms".
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:           "127.0.0.1",
			Port:           1789,
			RequestTimeout: Duration(30 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver:         "sqlite",
			DataDir:        defaultDataDir(),
			PoolSize:       8,
			AcquireTimeout: Duration(5 * time.Second),
			RetryAttempts:  3,
		},
		Vector: VectorConfig{
			Backend:    "sqlite",
			Dimensions: 768,
		},
		Embedding: EmbeddingConfig{
			BaseURL:       "http://localhost:11434",
			Model:         "nomic-embed-text",
			RatePerSecond: 10,
		},
		Search: SearchConfig{
			DefaultLimit:     10,
			MaxLimit:         50,
			WeightLexical:    0.5,
			WeightSemantic:   0.5,
			SubsearchTimeout: Duration(5 * time.Second),
			VectorCandidates: 50,
		},
		Graph: GraphConfig{
			CategoryCap:  25,
			DefaultLimit: 15,
		},
	}
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "artribune-data"
		}
	}
	return filepath.Join(dir, "artribune")
}

// Load reads configuration in increasing order of precedence: defaults, the
// TOML config file, then environment variables. A .env file in the working
// directory is loaded into the environment first; variables already set
// are not overwritten.
//
// The config file is $ARTRIBUNE_CONFIG when set, otherwise
// $XDG_CONFIG_HOME/artribune/config.toml.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env: %v\n", err)
	}
	return loadFromPath(configFilePath())
}

func loadFromPath(path string) (Config, error) {
	b, err := openFileBackend(path)
	if err != nil {
		return Config{}, err
	}
	return loadWith(b)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applyPostgresEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyPostgresEnv assembles a Postgres DSN from DB_HOST, DB_PORT,
// POSTGRES_USER, POSTGRES_PASSWORD and POSTGRES_DB when no DSN is
// configured and at least the database name is set.
func applyPostgresEnv(cfg *Config) {
	if cfg.Storage.DSN != "" || cfg.Storage.Driver != "postgres" {
		return
	}
	db := os.Getenv("POSTGRES_DB")
	if db == "" {
		return
	}
	host := envOr("DB_HOST", "localhost")
	port := envOr("DB_PORT", "5432")

	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=" + envOr("DB_SSLMODE", "disable"),
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		if pw, ok := os.LookupEnv("POSTGRES_PASSWORD"); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	cfg.Storage.DSN = u.String()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Server.Port > 0 && c.Server.Port < 65536, "server.port %d out of range", c.Server.Port)
	check(c.Server.RequestTimeout > 0, "server.request_timeout must be positive")

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be debug, info, warn or error", c.Log.Level))
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q must be text or json", c.Log.Format)

	switch c.Storage.Driver {
	case "sqlite":
		check(c.Storage.DSN != "" || c.Storage.DataDir != "", "storage.data_dir is required for sqlite")
	case "postgres":
		check(c.Storage.DSN != "", "storage.dsn (or POSTGRES_DB) is required for postgres")
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be postgres or sqlite", c.Storage.Driver))
	}
	check(c.Storage.PoolSize >= 1, "storage.pool_size must be at least 1, got %d", c.Storage.PoolSize)
	check(c.Storage.AcquireTimeout > 0, "storage.acquire_timeout must be positive")
	check(c.Storage.RetryAttempts >= 0, "storage.retry_attempts must not be negative")

	switch c.Vector.Backend {
	case "sqlite":
		check(c.Storage.Driver == "sqlite", "vector.backend sqlite requires storage.driver sqlite")
	case "pgvector":
		check(c.Storage.Driver == "postgres", "vector.backend pgvector requires storage.driver postgres")
	default:
		errs = append(errs, fmt.Errorf("vector.backend %q must be pgvector or sqlite", c.Vector.Backend))
	}
	check(c.Vector.Dimensions > 0, "vector.dimensions must be positive")

	check(c.Embedding.BaseURL != "", "embedding.base_url is required")
	check(c.Embedding.Model != "", "embedding.model is required")
	check(c.Embedding.RatePerSecond >= 0, "embedding.rate_per_second must not be negative")

	check(c.Search.DefaultLimit >= 1, "search.default_limit must be at least 1")
	check(c.Search.MaxLimit >= c.Search.DefaultLimit, "search.max_limit (%d) must not be below search.default_limit (%d)", c.Search.MaxLimit, c.Search.DefaultLimit)
	check(c.Search.WeightLexical >= 0 && c.Search.WeightSemantic >= 0, "search weights must not be negative")
	check(c.Search.WeightLexical+c.Search.WeightSemantic > 0, "search weights must not both be zero")
	check(c.Search.SubsearchTimeout > 0, "search.subsearch_timeout must be positive")
	check(c.Search.VectorCandidates >= 1, "search.vector_candidates must be at least 1")

	check(c.Graph.CategoryCap >= 1, "graph.category_cap must be at least 1")
	check(c.Graph.DefaultLimit >= 1, "graph.default_limit must be at least 1")

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
