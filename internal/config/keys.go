package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kFloat
	kDuration
	kList
)

type keySpec struct {
	key string
	typ keyType
	env string
	// legacy is an environment variable name kept from earlier deployments;
	// env wins when both are set.
	legacy string
	// secret keys are read from the environment only; secret and redact
	// keys are masked by ShowAll.
	secret  bool
	redact  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "ARTRIBUNE_SERVER_HOST", legacy: "SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "ARTRIBUNE_SERVER_PORT", legacy: "SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.request_timeout", typ: kDuration, env: "ARTRIBUNE_SERVER_REQUEST_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Server.RequestTimeout = v.(Duration) },
		extract: func(cfg Config) any { return cfg.Server.RequestTimeout },
	},
	{
		key: "log.level", typ: kString, env: "ARTRIBUNE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "ARTRIBUNE_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "storage.driver", typ: kString, env: "ARTRIBUNE_STORAGE_DRIVER",
		apply:   func(cfg *Config, v any) { cfg.Storage.Driver = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Storage.Driver },
	},
	{
		key: "storage.dsn", typ: kString, env: "ARTRIBUNE_STORAGE_DSN",
		redact:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.DSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DSN },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ARTRIBUNE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.pool_size", typ: kInt, env: "ARTRIBUNE_STORAGE_POOL_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Storage.PoolSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.PoolSize },
	},
	{
		key: "storage.acquire_timeout", typ: kDuration, env: "ARTRIBUNE_STORAGE_ACQUIRE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Storage.AcquireTimeout = v.(Duration) },
		extract: func(cfg Config) any { return cfg.Storage.AcquireTimeout },
	},
	{
		key: "storage.retry_attempts", typ: kInt, env: "ARTRIBUNE_STORAGE_RETRY_ATTEMPTS",
		apply:   func(cfg *Config, v any) { cfg.Storage.RetryAttempts = v.(int) },
		extract: func(cfg Config) any { return cfg.Storage.RetryAttempts },
	},
	{
		key: "vector.backend", typ: kString, env: "ARTRIBUNE_VECTOR_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Vector.Backend = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Vector.Backend },
	},
	{
		key: "vector.dimensions", typ: kInt, env: "ARTRIBUNE_VECTOR_DIMENSIONS",
		apply:   func(cfg *Config, v any) { cfg.Vector.Dimensions = v.(int) },
		extract: func(cfg Config) any { return cfg.Vector.Dimensions },
	},
	{
		key: "embedding.base_url", typ: kString, env: "ARTRIBUNE_EMBEDDING_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.BaseURL },
	},
	{
		key: "embedding.model", typ: kString, env: "ARTRIBUNE_EMBEDDING_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Embedding.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Embedding.Model },
	},
	{
		key: "embedding.rate_per_second", typ: kFloat, env: "ARTRIBUNE_EMBEDDING_RATE_PER_SECOND",
		apply:   func(cfg *Config, v any) { cfg.Embedding.RatePerSecond = v.(float64) },
		extract: func(cfg Config) any { return cfg.Embedding.RatePerSecond },
	},
	{
		key: "search.default_limit", typ: kInt, env: "ARTRIBUNE_SEARCH_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.DefaultLimit },
	},
	{
		key: "search.max_limit", typ: kInt, env: "ARTRIBUNE_SEARCH_MAX_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Search.MaxLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.MaxLimit },
	},
	{
		key: "search.weight_lexical", typ: kFloat, env: "ARTRIBUNE_SEARCH_WEIGHT_LEXICAL",
		apply:   func(cfg *Config, v any) { cfg.Search.WeightLexical = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.WeightLexical },
	},
	{
		key: "search.weight_semantic", typ: kFloat, env: "ARTRIBUNE_SEARCH_WEIGHT_SEMANTIC",
		apply:   func(cfg *Config, v any) { cfg.Search.WeightSemantic = v.(float64) },
		extract: func(cfg Config) any { return cfg.Search.WeightSemantic },
	},
	{
		key: "search.subsearch_timeout", typ: kDuration, env: "ARTRIBUNE_SEARCH_SUBSEARCH_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Search.SubsearchTimeout = v.(Duration) },
		extract: func(cfg Config) any { return cfg.Search.SubsearchTimeout },
	},
	{
		key: "search.vector_candidates", typ: kInt, env: "ARTRIBUNE_SEARCH_VECTOR_CANDIDATES",
		apply:   func(cfg *Config, v any) { cfg.Search.VectorCandidates = v.(int) },
		extract: func(cfg Config) any { return cfg.Search.VectorCandidates },
	},
	{
		key: "graph.category_cap", typ: kInt, env: "ARTRIBUNE_GRAPH_CATEGORY_CAP",
		apply:   func(cfg *Config, v any) { cfg.Graph.CategoryCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Graph.CategoryCap },
	},
	{
		key: "graph.default_limit", typ: kInt, env: "ARTRIBUNE_GRAPH_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Graph.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Graph.DefaultLimit },
	},
	{
		key: "auth.api_keys", typ: kList, env: "MCP_API_KEYS",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.APIKeys = v.([]string) },
		extract: func(cfg Config) any { return cfg.Auth.APIKeys },
	},
}

// parse converts raw text to the key's type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kString:
		return raw, nil
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kFloat:
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case kDuration:
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		return Duration(d), err
	case kList:
		return splitList(raw), nil
	default:
		return nil, fmt.Errorf("unknown key type %d", s.typ)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// applyBackend copies file values into cfg. Secrets are read from the
// environment only.
func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		default:
			raw, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if !ok || raw == "" {
				continue
			}
			v, err := s.parse(raw)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			s.apply(cfg, v)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name, raw := s.env, os.Getenv(s.env)
		if raw == "" && s.legacy != "" {
			name, raw = s.legacy, os.Getenv(s.legacy)
		}
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", name, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
