package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ConfigBackend abstracts persistent config storage. Keys are dotted paths
// such as "search.max_limit".
type ConfigBackend interface {
	GetString(key string) (val string, ok bool, err error)
	GetInt(key string) (val int, ok bool, err error)
	SetString(key, val string) error
	SetInt(key string, val int) error
	Delete(key string) error
}

func configFilePath() string {
	if p := os.Getenv("ARTRIBUNE_CONFIG"); p != "" {
		return p
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "artribune", "config.toml")
}

// fileBackend stores config as a TOML document with one table per section.
type fileBackend struct {
	path string
	data map[string]any
}

// openFileBackend reads path. A missing file yields an empty backend.
func openFileBackend(path string) (*fileBackend, error) {
	b := &fileBackend{path: path, data: make(map[string]any)}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(raw, &b.data); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return b, nil
}

func (b *fileBackend) save() error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(b.data)
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, data, 0o600)
}

// lookup walks the dotted key through nested tables.
func (b *fileBackend) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = b.data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func (b *fileBackend) set(key string, val any) {
	parts := strings.Split(key, ".")
	m := b.data
	for _, p := range parts[:len(parts)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = val
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case []any:
		items := make([]string, len(val))
		for i, it := range val {
			items[i] = fmt.Sprint(it)
		}
		return strings.Join(items, ","), true, nil
	case map[string]any:
		return "", true, fmt.Errorf("%s is a table, not a value", key)
	default:
		return fmt.Sprint(val), true, nil
	}
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %d for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val != math.Trunc(val) || val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type %T for %s", v, key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.set(key, val)
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.set(key, int64(val))
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	parts := strings.Split(key, ".")
	parent := b.data
	if len(parts) > 1 {
		v, ok := b.lookup(strings.Join(parts[:len(parts)-1], "."))
		if !ok {
			return nil
		}
		if parent, ok = v.(map[string]any); !ok {
			return nil
		}
	}
	delete(parent, parts[len(parts)-1])
	return b.save()
}
