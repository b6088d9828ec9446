package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// KeyInfo describes a config key for display purposes.
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	Secret bool
}

// ShowAll returns every config key with its current value. Secret values
// are masked; a DSN keeps everything but its password.
func ShowAll(cfg Config) []KeyInfo {
	result := make([]KeyInfo, 0, len(specs))
	for _, s := range specs {
		info := KeyInfo{Key: s.key, EnvVar: s.env, Secret: s.secret}
		switch v := s.extract(cfg).(type) {
		case []string:
			if s.secret {
				info.Value = fmt.Sprintf("(%d set)", len(v))
			} else {
				info.Value = strings.Join(v, ",")
			}
		case string:
			switch {
			case s.secret && v != "":
				info.Value = "****"
			case s.redact:
				info.Value = redactDSN(v)
			default:
				info.Value = v
			}
		default:
			info.Value = fmt.Sprintf("%v", v)
		}
		result = append(result, info)
	}
	return result
}

func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		if strings.Contains(dsn, "password=") {
			return "****"
		}
		return dsn
	}
	return u.Redacted()
}

// SetKey writes a config key to the config file.
func SetKey(key, value string) error {
	b, err := openFileBackend(configFilePath())
	if err != nil {
		return err
	}

	for _, s := range specs {
		if s.key != key {
			continue
		}
		if s.secret {
			return fmt.Errorf("cannot set secret %q via config; use environment variable %s", key, s.env)
		}
		if _, err := s.parse(value); err != nil {
			return fmt.Errorf("invalid value for %s: %w", key, err)
		}
		if s.typ == kInt {
			i, _ := strconv.Atoi(strings.TrimSpace(value))
			return b.SetInt(key, i)
		}
		return b.SetString(key, value)
	}

	return fmt.Errorf("unknown config key: %q", key)
}

// ValidKeys returns the list of config keys that may be set in the file.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
