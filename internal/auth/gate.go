// Package auth validates bearer API keys against the configured key set.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"regexp"
	"strings"
)

// ErrUnauthorized is returned for a missing, malformed or unknown key. The
// three cases are indistinguishable to the caller.
var ErrUnauthorized = errors.New("unauthorized")

// keyPattern is the shape of every issued API key.
var keyPattern = regexp.MustCompile(`^artr-[A-Za-z0-9]{24}$`)

// ValidFormat reports whether key has the shape of an issued API key.
func ValidFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// Identity is the authenticated caller.
type Identity struct {
	// KeyID is a non-secret label for the key: its prefix and last four characters.
	KeyID string
}

// Reason classifies a rejected token for logging.
type Reason string

const (
	ReasonMissing   Reason = "missing"
	ReasonMalformed Reason = "malformed"
	ReasonUnknown   Reason = "unknown"
)

// Gate holds the immutable key set loaded at startup. It is safe for
// concurrent use without locking.
type Gate struct {
	keys   [][]byte
	logger *slog.Logger
}

// NewGate builds a gate from the configured keys. Keys that are not
// well-formed are dropped with a warning; duplicates are collapsed.
func NewGate(keys []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(keys))
	g := &Gate{logger: logger}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if !ValidFormat(k) {
			logger.Warn("ignoring malformed API key", "fingerprint", Fingerprint(k))
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		g.keys = append(g.keys, []byte(k))
	}
	if len(g.keys) == 0 {
		logger.Warn("no valid API keys configured; every protected request will be rejected")
	}
	return g
}

// Size reports the number of accepted keys.
func (g *Gate) Size() int {
	return len(g.keys)
}

// Authorize checks token against the key set. Every configured key is
// compared in constant time so the response time does not reveal which
// key, if any, shares a prefix with the token.
func (g *Gate) Authorize(ctx context.Context, token string) (Identity, error) {
	reason, ok := g.check(token)
	if !ok {
		level := slog.LevelWarn
		if reason == ReasonMissing {
			level = slog.LevelDebug
		}
		g.logger.Log(ctx, level, "rejected API key", "reason", reason, "fingerprint", Fingerprint(token))
		return Identity{}, ErrUnauthorized
	}
	return Identity{KeyID: keyID(token)}, nil
}

func (g *Gate) check(token string) (Reason, bool) {
	if token == "" {
		return ReasonMissing, false
	}
	if !ValidFormat(token) {
		return ReasonMalformed, false
	}
	match := 0
	t := []byte(token)
	for _, k := range g.keys {
		match |= subtle.ConstantTimeCompare(t, k)
	}
	if match != 1 {
		return ReasonUnknown, false
	}
	return "", true
}

// Fingerprint returns a short non-reversible label for logging a token.
func Fingerprint(token string) string {
	if token == "" {
		return "-"
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:4])
}

func keyID(key string) string {
	return "artr-…" + key[len(key)-4:]
}

type identityKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by WithIdentity.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
