package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/artribune/internal/auth"
	"github.com/kalambet/artribune/internal/query"
)

// Authorizer checks a bearer token. *auth.Gate implements it.
type Authorizer interface {
	Authorize(ctx context.Context, token string) (auth.Identity, error)
}

// RequireAPIKey rejects requests without a valid bearer key. Every
// rejection gets the same 401 body.
func RequireAPIKey(gate Authorizer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := gate.Authorize(r.Context(), bearerToken(r))
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := auth.WithIdentity(r.Context(), id)
			logger := query.LoggerFrom(ctx, slog.Default()).With("key_id", id.KeyID)
			next.ServeHTTP(w, r.WithContext(query.WithLogger(ctx, logger)))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return h[len(prefix):]
}
