package middleware

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/storeimport/internal/core"
)

type actorKey struct{}

// Anonymous is the actor recorded when authentication is disabled.
var Anonymous = core.Actor{ID: "anonymous"}

// ActorFromContext returns the actor resolved by APIKeyAuth, or Anonymous.
func ActorFromContext(ctx context.Context) core.Actor {
	if a, ok := ctx.Value(actorKey{}).(core.Actor); ok {
		return a
	}
	return Anonymous
}

// WithActor returns ctx carrying a.
func WithActor(ctx context.Context, a core.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// APIKeyAuth returns middleware that validates the X-API-Key header against
// keys, a key -> name map, and stores the key's name as the request actor.
// If required is false, requests without a key pass through as Anonymous;
// a key that is sent must still be valid.
// If required is true but no keys are configured, all requests are rejected.
func APIKeyAuth(keys map[string]string, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get API key from header
			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				if !required {
					next.ServeHTTP(w, r)
					return
				}
				slog.Warn("auth: missing API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusUnauthorized, "missing API key", "AUTH_MISSING_KEY")
				return
			}

			name, ok := matchAPIKey(apiKey, keys)
			if !ok {
				slog.Warn("auth: invalid API key",
					"path", r.URL.Path,
					"method", r.Method,
					"remote_addr", r.RemoteAddr,
				)
				writeAuthError(w, http.StatusForbidden, "invalid API key", "AUTH_INVALID_KEY")
				return
			}

			actor := core.Actor{ID: name, Name: name}
			recordActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// matchAPIKey returns the name of the key matching key.
// Uses constant-time comparison and checks ALL keys to prevent timing attacks.
func matchAPIKey(key string, keys map[string]string) (string, bool) {
	var name string
	found := 0
	for valid, n := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			name = n
			found = 1
		}
	}
	return name, found == 1
}

func writeAuthError(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `","code":"` + code + `"}`))
}
