package api

import (
	"net/http"
	"strings"
	"time"

	"labportal/pkg/config"
	"labportal/pkg/token"
)

// ActorAuth resolves the caller from a bearer token.
//
// Expected header:
// - Authorization: Bearer <JWT> with the user id in `sub`
//
// Outside prod, a missing or unusable token falls back to the X-User-ID header so
// local tools and tests can act as any seeded user.
func ActorAuth(cfg config.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				raw := strings.TrimSpace(authz[7:])
				v, err := token.Verify(raw, cfg.Auth.Issuer, cfg.Auth.JWTSecret, time.Now())
				if err == nil {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), &Actor{UserID: v.UserID, Role: v.Role})))
					return
				}
				if cfg.IsProd() {
					WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
					return
				}
			}

			// Dev fallback
			if !cfg.IsProd() {
				if id := strings.TrimSpace(r.Header.Get("X-User-ID")); id != "" {
					next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), &Actor{UserID: id})))
					return
				}
			}

			WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
		})
	}
}
