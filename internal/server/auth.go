package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"taskroute/internal/archive"
	"taskroute/internal/identity"
)

type AuthConfig struct {
	JWTSecret string
	// AllowUserHeader trusts X-User-Id without credentials. Local use only.
	AllowUserHeader bool
	Logger          *log.Logger
}

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Source string
	Token  string
}

type principalKey struct{}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

func userIDFromContext(ctx context.Context) (string, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.UserID != "" {
		return p.UserID, nil
	}
	return "", newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

func publicPaths(basePath string) []string {
	return []string{
		path.Join(basePath, "health"),
		path.Join(basePath, "auth", "login"),
		path.Join(basePath, "auth", "register"),
		path.Join(basePath, "openapi.json"),
	}
}

func newAuthMiddleware(basePath string, cfg AuthConfig, resolver identity.Resolver) func(http.Handler) http.Handler {
	public := map[string]bool{}
	for _, p := range publicPaths(basePath) {
		public[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if basePath != "" && !strings.HasPrefix(req.URL.Path, basePath) {
				next.ServeHTTP(w, req)
				return
			}
			if public[req.URL.Path] {
				next.ServeHTTP(w, req)
				return
			}

			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			headerUser := strings.TrimSpace(req.Header.Get("X-User-Id"))

			if authz != "" {
				token, ok := bearerToken(authz)
				if !ok {
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
					return
				}
				userID, err := resolver.Resolve(req.Context(), token)
				if err != nil {
					if !errors.Is(err, identity.ErrSessionInvalid) && !errors.Is(err, identity.ErrSessionExpired) {
						respondStatusError(w, handleError(err))
						return
					}
					respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", err.Error(), nil))
					return
				}
				ctx := withPrincipal(req.Context(), Principal{UserID: userID, Source: "bearer", Token: token})
				next.ServeHTTP(w, req.WithContext(ctx))
				return
			}

			if headerUser != "" && cfg.AllowUserHeader {
				cfg.logger().Printf("WARNING: trusting X-User-Id header without credentials (user_id=%s)", headerUser)
				ctx := withPrincipal(req.Context(), Principal{UserID: headerUser, Source: "header"})
				next.ServeHTTP(w, req.WithContext(ctx))
				return
			}

			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
		})
	}
}

// provenanceMiddleware records the caller's address and agent on the
// request context so activity entries carry them.
func provenanceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ip := req.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := archive.WithProvenance(req.Context(), archive.Provenance{
			IPAddress: ip,
			UserAgent: req.UserAgent(),
		})
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}

func respondStatusError(w http.ResponseWriter, err huma.StatusError) {
	status := http.StatusInternalServerError
	if e, ok := err.(interface{ GetStatus() int }); ok {
		status = e.GetStatus()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(err)
}
