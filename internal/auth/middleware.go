package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cokmall-api/internal/response"
)

type contextKey int

const identityContextKey contextKey = iota

// Middleware implements the two-stage design: Authenticate populates an
// optional identity and never rejects, RequireAuth/RequireRole decide
// whether the route demands one.
type Middleware struct {
	tokens *TokenService
	logger *zap.Logger
}

func NewMiddleware(tokens *TokenService, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// Authenticate extracts and validates a bearer token. It fails open: a
// missing, malformed, expired or wrong-type token leaves the request
// unauthenticated and lets the authorization stage produce the 401/403.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.tokens.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.Warn("bearer_token_rejected", zap.Error(err), zap.String("path", r.URL.Path))
			next.ServeHTTP(w, r)
			return
		}

		// A refresh token is not authorized for resource access.
		if claims.TokenType != TokenTypeAccess {
			m.logger.Warn("bearer_token_wrong_type",
				zap.String("type", claims.TokenType),
				zap.String("path", r.URL.Path),
			)
			next.ServeHTTP(w, r)
			return
		}

		identity := Identity{UserID: claims.UserID, Email: claims.Email, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity)))
	})
}

// RequireAuth rejects requests that reached a protected route without an
// established identity.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			response.WriteError(w, m.logger, response.Unauthorized("Authentication required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects with 401 when no identity is present and 403 when
// the identity's role does not match.
func (m *Middleware) RequireRole(role Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			response.WriteError(w, m.logger, response.Unauthorized("Authentication required"))
			return
		}
		if identity.Role != role {
			m.logger.Warn("role_denied",
				zap.String("email", identity.Email),
				zap.String("required_role", string(role)),
			)
			response.WriteError(w, m.logger, response.Forbidden())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func withIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(Identity)
	return identity, ok
}
