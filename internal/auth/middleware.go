package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"sourcehub/internal/observability"
)

type principalContextKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

var errNoBearerToken = errors.New("no bearer token")

// Middleware guards routes with bearer-token verification and role
// membership checks.
type Middleware struct {
	tokens *TokenService
	logger *observability.Logger
}

func NewMiddleware(tokens *TokenService, logger *observability.Logger) *Middleware {
	return &Middleware{tokens: tokens, logger: logger}
}

// Require verifies the bearer token and, when roles is non-empty,
// enforces membership. Missing, malformed and failed-verification tokens
// all render the same 401 body; a valid token with a role outside the set
// renders 403.
func (m *Middleware) Require(roles ...Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := m.verifyRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			principal := claims.Principal()
			if len(roles) > 0 && !slices.Contains(roles, principal.Role) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// Optional attaches a principal when a valid bearer token is present and
// otherwise passes the request through untouched. Downstream handlers see
// only the absence of a principal; the skip reason goes to the debug log.
func (m *Middleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := m.verifyRequest(r)
		if err != nil {
			if !errors.Is(err, errNoBearerToken) {
				m.logger.Debug("optional_auth_skipped", map[string]any{
					"path":   r.URL.Path,
					"reason": err.Error(),
				})
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), claims.Principal())))
	})
}

func (m *Middleware) verifyRequest(r *http.Request) (*Claims, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return nil, errNoBearerToken
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errNoBearerToken
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		return nil, errNoBearerToken
	}

	return m.tokens.Verify(tokenStr)
}
