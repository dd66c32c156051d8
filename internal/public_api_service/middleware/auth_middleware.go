package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	AuthenticatedUserContextKey = ContextKey("authenticatedUser")
)

// AuthenticatedUser holds the identity extracted from a bearer token.
// It exists for rate-limit key namespacing; authorization itself is owned
// by the surrounding application, not this gateway.
type AuthenticatedUser struct {
	ID        string
	AcademyID string
}

// GetAuthenticatedUser extracts the identity from a request context.
func GetAuthenticatedUser(ctx context.Context) (AuthenticatedUser, bool) {
	user, ok := ctx.Value(AuthenticatedUserContextKey).(AuthenticatedUser)
	return user, ok
}

// IdentityMiddleware parses an HS256 bearer token into an
// AuthenticatedUser on the request context. It is best-effort: a missing
// or invalid token leaves the request anonymous (rate-limited by IP)
// instead of rejecting it, since this gateway does not own authentication.
func IdentityMiddleware(accessSecret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				next.ServeHTTP(w, r)
				return
			}

			parsed, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(accessSecret), nil
			})
			if err != nil || !parsed.Valid {
				logger.DebugContext(r.Context(), "Ignoring unparseable bearer token", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user := AuthenticatedUser{}
			if sub, err := claims.GetSubject(); err == nil {
				user.ID = sub
			}
			if academyID, ok := claims["academy_id"].(string); ok {
				user.AcademyID = academyID
			}
			if user.ID == "" && user.AcademyID == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), AuthenticatedUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
