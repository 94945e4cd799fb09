package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

// Auth creates authentication middleware that requires a valid JWT bearer token.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, false)
}

// OptionalAuth attaches the user ID when a bearer token is present. Requests
// without an Authorization header pass through anonymously; a header carrying
// a bad token is still rejected.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return authenticate(validator, true)
}

func authenticate(validator TokenValidator, optional bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				writeUnauthorized(w, r, "missing authorization header")
				return
			}

			tokenString, detail := bearerToken(authHeader)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}

			userID, err := validator.ValidateAccessToken(tokenString)
			if err != nil {
				switch {
				case errors.Is(err, auth.ErrAccessTokenExpired):
					writeUnauthorized(w, r, "access token has expired")
				case errors.Is(err, auth.ErrInvalidAccessToken):
					writeUnauthorized(w, r, "invalid access token")
				default:
					writeUnauthorized(w, r, "authentication failed")
				}
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// bearerToken extracts the token from an Authorization header value. A
// non-empty detail describes why the header was rejected.
func bearerToken(header string) (token, detail string) {
	const bearerPrefix = "Bearer "
	if len(header) < len(bearerPrefix) ||
		!strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}
	token = strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", "missing bearer token"
	}
	return token, ""
}

// writeUnauthorized writes a 401 Unauthorized response.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnauthorized(GetRequestID(r.Context()), detail).WithInstance(r.URL.Path).Write(w)
}

// WithUserID returns a copy of ctx carrying the authenticated user ID. The ID
// is also reported to the access log entry of the enclosing Logger, which
// only holds the outer request context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if e, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok {
		e.userID = userID
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
