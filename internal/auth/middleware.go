package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

// TokenCookie is the name of the HttpOnly cookie holding the access token.
const TokenCookie = "token"

// Identity is the authenticated caller. Handlers pass it to services
// explicitly; the zero value means "nobody".
type Identity struct {
	UserID string
}

// IsZero reports whether the identity carries no user.
func (id Identity) IsZero() bool {
	return id.UserID == ""
}

// contextKey is unexported so no other package can read or overwrite the
// identity stored under it.
type contextKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// IdentityFromContext returns the identity stored by RequireAuth or
// OptionalAuth. ok is false on anonymous requests.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && !id.IsZero()
}

// RequireAuth rejects requests without a valid token with 401 and stores
// the caller's Identity in the context otherwise.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeUnauthorized(w)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth stores the Identity when a valid token is present but lets
// anonymous requests through unchanged.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := extractUserID(r, tokens); err == nil {
				r = r.WithContext(WithIdentity(r.Context(), Identity{UserID: userID}))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractUserID validates the bearer token, falling back to the cookie.
// API clients send the header; the browser app relies on the cookie.
func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) != "" {
			return tokens.Validate(strings.TrimSpace(token))
		}
	}

	cookie, err := r.Cookie(TokenCookie)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}

// writeUnauthorized uses the same body shape as handler errors so clients
// parse one format.
func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": "valid authentication required",
		"code":  "unauthorized",
	})
}
