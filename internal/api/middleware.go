package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/Schemion/schemion-api/internal/auth"
)

type principalKey struct{}

// RequireAuth rejects requests without a valid bearer token and stores the
// token's principal in the request context.
func RequireAuth(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			principal, err := tokens.Verify(token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", "Bearer")
				http.Error(w, "invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), principalKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func principalFrom(r *http.Request) (auth.Principal, error) {
	principal, ok := r.Context().Value(principalKey{}).(auth.Principal)
	if !ok {
		return auth.Principal{}, CodedErrorf(http.StatusUnauthorized, "request is not authenticated")
	}
	return principal, nil
}
