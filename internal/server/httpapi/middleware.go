package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/passwords-you-take-anywhere/server/internal/common"
	"github.com/passwords-you-take-anywhere/server/internal/server/auth"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// requireAuth resolves the caller to a user id and stores it on the request
// context. The access token may arrive as a bearer token, in the
// X-Session-Id header, or in the session_id cookie (the carriers accepted by
// the previous service). Any failure is a uniform 401 with no further detail.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			token = r.Header.Get(common.SessionHeaderName)
		}
		if token == "" {
			if c, err := r.Cookie(common.SessionCookieName); err == nil {
				token = c.Value
			}
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}

		userID, err := auth.GetUserIDFromToken(token, s.jwtSecret)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

// userIDFromContext returns the authenticated user id set by requireAuth.
func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}
