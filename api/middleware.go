package api

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const callerKey ctxKey = iota

// RequireAuth verifies the bearer token and stores the caller's user id in
// the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "JWT token is missing", "token_missing", nil)
			return
		}

		claims, err := h.Tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "JWT token is invalid", "token_invalid", nil)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerID returns the authenticated user id; empty outside RequireAuth.
func callerID(r *http.Request) string {
	id, _ := r.Context().Value(callerKey).(string)
	return id
}
