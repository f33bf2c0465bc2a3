package handlers

import (
	"net/http"
	"strings"

	"github.com/linkup/backend/internal/auth"
)

// RequireIdentity guards a handler behind bearer-token authentication. The
// wrapped handler receives the resolved identity explicitly; a missing or
// invalid token answers 401 without reaching it.
func RequireIdentity(verifier TokenVerifier, next func(http.ResponseWriter, *http.Request, auth.Identity)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, err := verifier.Verify(r.Context(), bearerToken(r))
		if err != nil {
			respondJSON(r.Context(), w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
			return
		}
		next(w, r, identity)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
