package middleware

import (
	"encoding/json"
	"net/http"
)

// RequireRole admits requests whose token role is one of allowed, e.g.
// domain.RoleAdmin for the reviewer routes. It must run after Auth.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	roles := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		roles[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if _, ok := roles[claims.Role]; !ok {
				writeJSONError(w, http.StatusForbidden, "role "+claims.Role+" may not access this resource")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSONError matches the {"error": ...} body the handlers produce.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
