package middleware

import (
	"net/http"
	"strings"
)

// Auth checks for a valid bearer token. An empty configured token disables
// authentication.
func Auth(next http.HandlerFunc, authToken string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if authToken == "" {
			next(w, r)
			return
		}

		token := r.Header.Get("Authorization")
		if token == "" {
			http.Error(w, "Unauthorized - No token provided", http.StatusUnauthorized)
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		if token != authToken {
			http.Error(w, "Unauthorized - Invalid token", http.StatusUnauthorized)
			return
		}

		next(w, r)
	}
}
