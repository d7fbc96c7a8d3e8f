package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"notes-api/backend/config"
	"notes-api/backend/session"
	"notes-api/backend/token"
)

type contextKey string

const (
	userIDKey    contextKey = "user_id"
	userEmailKey contextKey = "user_email"
)

// UserID returns the identity resolved by RequireAuth, or 0 outside of it.
// Handlers must read identity from here, never from client-supplied input.
func UserID(r *http.Request) uint {
	id, _ := r.Context().Value(userIDKey).(uint)
	return id
}

// UserEmail returns the email resolved by RequireAuth.
func UserEmail(r *http.Request) string {
	email, _ := r.Context().Value(userEmailKey).(string)
	return email
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// RequireAuth gates protected routes: a request proceeds only with a valid
// session credential, whose identity is attached to the request context.
// Which transport carries the credential is fixed by configuration.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			userID uint
			email  string
		)

		if config.C.Session.Transport == "cookie" {
			if !session.HasCookie(r) {
				unauthorized(w, "Access token required")
				return
			}
			id, em, ok := session.Identity(r)
			if !ok {
				unauthorized(w, "Invalid or expired token")
				return
			}
			userID, email = id, em
		} else {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				unauthorized(w, "Access token required")
				return
			}
			claims, err := token.Parse(strings.TrimPrefix(header, "Bearer "), []byte(config.C.Session.Secret))
			if err != nil {
				unauthorized(w, "Invalid or expired token")
				return
			}
			userID, email = claims.UserID, claims.Email
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		ctx = context.WithValue(ctx, userEmailKey, email)
		next(w, r.WithContext(ctx))
	}
}
