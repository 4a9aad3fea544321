package main

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const userIDKey contextKey = "user_id"

// authenticate verifies the request's credential and attaches the resolved
// user id to the request context. Failed verification refuses the request
// before any event is processed.
func (app *application) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := extractCredential(r)

		userID, err := app.Auth.Verify(credential)
		if err != nil {
			app.Logger.Warn(
				"Authentication failed",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Unauthorized: invalid credential", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// extractCredential accepts the token as a bearer header, a custom header or
// a query parameter; browsers cannot set headers on websocket upgrades.
func extractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if h := r.Header.Get("X-Auth-Token"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// requestUserID returns the verified user id stashed by authenticate.
func requestUserID(r *http.Request) string {
	userID, _ := r.Context().Value(userIDKey).(string)
	return userID
}
