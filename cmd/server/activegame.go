package main

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// handleActiveGame handles GET /api/games/active: resume-on-reload lookup of
// the caller's current session id, if any.
func (app *application) handleActiveGame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var sessionID *string
	if id := app.Registry.ActiveSessionID(requestUserID(r)); id != "" {
		sessionID = &id
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]*string{"session_id": sessionID}); err != nil {
		app.Logger.Error("failed to write active game response", zap.Error(err))
	}
}
