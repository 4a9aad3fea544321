package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/avasile/uttt-server/pkg/server"
)

// handleWebSocket upgrades an authenticated request to a websocket and
// registers the connection with the hub.
func (app *application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     app.checkOrigin,
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := server.NewConnection(ws, app.Hub, requestUserID(r), app.Logger)
	app.Hub.Register(conn)

	app.Logger.Info("WebSocket connection established",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("user_id", conn.UserID),
	)

	// Start connection read/write goroutines
	go conn.WritePump()
	go conn.ReadPump()
}

func (app *application) checkOrigin(r *http.Request) bool {
	if len(app.Config.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range app.Config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
