package main

import (
	"net/http"

	"github.com/rs/cors"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", app.handleHealth)
	mux.HandleFunc("/api/games/active", app.authenticate(app.handleActiveGame))
	mux.HandleFunc("/ws", app.authenticate(app.handleWebSocket))

	origins := app.Config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "X-Auth-Token", "Content-Type"},
		AllowCredentials: true,
	})

	return c.Handler(mux)
}
