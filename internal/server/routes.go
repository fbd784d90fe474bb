// Package server wires HTTP handlers into a chi router for the Bridgr
// realtime service.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures and returns the application router with request
// logging and panic recovery applied to every route.
func SetupRoutes() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	router.Get("/", HealthHandler)
	router.Get("/ws", WebSocketHandler)
	router.Get("/test", TestPageHandler)

	return router
}
