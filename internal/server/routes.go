package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	r := s.router

	// Collaboration transport (websocket)
	r.Get("/ws", s.handleWebSocket)

	// Administrative surface
	r.Route("/collab", func(r chi.Router) {
		r.Get("/rooms", s.getRoomCount)
		r.Route("/room/{roomID}", func(r chi.Router) {
			r.Get("/participants", s.getRoomParticipants)
			r.Post("/broadcast", s.broadcastRoom)
			r.Post("/assist", s.assistRoom)
		})
	})

	// Event streaming (SSE) for observers
	r.Get("/event", s.collabEvents)

	// Operational endpoints
	r.Get("/health", s.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{}))
}

// health reports liveness plus a couple of cheap gauges.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.collab.RoomCount(),
	})
}
