package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pairpad/pairpad/internal/assist"
	"github.com/pairpad/pairpad/internal/collab"
)

// RoomCountResponse is the body of GET /collab/rooms.
type RoomCountResponse struct {
	Count int `json:"count"`
}

// BroadcastResponse is the body of POST /collab/room/{roomID}/broadcast.
type BroadcastResponse struct {
	Delivered int `json:"delivered"`
}

// AssistRequest is the body of POST /collab/room/{roomID}/assist.
type AssistRequest struct {
	Prompt string `json:"prompt"`
}

// AssistResponse is the body of the assist reply.
type AssistResponse struct {
	Reply string `json:"reply"`
}

// getRoomCount handles GET /collab/rooms.
func (s *Server) getRoomCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RoomCountResponse{Count: s.collab.RoomCount()})
}

// getRoomParticipants handles GET /collab/room/{roomID}/participants.
// An unknown room is a normal condition and yields an empty list.
func (s *Server) getRoomParticipants(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	parts := s.collab.Participants(roomID)
	if parts == nil {
		parts = []collab.Participant{}
	}
	writeJSON(w, http.StatusOK, parts)
}

// broadcastRoom handles POST /collab/room/{roomID}/broadcast. The body
// is an arbitrary JSON object relayed verbatim to every room member.
func (s *Server) broadcastRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var payload json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "body must be valid JSON")
		return
	}
	if len(payload) == 0 || payload[0] != '{' {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "body must be a JSON object")
		return
	}

	delivered := s.collab.Broadcast(roomID, payload)
	writeJSON(w, http.StatusOK, BroadcastResponse{Delivered: delivered})
}

// assistRoom handles POST /collab/room/{roomID}/assist: it asks the
// configured completion backend for a reply and posts it into the room.
func (s *Server) assistRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")

	var req AssistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "prompt required")
		return
	}

	reply, err := s.assistant.Reply(r.Context(), roomID, req.Prompt)
	if err != nil {
		if errors.Is(err, assist.ErrNoBackend) {
			writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "no completion backend configured")
			return
		}
		writeError(w, http.StatusBadGateway, ErrCodeUpstreamError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, AssistResponse{Reply: reply})
}
