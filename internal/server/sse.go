package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pairpad/pairpad/internal/event"
	"github.com/pairpad/pairpad/internal/logging"
)

// SSEHeartbeatInterval is the interval for SSE heartbeats.
const SSEHeartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE event and flushes it.
func (s *sseWriter) writeEvent(eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, jsonData); err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall back
	// to the plain flusher if it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}

	return nil
}

func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// collabEvents handles GET /event: a server-sent-events feed of the
// collaboration event bus for observers (dashboards, bots, tooling).
// Clients on this feed watch room activity; they do not participate in
// it, so delivery here is as best-effort as the websocket fan-out.
func (s *Server) collabEvents(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId") // optional filter

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// Small buffer keeps latency low; a full channel drops the event.
	events := make(chan event.Event, 10)

	unsub := s.bus.SubscribeAll(func(e event.Event) {
		if roomID != "" && !eventBelongsToRoom(e, roomID) {
			return
		}
		select {
		case events <- e:
		default:
			logging.Warn().
				Str("eventType", string(e.Type)).
				Msg("SSE event dropped: channel full")
		}
	})
	defer unsub()

	ticker := time.NewTicker(SSEHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.writeEvent("message", e); err != nil {
				return
			}
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

// eventBelongsToRoom checks whether an event concerns the given room.
func eventBelongsToRoom(e event.Event, roomID string) bool {
	switch data := e.Data.(type) {
	case event.RoomCreatedData:
		return data.RoomID == roomID
	case event.RoomDestroyedData:
		return data.RoomID == roomID
	case event.UserJoinedData:
		return data.RoomID == roomID
	case event.UserLeftData:
		return data.RoomID == roomID
	case event.FileChangedData:
		return data.RoomID == roomID
	case event.ChatPostedData:
		return data.RoomID == roomID
	}
	return false
}
