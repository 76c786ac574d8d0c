package collab

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pairpad/pairpad/internal/event"
	"github.com/pairpad/pairpad/internal/logging"
)

// roomStripes is the number of per-room serialization locks. Rooms hash
// onto a stripe, so two events on the same room always serialize while
// events on different rooms almost always run in parallel.
const roomStripes = 64

// Router validates inbound protocol events, applies them to the
// directory, and fans outbound events out to room members. It drives the
// whole connection lifecycle: HandleConnect, HandleMessage and
// HandleDisconnect are the only entry points the transport layer calls.
type Router struct {
	registry  *Registry
	directory *Directory
	bus       *event.Bus
	metrics   *metrics

	// stripes serialize processing per room: validation, mutation and
	// fan-out enqueueing all happen under the room's stripe, which is
	// what guarantees within-room outbound ordering.
	stripes [roomStripes]sync.Mutex

	now func() time.Time
}

// NewRouter creates a router with a fresh registry and directory. A nil
// bus gets a private one; a nil registerer keeps the metrics private.
func NewRouter(bus *event.Bus, reg prometheus.Registerer) *Router {
	if bus == nil {
		bus = event.NewBus()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return &Router{
		registry:  NewRegistry(),
		directory: NewDirectory(),
		bus:       bus,
		metrics:   newMetrics(reg),
		now:       time.Now,
	}
}

// Registry exposes the connection registry.
func (rt *Router) Registry() *Registry { return rt.registry }

// Directory exposes the room directory.
func (rt *Router) Directory() *Directory { return rt.directory }

func (rt *Router) stripeFor(roomID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &rt.stripes[h.Sum32()%roomStripes]
}

// HandleConnect registers a new transport session and greets it with its
// assigned client id.
func (rt *Router) HandleConnect(connID string, s Sender) {
	rt.registry.Register(connID, s)
	rt.metrics.activeConnections.Inc()

	rt.send(s, ConnectedMessage{Type: MsgConnected, ClientID: connID})

	logging.Debug().Str("clientID", connID).Msg("client connected")
}

// HandleMessage processes one inbound frame from a connection. Every
// failure is resolved here: bad frames get an error reply and nothing
// mutates, and a failed delivery to one recipient never affects the
// others or the handler itself.
func (rt *Router) HandleMessage(connID string, data []byte) {
	conn, ok := rt.registry.Get(connID)
	if !ok {
		// Frame from a connection that already terminated; drop it.
		return
	}

	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		rt.reject(conn.Sender, rejectMalformed, "invalid message")
		return
	}

	rt.metrics.inboundEvents.WithLabelValues(string(in.Type)).Inc()

	switch in.Type {
	case MsgJoinRoom:
		rt.handleJoin(conn, in)
	case MsgLeaveRoom:
		rt.handleLeave(conn, in)
	case MsgFileChange:
		rt.handleFileChange(conn, in)
	case MsgCursorPosition:
		rt.handleCursorPosition(conn, in)
	case MsgChatMessage:
		rt.handleChat(conn, in)
	case MsgSyncRequest:
		rt.handleSyncRequest(conn, in)
	default:
		rt.reject(conn.Sender, rejectUnknown, fmt.Sprintf("unknown event type %q", in.Type))
	}
}

// HandleDisconnect terminates a connection: it leaves every room the
// connection was a member of and announces user-left to each affected
// room. Terminated is absorbing; disconnecting an unknown id is a no-op.
func (rt *Router) HandleDisconnect(connID string) {
	conn, known := rt.registry.Get(connID)
	rooms := rt.registry.Remove(connID)
	if !known {
		return
	}
	rt.metrics.activeConnections.Dec()

	for _, roomID := range rooms {
		mu := rt.stripeFor(roomID)
		mu.Lock()
		removed, remaining, destroyed := rt.directory.Leave(roomID, connID)
		if removed {
			rt.fanout(rt.directory.Members(roomID), UserLeftMessage{
				Type:             MsgUserLeft,
				UserID:           conn.UserID,
				ClientID:         connID,
				RoomID:           roomID,
				ParticipantCount: remaining,
			})
		}
		mu.Unlock()

		if removed {
			rt.bus.Publish(event.Event{Type: event.UserLeft, Data: event.UserLeftData{
				RoomID:           roomID,
				UserID:           conn.UserID,
				ClientID:         connID,
				ParticipantCount: remaining,
			}})
		}
		if destroyed {
			rt.bus.Publish(event.Event{Type: event.RoomDestroyed, Data: event.RoomDestroyedData{RoomID: roomID}})
			logging.Info().Str("roomID", roomID).Msg("room destroyed")
		}
	}
	rt.metrics.activeRooms.Set(float64(rt.directory.RoomCount()))

	logging.Debug().Str("clientID", connID).Int("rooms", len(rooms)).Msg("client disconnected")
}

func (rt *Router) handleJoin(conn Connection, in Inbound) {
	if in.RoomID == "" || in.UserID == "" || in.UserName == "" {
		rt.reject(conn.Sender, rejectMalformed, "join-room requires roomId, userId and userName")
		return
	}

	rt.registry.AttachIdentity(conn.ID, in.UserID, in.UserName, in.RoomID)
	member := Member{ConnID: conn.ID, UserID: in.UserID, UserName: in.UserName, Sender: conn.Sender}

	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	parts, data, created := rt.directory.Join(in.RoomID, member)

	rt.send(conn.Sender, RoomStateMessage{
		Type:         MsgRoomState,
		RoomID:       in.RoomID,
		Participants: parts,
		Data:         data,
	})
	rt.fanout(rt.directory.OtherMembers(in.RoomID, conn.ID), UserJoinedMessage{
		Type:             MsgUserJoined,
		UserID:           in.UserID,
		UserName:         in.UserName,
		ClientID:         conn.ID,
		ParticipantCount: len(parts),
	})
	mu.Unlock()

	rt.metrics.activeRooms.Set(float64(rt.directory.RoomCount()))

	if created {
		rt.bus.Publish(event.Event{Type: event.RoomCreated, Data: event.RoomCreatedData{RoomID: in.RoomID}})
		logging.Info().Str("roomID", in.RoomID).Msg("room created")
	}
	rt.bus.Publish(event.Event{Type: event.UserJoined, Data: event.UserJoinedData{
		RoomID:           in.RoomID,
		UserID:           in.UserID,
		UserName:         in.UserName,
		ClientID:         conn.ID,
		ParticipantCount: len(parts),
	}})

	logging.Debug().
		Str("roomID", in.RoomID).
		Str("userID", in.UserID).
		Str("clientID", conn.ID).
		Msg("user joined room")
}

func (rt *Router) handleLeave(conn Connection, in Inbound) {
	if in.RoomID == "" {
		rt.reject(conn.Sender, rejectMalformed, "leave-room requires roomId")
		return
	}

	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	if !rt.directory.IsMember(in.RoomID, conn.ID) {
		mu.Unlock()
		rt.reject(conn.Sender, rejectNotMember, fmt.Sprintf("not a member of room %s", in.RoomID))
		return
	}
	_, remaining, destroyed := rt.directory.Leave(in.RoomID, conn.ID)
	rt.registry.DetachRoom(conn.ID, in.RoomID)

	rt.fanout(rt.directory.Members(in.RoomID), UserLeftMessage{
		Type:             MsgUserLeft,
		UserID:           conn.UserID,
		ClientID:         conn.ID,
		RoomID:           in.RoomID,
		ParticipantCount: remaining,
	})
	mu.Unlock()

	rt.metrics.activeRooms.Set(float64(rt.directory.RoomCount()))

	rt.bus.Publish(event.Event{Type: event.UserLeft, Data: event.UserLeftData{
		RoomID:           in.RoomID,
		UserID:           conn.UserID,
		ClientID:         conn.ID,
		ParticipantCount: remaining,
	}})
	if destroyed {
		rt.bus.Publish(event.Event{Type: event.RoomDestroyed, Data: event.RoomDestroyedData{RoomID: in.RoomID}})
		logging.Info().Str("roomID", in.RoomID).Msg("room destroyed")
	}
}

func (rt *Router) handleFileChange(conn Connection, in Inbound) {
	if in.RoomID == "" || in.UserID == "" || in.FilePath == "" {
		rt.reject(conn.Sender, rejectMalformed, "file-change requires roomId, userId and filePath")
		return
	}

	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	if !rt.directory.IsMember(in.RoomID, conn.ID) {
		mu.Unlock()
		rt.reject(conn.Sender, rejectNotMember, fmt.Sprintf("not a member of room %s", in.RoomID))
		return
	}
	state, _ := rt.directory.ApplyFileChange(in.RoomID, in.FilePath, in.Content, in.UserID)

	// Echo-suppressed: the author already has this content.
	rt.fanout(rt.directory.OtherMembers(in.RoomID, conn.ID), FileChangeMessage{
		Type:           MsgFileChange,
		UserID:         in.UserID,
		FilePath:       in.FilePath,
		Content:        in.Content,
		CursorPosition: in.CursorPosition,
		Selection:      in.Selection,
		Timestamp:      state.LastModifiedAt,
	})
	mu.Unlock()

	rt.bus.Publish(event.Event{Type: event.FileChanged, Data: event.FileChangedData{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		FilePath: in.FilePath,
	}})
}

func (rt *Router) handleCursorPosition(conn Connection, in Inbound) {
	if in.RoomID == "" || in.UserID == "" || in.FilePath == "" || len(in.Position) == 0 {
		rt.reject(conn.Sender, rejectMalformed, "cursor-position requires roomId, userId, filePath and position")
		return
	}

	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	if !rt.directory.IsMember(in.RoomID, conn.ID) {
		mu.Unlock()
		rt.reject(conn.Sender, rejectNotMember, fmt.Sprintf("not a member of room %s", in.RoomID))
		return
	}
	// Ephemeral: relayed, never stored.
	rt.fanout(rt.directory.OtherMembers(in.RoomID, conn.ID), CursorPositionMessage{
		Type:      MsgCursorPosition,
		UserID:    in.UserID,
		FilePath:  in.FilePath,
		Position:  in.Position,
		Timestamp: rt.now().UnixMilli(),
	})
	mu.Unlock()
}

func (rt *Router) handleChat(conn Connection, in Inbound) {
	if in.RoomID == "" || in.UserID == "" || in.Message == "" {
		rt.reject(conn.Sender, rejectMalformed, "chat-message requires roomId, userId and message")
		return
	}

	userName := in.UserName
	if userName == "" {
		userName = conn.UserName
	}

	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	if !rt.directory.IsMember(in.RoomID, conn.ID) {
		mu.Unlock()
		rt.reject(conn.Sender, rejectNotMember, fmt.Sprintf("not a member of room %s", in.RoomID))
		return
	}
	// Chat goes to everyone, sender included.
	rt.fanout(rt.directory.Members(in.RoomID), ChatMessage{
		Type:      MsgChatMessage,
		UserID:    in.UserID,
		UserName:  userName,
		Message:   in.Message,
		Timestamp: rt.now().UnixMilli(),
	})
	mu.Unlock()

	rt.bus.Publish(event.Event{Type: event.ChatPosted, Data: event.ChatPostedData{
		RoomID:   in.RoomID,
		UserID:   in.UserID,
		UserName: userName,
		Message:  in.Message,
	}})
}

func (rt *Router) handleSyncRequest(conn Connection, in Inbound) {
	if in.RoomID == "" {
		rt.reject(conn.Sender, rejectMalformed, "sync-request requires roomId")
		return
	}

	// No membership precondition: an unknown room answers with an empty
	// snapshot rather than an error.
	mu := rt.stripeFor(in.RoomID)
	mu.Lock()
	data := rt.directory.State(in.RoomID)
	rt.send(conn.Sender, SyncResponseMessage{
		Type:   MsgSyncResponse,
		RoomID: in.RoomID,
		Data:   data,
	})
	mu.Unlock()
}

// Broadcast delivers an arbitrary event to every current member of a
// room. It is the administrative injection point used by other server
// components. It returns the number of recipients the event was enqueued
// to.
func (rt *Router) Broadcast(roomID string, v any) int {
	mu := rt.stripeFor(roomID)
	mu.Lock()
	defer mu.Unlock()

	members := rt.directory.Members(roomID)
	delivered := 0
	for _, m := range members {
		if rt.trySend(m.Sender, v) {
			delivered++
		}
	}
	return delivered
}

// Participants returns the current presence list of a room. Pure query.
func (rt *Router) Participants(roomID string) []Participant {
	return rt.directory.Participants(roomID)
}

// RoomCount returns the number of active rooms. Pure query.
func (rt *Router) RoomCount() int {
	return rt.directory.RoomCount()
}

// fanout enqueues one message to each member independently. A failed
// send is logged and counted; it never aborts delivery to the rest.
func (rt *Router) fanout(members []Member, v any) {
	for _, m := range members {
		rt.trySend(m.Sender, v)
	}
}

func (rt *Router) send(s Sender, v any) {
	rt.trySend(s, v)
}

func (rt *Router) trySend(s Sender, v any) bool {
	if err := s.Send(v); err != nil {
		rt.metrics.fanoutDropped.Inc()
		logging.Warn().Err(err).Msg("dropped outbound event")
		return false
	}
	rt.metrics.fanoutSent.Inc()
	return true
}

func (rt *Router) reject(s Sender, reason, msg string) {
	rt.metrics.rejectedEvents.WithLabelValues(reason).Inc()
	rt.send(s, ErrorMessage{Type: MsgError, Message: msg})
}
