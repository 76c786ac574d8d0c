package collab

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pairpad/pairpad/internal/event"
)

// captureSender records every frame enqueued to it.
type captureSender struct {
	mu   sync.Mutex
	msgs []any
	fail bool
}

func (s *captureSender) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send failed")
	}
	s.msgs = append(s.msgs, v)
	return nil
}

func (s *captureSender) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.msgs...)
}

func (s *captureSender) last() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

// byType returns the captured messages of one protocol type.
func (s *captureSender) byType(t MessageType) []any {
	var out []any
	for _, m := range s.all() {
		if typeOf(m) == t {
			out = append(out, m)
		}
	}
	return out
}

func typeOf(v any) MessageType {
	switch m := v.(type) {
	case ConnectedMessage:
		return m.Type
	case RoomStateMessage:
		return m.Type
	case UserJoinedMessage:
		return m.Type
	case UserLeftMessage:
		return m.Type
	case FileChangeMessage:
		return m.Type
	case CursorPositionMessage:
		return m.Type
	case ChatMessage:
		return m.Type
	case SyncResponseMessage:
		return m.Type
	case ErrorMessage:
		return m.Type
	}
	return ""
}

func frame(t *testing.T, in Inbound) []byte {
	t.Helper()
	data, err := json.Marshal(in)
	require.NoError(t, err)
	return data
}

// connect registers a connection and drops the connected greeting so
// tests only see protocol traffic.
func connect(t *testing.T, rt *Router, connID string) *captureSender {
	t.Helper()
	s := &captureSender{}
	rt.HandleConnect(connID, s)
	require.Len(t, s.byType(MsgConnected), 1)
	s.mu.Lock()
	s.msgs = nil
	s.mu.Unlock()
	return s
}

func join(t *testing.T, rt *Router, connID, roomID, userID string) {
	t.Helper()
	rt.HandleMessage(connID, frame(t, Inbound{
		Type:     MsgJoinRoom,
		RoomID:   roomID,
		UserID:   userID,
		UserName: userID,
	}))
}

func TestRouter_ConnectGreeting(t *testing.T) {
	rt := NewRouter(nil, nil)
	s := &captureSender{}
	rt.HandleConnect("c1", s)

	require.Len(t, s.all(), 1)
	msg := s.all()[0].(ConnectedMessage)
	assert.Equal(t, MsgConnected, msg.Type)
	assert.Equal(t, "c1", msg.ClientID)
}

func TestRouter_JoinRoomState(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")

	join(t, rt, "c1", "proj-1", "alice")

	states := alice.byType(MsgRoomState)
	require.Len(t, states, 1)
	state := states[0].(RoomStateMessage)
	assert.Equal(t, "proj-1", state.RoomID)
	require.Len(t, state.Participants, 1)
	assert.Equal(t, "alice", state.Participants[0].UserID)
	assert.Empty(t, state.Data.Files)
}

func TestRouter_SecondJoinNotifiesExistingMembers(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	bob := connect(t, rt, "c2")

	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	joined := alice.byType(MsgUserJoined)
	require.Len(t, joined, 1)
	msg := joined[0].(UserJoinedMessage)
	assert.Equal(t, "bob", msg.UserID)
	assert.Equal(t, "c2", msg.ClientID)
	assert.Equal(t, 2, msg.ParticipantCount)

	// Bob got the snapshot, not a user-joined about himself.
	assert.Empty(t, bob.byType(MsgUserJoined))
	state := bob.byType(MsgRoomState)[0].(RoomStateMessage)
	assert.Len(t, state.Participants, 2)
}

func TestRouter_FileChangeEchoSuppressed(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	bob := connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	rt.HandleMessage("c2", frame(t, Inbound{
		Type:     MsgFileChange,
		RoomID:   "proj-1",
		UserID:   "bob",
		FilePath: "index.js",
		Content:  "console.log(1)",
	}))

	changes := alice.byType(MsgFileChange)
	require.Len(t, changes, 1)
	change := changes[0].(FileChangeMessage)
	assert.Equal(t, "bob", change.UserID)
	assert.Equal(t, "index.js", change.FilePath)
	assert.Equal(t, "console.log(1)", change.Content)
	assert.NotZero(t, change.Timestamp)

	// The author gets no echo.
	assert.Empty(t, bob.byType(MsgFileChange))
}

func TestRouter_SyncReflectsLatestChange(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	_ = connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	rt.HandleMessage("c2", frame(t, Inbound{
		Type:     MsgFileChange,
		RoomID:   "proj-1",
		UserID:   "bob",
		FilePath: "index.js",
		Content:  "console.log(1)",
	}))
	rt.HandleMessage("c1", frame(t, Inbound{Type: MsgSyncRequest, RoomID: "proj-1"}))

	resps := alice.byType(MsgSyncResponse)
	require.Len(t, resps, 1)
	resp := resps[0].(SyncResponseMessage)
	assert.Equal(t, "console.log(1)", resp.Data.Files["index.js"].Content)
	assert.Equal(t, "bob", resp.Data.Files["index.js"].LastModifiedBy)
}

func TestRouter_SyncUnknownRoomIsEmptySnapshot(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")

	rt.HandleMessage("c1", frame(t, Inbound{Type: MsgSyncRequest, RoomID: "nowhere"}))

	resps := alice.byType(MsgSyncResponse)
	require.Len(t, resps, 1)
	assert.Empty(t, resps[0].(SyncResponseMessage).Data.Files)
	assert.Empty(t, alice.byType(MsgError))
}

func TestRouter_CursorPositionRelayedNotStored(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	_ = connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	rt.HandleMessage("c2", frame(t, Inbound{
		Type:     MsgCursorPosition,
		RoomID:   "proj-1",
		UserID:   "bob",
		FilePath: "index.js",
		Position: json.RawMessage(`{"line":3,"column":7}`),
	}))

	cursors := alice.byType(MsgCursorPosition)
	require.Len(t, cursors, 1)
	cursor := cursors[0].(CursorPositionMessage)
	assert.JSONEq(t, `{"line":3,"column":7}`, string(cursor.Position))

	// Nothing persisted.
	assert.Empty(t, rt.Directory().State("proj-1").Files)
}

func TestRouter_ChatGoesToEveryoneIncludingSender(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	bob := connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	rt.HandleMessage("c1", frame(t, Inbound{
		Type:    MsgChatMessage,
		RoomID:  "proj-1",
		UserID:  "alice",
		Message: "hello",
	}))

	for _, s := range []*captureSender{alice, bob} {
		chats := s.byType(MsgChatMessage)
		require.Len(t, chats, 1)
		chat := chats[0].(ChatMessage)
		assert.Equal(t, "hello", chat.Message)
		assert.Equal(t, "alice", chat.UserID)
		// userName omitted inbound falls back to the joined identity.
		assert.Equal(t, "alice", chat.UserName)
	}
}

func TestRouter_NonMemberRejected(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	outsider := connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")

	for _, in := range []Inbound{
		{Type: MsgLeaveRoom, RoomID: "proj-1"},
		{Type: MsgFileChange, RoomID: "proj-1", UserID: "mallory", FilePath: "a.txt", Content: "x"},
		{Type: MsgCursorPosition, RoomID: "proj-1", UserID: "mallory", FilePath: "a.txt", Position: json.RawMessage(`1`)},
		{Type: MsgChatMessage, RoomID: "proj-1", UserID: "mallory", Message: "hi"},
	} {
		outsider.mu.Lock()
		outsider.msgs = nil
		outsider.mu.Unlock()
		alice.mu.Lock()
		alice.msgs = nil
		alice.mu.Unlock()

		rt.HandleMessage("c2", frame(t, in))

		require.Len(t, outsider.all(), 1, "event %s", in.Type)
		assert.Equal(t, MsgError, typeOf(outsider.last()), "event %s", in.Type)
		assert.Empty(t, alice.all(), "no broadcast for rejected %s", in.Type)
	}

	// No state mutated.
	assert.Empty(t, rt.Directory().State("proj-1").Files)
	assert.Equal(t, 1, rt.Directory().MemberCount("proj-1"))
}

func TestRouter_MalformedPayloadRejected(t *testing.T) {
	rt := NewRouter(nil, nil)
	s := connect(t, rt, "c1")

	cases := []Inbound{
		{Type: MsgJoinRoom, UserID: "alice", UserName: "Alice"}, // no roomId
		{Type: MsgJoinRoom, RoomID: "proj-1"},                   // no identity
		{Type: MsgLeaveRoom},
		{Type: MsgFileChange, RoomID: "proj-1", UserID: "alice"}, // no filePath
		{Type: MsgChatMessage, RoomID: "proj-1", UserID: "alice"},
		{Type: MsgSyncRequest},
	}
	for _, in := range cases {
		s.mu.Lock()
		s.msgs = nil
		s.mu.Unlock()

		rt.HandleMessage("c1", frame(t, in))

		require.Len(t, s.all(), 1, "event %s", in.Type)
		assert.Equal(t, MsgError, typeOf(s.last()), "event %s", in.Type)
	}
	assert.Equal(t, 0, rt.RoomCount())
}

func TestRouter_InvalidJSONRejected(t *testing.T) {
	rt := NewRouter(nil, nil)
	s := connect(t, rt, "c1")

	rt.HandleMessage("c1", []byte("not json"))

	require.Len(t, s.all(), 1)
	assert.Equal(t, MsgError, typeOf(s.last()))
}

func TestRouter_UnknownTypeRejected(t *testing.T) {
	rt := NewRouter(nil, nil)
	s := connect(t, rt, "c1")

	rt.HandleMessage("c1", []byte(`{"type":"self-destruct"}`))

	require.Len(t, s.all(), 1)
	assert.Equal(t, MsgError, typeOf(s.last()))
}

func TestRouter_LeaveNotifiesRemaining(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	bob := connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	rt.HandleMessage("c2", frame(t, Inbound{Type: MsgLeaveRoom, RoomID: "proj-1"}))

	lefts := alice.byType(MsgUserLeft)
	require.Len(t, lefts, 1)
	left := lefts[0].(UserLeftMessage)
	assert.Equal(t, "bob", left.UserID)
	assert.Equal(t, "c2", left.ClientID)
	assert.Equal(t, "proj-1", left.RoomID)
	assert.Equal(t, 1, left.ParticipantCount)

	// The leaver hears nothing about their own departure.
	assert.Empty(t, bob.byType(MsgUserLeft))
}

func TestRouter_DisconnectLeavesEveryRoom(t *testing.T) {
	rt := NewRouter(nil, nil)
	a := connect(t, rt, "c-a")
	b := connect(t, rt, "c-b")
	_ = connect(t, rt, "c-multi")
	join(t, rt, "c-a", "room-a", "ann")
	join(t, rt, "c-b", "room-b", "ben")
	join(t, rt, "c-multi", "room-a", "mo")
	join(t, rt, "c-multi", "room-b", "mo")

	rt.HandleDisconnect("c-multi")

	for name, s := range map[string]*captureSender{"room-a": a, "room-b": b} {
		lefts := s.byType(MsgUserLeft)
		require.Len(t, lefts, 1, "exactly one user-left in %s", name)
		left := lefts[0].(UserLeftMessage)
		assert.Equal(t, "mo", left.UserID)
		assert.Equal(t, 1, left.ParticipantCount)
	}
	assert.False(t, rt.Directory().IsMember("room-a", "c-multi"))
	assert.False(t, rt.Directory().IsMember("room-b", "c-multi"))
	assert.Equal(t, 2, rt.RoomCount())
}

func TestRouter_DisconnectLastMemberDestroysRoom(t *testing.T) {
	bus := event.NewBus()
	rt := NewRouter(bus, nil)

	destroyed := make(chan event.Event, 1)
	unsub := bus.Subscribe(event.RoomDestroyed, func(e event.Event) {
		destroyed <- e
	})
	defer unsub()

	_ = connect(t, rt, "c1")
	join(t, rt, "c1", "proj-1", "alice")
	rt.HandleDisconnect("c1")

	assert.Equal(t, 0, rt.RoomCount())
	select {
	case e := <-destroyed:
		assert.Equal(t, "proj-1", e.Data.(event.RoomDestroyedData).RoomID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for room.destroyed event")
	}
}

func TestRouter_DisconnectUnknownIsNoop(t *testing.T) {
	rt := NewRouter(nil, nil)
	rt.HandleDisconnect("ghost") // must not panic or mutate anything
	assert.Equal(t, 0, rt.RoomCount())
}

func TestRouter_MessageAfterDisconnectDropped(t *testing.T) {
	rt := NewRouter(nil, nil)
	_ = connect(t, rt, "c1")
	rt.HandleDisconnect("c1")

	// Terminated is absorbing: a late frame changes nothing.
	rt.HandleMessage("c1", frame(t, Inbound{
		Type: MsgJoinRoom, RoomID: "proj-1", UserID: "alice", UserName: "Alice",
	}))
	assert.Equal(t, 0, rt.RoomCount())
}

func TestRouter_FailedSendDoesNotAbortFanout(t *testing.T) {
	rt := NewRouter(nil, nil)
	_ = connect(t, rt, "c1")
	dead := connect(t, rt, "c2")
	carol := connect(t, rt, "c3")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "dead")
	join(t, rt, "c3", "proj-1", "carol")

	dead.mu.Lock()
	dead.fail = true
	dead.mu.Unlock()

	rt.HandleMessage("c1", frame(t, Inbound{
		Type:     MsgFileChange,
		RoomID:   "proj-1",
		UserID:   "alice",
		FilePath: "a.txt",
		Content:  "x",
	}))

	// Carol still receives despite the dead recipient.
	assert.Len(t, carol.byType(MsgFileChange), 1)
	// And the handler completed: state is mutated.
	assert.Equal(t, "x", rt.Directory().State("proj-1").Files["a.txt"].Content)
}

func TestRouter_WithinRoomOrderingPreserved(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	_ = connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")

	for i := 0; i < 20; i++ {
		rt.HandleMessage("c2", frame(t, Inbound{
			Type:     MsgFileChange,
			RoomID:   "proj-1",
			UserID:   "bob",
			FilePath: "a.txt",
			Content:  fmt.Sprintf("v%d", i),
		}))
	}

	changes := alice.byType(MsgFileChange)
	require.Len(t, changes, 20)
	for i, c := range changes {
		assert.Equal(t, fmt.Sprintf("v%d", i), c.(FileChangeMessage).Content)
	}
}

func TestRouter_AdminBroadcast(t *testing.T) {
	rt := NewRouter(nil, nil)
	alice := connect(t, rt, "c1")
	bob := connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-1", "bob")
	outsider := connect(t, rt, "c3")

	payload := map[string]any{"type": "announcement", "message": "deploy at 5"}
	delivered := rt.Broadcast("proj-1", payload)

	assert.Equal(t, 2, delivered)
	assert.Len(t, alice.all(), 1)
	assert.Len(t, bob.all(), 1)
	assert.Empty(t, outsider.all())

	assert.Equal(t, 0, rt.Broadcast("no-such-room", payload))
}

func TestRouter_AdminQueries(t *testing.T) {
	rt := NewRouter(nil, nil)
	_ = connect(t, rt, "c1")
	_ = connect(t, rt, "c2")
	join(t, rt, "c1", "proj-1", "alice")
	join(t, rt, "c2", "proj-2", "bob")

	assert.Equal(t, 2, rt.RoomCount())

	parts := rt.Participants("proj-1")
	require.Len(t, parts, 1)
	assert.Equal(t, "alice", parts[0].UserID)
	assert.Empty(t, rt.Participants("no-such-room"))
}

// TestRouter_Scenario walks the end-to-end collaboration flow: join,
// presence, echo-suppressed edit, sync, disconnect.
func TestRouter_Scenario(t *testing.T) {
	rt := NewRouter(nil, nil)

	alice := connect(t, rt, "conn-a")
	join(t, rt, "conn-a", "proj-1", "alice")

	state := alice.byType(MsgRoomState)[0].(RoomStateMessage)
	require.Len(t, state.Participants, 1)
	assert.Equal(t, "alice", state.Participants[0].UserID)
	assert.Empty(t, state.Data.Files)

	bob := connect(t, rt, "conn-b")
	join(t, rt, "conn-b", "proj-1", "bob")

	joined := alice.byType(MsgUserJoined)[0].(UserJoinedMessage)
	assert.Equal(t, "bob", joined.UserID)
	assert.Equal(t, 2, joined.ParticipantCount)

	rt.HandleMessage("conn-b", frame(t, Inbound{
		Type:     MsgFileChange,
		RoomID:   "proj-1",
		UserID:   "bob",
		FilePath: "index.js",
		Content:  "console.log(1)",
	}))
	require.Len(t, alice.byType(MsgFileChange), 1)
	assert.Empty(t, bob.byType(MsgFileChange))

	rt.HandleMessage("conn-a", frame(t, Inbound{Type: MsgSyncRequest, RoomID: "proj-1"}))
	sync := alice.byType(MsgSyncResponse)[0].(SyncResponseMessage)
	assert.Equal(t, "console.log(1)", sync.Data.Files["index.js"].Content)

	rt.HandleDisconnect("conn-b")
	left := alice.byType(MsgUserLeft)[0].(UserLeftMessage)
	assert.Equal(t, "bob", left.UserID)
	assert.Equal(t, 1, left.ParticipantCount)
	require.Len(t, rt.Participants("proj-1"), 1)
}

func TestRouter_ConcurrentRooms(t *testing.T) {
	rt := NewRouter(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			connID := fmt.Sprintf("conn-%d", i)
			roomID := fmt.Sprintf("room-%d", i%8)
			rt.HandleConnect(connID, &captureSender{})
			userID := fmt.Sprintf("user-%d", i)
			joinFrame, _ := json.Marshal(Inbound{
				Type: MsgJoinRoom, RoomID: roomID, UserID: userID, UserName: userID,
			})
			rt.HandleMessage(connID, joinFrame)
			editFrame, _ := json.Marshal(Inbound{
				Type: MsgFileChange, RoomID: roomID, UserID: userID,
				FilePath: "shared.txt", Content: "data",
			})
			rt.HandleMessage(connID, editFrame)
			rt.HandleDisconnect(connID)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, rt.RoomCount())
	assert.Equal(t, 0, rt.Registry().Count())
}
