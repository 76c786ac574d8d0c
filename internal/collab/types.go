package collab

import "encoding/json"

// MessageType identifies a protocol event on the wire.
type MessageType string

// Inbound message types.
const (
	MsgJoinRoom       MessageType = "join-room"
	MsgLeaveRoom      MessageType = "leave-room"
	MsgFileChange     MessageType = "file-change"
	MsgCursorPosition MessageType = "cursor-position"
	MsgChatMessage    MessageType = "chat-message"
	MsgSyncRequest    MessageType = "sync-request"
)

// Outbound message types.
const (
	MsgConnected    MessageType = "connected"
	MsgRoomState    MessageType = "room-state"
	MsgUserJoined   MessageType = "user-joined"
	MsgUserLeft     MessageType = "user-left"
	MsgSyncResponse MessageType = "sync-response"
	MsgError        MessageType = "error"
)

// Selection is an editor selection range. Start and end are opaque to the
// server and relayed as-is.
type Selection struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
}

// Inbound is the envelope for client-to-server frames. All payload fields
// share one flat structure; which of them are required depends on Type.
type Inbound struct {
	Type     MessageType `json:"type"`
	RoomID   string      `json:"roomId,omitempty"`
	UserID   string      `json:"userId,omitempty"`
	UserName string      `json:"userName,omitempty"`
	FilePath string      `json:"filePath,omitempty"`
	Content  string      `json:"content,omitempty"`
	Message  string      `json:"message,omitempty"`

	// Editor coordinates are relayed without interpretation.
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
	Selection      *Selection      `json:"selection,omitempty"`
	Position       json.RawMessage `json:"position,omitempty"`
}

// Participant is the presence view of a room member.
type Participant struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	ClientID string `json:"clientId"`
}

// FileState is the latest stored version of one file path. Exactly one
// version is kept per path; every write replaces the previous one.
type FileState struct {
	Content        string `json:"content"`
	LastModifiedAt int64  `json:"lastModifiedAt"` // epoch millis
	LastModifiedBy string `json:"lastModifiedBy"`
}

// RoomData is the full file-state snapshot of a room.
type RoomData struct {
	Files map[string]FileState `json:"files"`
}

// ConnectedMessage greets a new transport session with its assigned id.
type ConnectedMessage struct {
	Type     MessageType `json:"type"`
	ClientID string      `json:"clientId"`
}

// RoomStateMessage hydrates a joining client with the current room state.
type RoomStateMessage struct {
	Type         MessageType   `json:"type"`
	RoomID       string        `json:"roomId"`
	Participants []Participant `json:"participants"`
	Data         RoomData      `json:"data"`
}

// UserJoinedMessage announces a new member to the existing members.
type UserJoinedMessage struct {
	Type             MessageType `json:"type"`
	UserID           string      `json:"userId"`
	UserName         string      `json:"userName"`
	ClientID         string      `json:"clientId"`
	ParticipantCount int         `json:"participantCount"`
}

// UserLeftMessage announces a departed member to the remaining members.
type UserLeftMessage struct {
	Type             MessageType `json:"type"`
	UserID           string      `json:"userId"`
	ClientID         string      `json:"clientId"`
	RoomID           string      `json:"roomId"`
	ParticipantCount int         `json:"participantCount"`
}

// FileChangeMessage relays an edit to every member except its author.
type FileChangeMessage struct {
	Type           MessageType     `json:"type"`
	UserID         string          `json:"userId"`
	FilePath       string          `json:"filePath"`
	Content        string          `json:"content"`
	CursorPosition json.RawMessage `json:"cursorPosition,omitempty"`
	Selection      *Selection      `json:"selection,omitempty"`
	Timestamp      int64           `json:"timestamp"`
}

// CursorPositionMessage relays a cursor move to the other members.
type CursorPositionMessage struct {
	Type      MessageType     `json:"type"`
	UserID    string          `json:"userId"`
	FilePath  string          `json:"filePath"`
	Position  json.RawMessage `json:"position"`
	Timestamp int64           `json:"timestamp"`
}

// ChatMessage relays a chat line to every member, sender included.
type ChatMessage struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName,omitempty"`
	Message   string      `json:"message"`
	Timestamp int64       `json:"timestamp"`
}

// SyncResponseMessage answers a sync-request with the current snapshot.
type SyncResponseMessage struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"roomId"`
	Data   RoomData    `json:"data"`
}

// ErrorMessage is the sole failure signal a client ever receives.
type ErrorMessage struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Sender delivers outbound frames to a single client. Implementations
// must not block: a send to a slow or dead client either succeeds into a
// buffer or fails immediately with an error. Delivery is best-effort.
type Sender interface {
	Send(v any) error
}
