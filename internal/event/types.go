package event

// RoomCreatedData is the data for room.created events.
type RoomCreatedData struct {
	RoomID string `json:"roomId"`
}

// RoomDestroyedData is the data for room.destroyed events.
type RoomDestroyedData struct {
	RoomID string `json:"roomId"`
}

// UserJoinedData is the data for user.joined events.
type UserJoinedData struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	UserName         string `json:"userName"`
	ClientID         string `json:"clientId"`
	ParticipantCount int    `json:"participantCount"`
}

// UserLeftData is the data for user.left events.
type UserLeftData struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	ClientID         string `json:"clientId"`
	ParticipantCount int    `json:"participantCount"`
}

// FileChangedData is the data for file.changed events.
type FileChangedData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	FilePath string `json:"filePath"`
}

// ChatPostedData is the data for chat.posted events.
type ChatPostedData struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	Message  string `json:"message"`
}
