package collab

import (
	"sync"
)

// Connection is the registry's record of one transport session. Identity
// fields are empty until the first join attaches them.
type Connection struct {
	ID       string
	UserID   string
	UserName string
	Sender   Sender

	rooms map[string]struct{}
}

// Registry tracks every live connection and which rooms each one has
// joined. The room set is the reverse index used for O(1) disconnect
// cleanup instead of a full directory scan.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Connection)}
}

// Register records a new connection with no identity attached yet.
func (r *Registry) Register(connID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &Connection{
		ID:     connID,
		Sender: sender,
		rooms:  make(map[string]struct{}),
	}
}

// AttachIdentity sets the user identity on a connection and records room
// membership in the reverse index. Called during join handling; attaching
// to an unknown connection reports false.
func (r *Registry) AttachIdentity(connID, userID, userName, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	c.UserID = userID
	c.UserName = userName
	c.rooms[roomID] = struct{}{}
	return true
}

// DetachRoom removes a room from a connection's reverse index after an
// explicit leave.
func (r *Registry) DetachRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[connID]; ok {
		delete(c.rooms, roomID)
	}
}

// Get returns a snapshot of a connection's identity.
func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	return Connection{ID: c.ID, UserID: c.UserID, UserName: c.UserName, Sender: c.Sender}, true
}

// Rooms returns the rooms a connection is currently joined to.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// Remove deletes a connection and returns the rooms it belonged to so
// the caller can cascade the cleanup. Removing an unknown id is a no-op
// that returns nil.
func (r *Registry) Remove(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
