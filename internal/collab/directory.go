package collab

import (
	"sync"
	"time"
)

// Member is one room member: an immutable identity snapshot taken at join
// time plus the outbound channel to reach it.
type Member struct {
	ConnID   string
	UserID   string
	UserName string
	Sender   Sender
}

// Participant returns the presence view of the member.
func (m Member) Participant() Participant {
	return Participant{UserID: m.UserID, UserName: m.UserName, ClientID: m.ConnID}
}

type room struct {
	members map[string]Member // connID -> member
	files   map[string]FileState
}

// Directory owns the room membership sets and per-room file state. It is
// the only holder of those maps; every access goes through its methods.
// A room exists exactly while its member set is non-empty: the first join
// creates it and the last leave deletes it together with its file state
// in the same step.
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*room

	now func() time.Time
}

// NewDirectory creates an empty room directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms: make(map[string]*room),
		now:   time.Now,
	}
}

// Join adds a member to a room, creating the room if absent. Joining a
// room the connection is already a member of is idempotent. It returns
// the participant list including the new member, the current file-state
// snapshot, and whether the room was created by this join.
func (d *Directory) Join(roomID string, m Member) (parts []Participant, data RoomData, created bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		rm = &room{
			members: make(map[string]Member),
			files:   make(map[string]FileState),
		}
		d.rooms[roomID] = rm
		created = true
	}
	rm.members[m.ConnID] = m

	return rm.participantsLocked(), rm.snapshotLocked(), created
}

// Leave removes a connection from a room. When the member set becomes
// empty the room and its file state are deleted in the same step. It
// reports whether the connection was a member, the remaining member
// count, and whether the room was destroyed.
func (d *Directory) Leave(roomID, connID string) (removed bool, remaining int, destroyed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return false, 0, false
	}
	if _, ok := rm.members[connID]; !ok {
		return false, len(rm.members), false
	}
	delete(rm.members, connID)
	if len(rm.members) == 0 {
		delete(d.rooms, roomID)
		return true, 0, true
	}
	return true, len(rm.members), false
}

// ApplyFileChange unconditionally overwrites (or inserts) the entry for
// path. There is no version or ordering check against the previous value:
// the last write observed wins. Writing to an absent room reports false
// and stores nothing.
func (d *Directory) ApplyFileChange(roomID, path, content, authorUserID string) (FileState, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return FileState{}, false
	}
	state := FileState{
		Content:        content,
		LastModifiedAt: d.now().UnixMilli(),
		LastModifiedBy: authorUserID,
	}
	rm.files[path] = state
	return state, true
}

// State returns the full file-state snapshot of a room. An unknown room
// yields an empty snapshot, not an error: a room with no state is a
// normal condition.
func (d *Directory) State(roomID string) RoomData {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return RoomData{Files: map[string]FileState{}}
	}
	return rm.snapshotLocked()
}

// IsMember reports whether a connection is currently a member of a room.
func (d *Directory) IsMember(roomID, connID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = rm.members[connID]
	return ok
}

// Members returns the current members of a room.
func (d *Directory) Members(roomID string) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		members = append(members, m)
	}
	return members
}

// OtherMembers returns the members of a room except the given connection.
func (d *Directory) OtherMembers(roomID, exceptConnID string) []Member {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	members := make([]Member, 0, len(rm.members))
	for id, m := range rm.members {
		if id == exceptConnID {
			continue
		}
		members = append(members, m)
	}
	return members
}

// Participants returns the presence list of a room.
func (d *Directory) Participants(roomID string) []Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return nil
	}
	return rm.participantsLocked()
}

// RoomCount returns the number of active rooms.
func (d *Directory) RoomCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// MemberCount returns the number of members in a room, zero if absent.
func (d *Directory) MemberCount(roomID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, ok := d.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.members)
}

func (r *room) participantsLocked() []Participant {
	parts := make([]Participant, 0, len(r.members))
	for _, m := range r.members {
		parts = append(parts, m.Participant())
	}
	return parts
}

// snapshotLocked copies the file map so callers never see the live one.
func (r *room) snapshotLocked() RoomData {
	files := make(map[string]FileState, len(r.files))
	for path, state := range r.files {
		files[path] = state
	}
	return RoomData{Files: files}
}
