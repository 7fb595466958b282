// Package hub is the real-time collaboration core: it tracks which
// connections belong to which room, derives presence, keeps each room's
// in-memory whiteboard document, and fans events out to the right subset of
// connections. Rooms are independent units of concurrency; all shared state
// is isolated per room.
package hub

import (
	"errors"
	"sync"
)

// ErrAlreadyRegistered is returned when a connection handle is joined twice.
var ErrAlreadyRegistered = errors.New("connection already registered")

// ErrConnectionClosed is returned by Join when the connection was torn down
// while the join was in flight.
var ErrConnectionClosed = errors.New("connection closed")

// Identity is what the registry remembers about a connection.
type Identity struct {
	RoomID   string
	UserID   string
	Username string
}

// roomEntry holds one room's membership set. Its mutex is the room's single
// mutation point: handlers that must order a state change with its broadcast
// run both under it via Registry.Sync.
type roomEntry struct {
	mu      sync.Mutex
	members map[*Conn]struct{}
	closed  bool
}

// Registry tracks room membership. The registry-level lock guards only the
// room map and the connection index; per-room work takes the room's own
// lock, so rooms never contend with each other.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*roomEntry
	conns       map[*Conn]Identity
	onRoomEmpty func(roomID string)
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:       make(map[string]*roomEntry),
		conns:       make(map[*Conn]Identity),
		onRoomEmpty: func(string) {},
	}
}

// SetEmptyRoomHandler installs the cleanup invoked when a leave empties a
// room. The handler runs while the room's lock is still held, so the
// emptiness decision and the cleanup are one atomic step: no join can slip
// in between them. It must not block or re-enter the registry.
func (r *Registry) SetEmptyRoomHandler(fn func(roomID string)) {
	r.onRoomEmpty = fn
}

// Join registers the connection under the room. A connection may belong to
// exactly one room for its lifetime; joining a tracked connection again
// fails with ErrAlreadyRegistered.
func (r *Registry) Join(c *Conn, roomID, userID, username string) error {
	r.mu.Lock()
	if _, dup := r.conns[c]; dup {
		r.mu.Unlock()
		return ErrAlreadyRegistered
	}
	r.conns[c] = Identity{RoomID: roomID, UserID: userID, Username: username}
	r.mu.Unlock()

	for {
		entry := r.entry(roomID, true)
		entry.mu.Lock()
		if entry.closed {
			// Lost a race with the last member leaving; the entry was
			// removed from the map. Grab a fresh one.
			entry.mu.Unlock()
			continue
		}
		// A concurrent Leave may have untracked the connection between the
		// two registration phases. Inserting it anyway would leave a member
		// no teardown path can ever remove.
		r.mu.RLock()
		_, tracked := r.conns[c]
		r.mu.RUnlock()
		if !tracked {
			entry.mu.Unlock()
			return ErrConnectionClosed
		}
		entry.members[c] = struct{}{}
		entry.mu.Unlock()
		return nil
	}
}

// Leave removes the connection and reports the identity it had. Disconnects
// can be observed twice (read failure and explicit close); the second call
// finds nothing and returns ok=false. roomEmpty reports whether this leave
// emptied the room, decided atomically with the removal.
func (r *Registry) Leave(c *Conn) (id Identity, roomEmpty bool, ok bool) {
	r.mu.Lock()
	id, ok = r.conns[c]
	if !ok {
		r.mu.Unlock()
		return Identity{}, false, false
	}
	delete(r.conns, c)
	entry := r.rooms[id.RoomID]
	r.mu.Unlock()

	if entry == nil {
		return id, false, true
	}

	entry.mu.Lock()
	delete(entry.members, c)
	roomEmpty = len(entry.members) == 0
	if roomEmpty {
		entry.closed = true
		// Run the cleanup before any new member can join: a join racing
		// this leave either lands on this entry first (then the room is not
		// empty here) or retries against a fresh entry after the cleanup.
		r.onRoomEmpty(id.RoomID)
	}
	entry.mu.Unlock()

	if roomEmpty {
		r.mu.Lock()
		if r.rooms[id.RoomID] == entry {
			delete(r.rooms, id.RoomID)
		}
		r.mu.Unlock()
	}
	return id, roomEmpty, true
}

// Members returns a point-in-time snapshot of the room's membership.
func (r *Registry) Members(roomID string) []*Conn {
	entry := r.entry(roomID, false)
	if entry == nil {
		return nil
	}
	entry.mu.Lock()
	members := make([]*Conn, 0, len(entry.members))
	for c := range entry.members {
		members = append(members, c)
	}
	entry.mu.Unlock()
	return members
}

// Sync runs fn under the room's lock with a snapshot of its members. It is
// the room's serialization point: a document mutation and the
// broadcast it triggers both happen inside fn, so no other event on the same
// room can interleave between them. fn must not block on I/O and must not
// call back into this room's registry methods.
func (r *Registry) Sync(roomID string, fn func(members []*Conn)) {
	entry := r.entry(roomID, false)
	if entry == nil {
		fn(nil)
		return
	}
	entry.mu.Lock()
	members := make([]*Conn, 0, len(entry.members))
	for c := range entry.members {
		members = append(members, c)
	}
	fn(members)
	entry.mu.Unlock()
}

// Counts reports current occupancy per room.
func (r *Registry) Counts() map[string]int {
	r.mu.RLock()
	entries := make(map[string]*roomEntry, len(r.rooms))
	for id, entry := range r.rooms {
		entries[id] = entry
	}
	r.mu.RUnlock()

	counts := make(map[string]int, len(entries))
	for id, entry := range entries {
		entry.mu.Lock()
		if n := len(entry.members); n > 0 {
			counts[id] = n
		}
		entry.mu.Unlock()
	}
	return counts
}

// Connections returns every tracked connection, across all rooms.
func (r *Registry) Connections() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

func (r *Registry) entry(roomID string, create bool) *roomEntry {
	r.mu.RLock()
	entry := r.rooms[roomID]
	r.mu.RUnlock()
	if entry != nil || !create {
		return entry
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry = r.rooms[roomID]; entry == nil {
		entry = &roomEntry{members: make(map[*Conn]struct{})}
		r.rooms[roomID] = entry
	}
	return entry
}
