package core

import "errors"

// ErrNotFound is returned by store lookups when the entity does not exist.
var ErrNotFound = errors.New("not found")

// Store is the full persistence port consumed by the hub and the handlers.
// Every call the hub makes through it is best-effort: failures are logged
// and swallowed, never surfaced to a connection or allowed to block a
// broadcast.
type Store interface {
	UserStore
	MessageStore
	RoomStore
	WhiteboardStore
}
