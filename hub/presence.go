package hub

import (
	"context"
	"time"

	"collab-whiteboard/core"

	"github.com/sirupsen/logrus"
)

const persistTimeout = 5 * time.Second

// Tracker derives presence events from registry changes: joins announce the
// newcomer and hand them the current roster, leaves announce the departure
// to whoever is left. Presence flips are also pushed to the store, but only
// best-effort: a store outage never reaches the room.
type Tracker struct {
	registry *Registry
	router   *Router
	users    core.UserStore
}

func NewTracker(registry *Registry, router *Router, users core.UserStore) *Tracker {
	return &Tracker{registry: registry, router: router, users: users}
}

// HandleJoin runs right after a successful registry join: everyone in the
// room (the newcomer included) hears user_joined, and the newcomer gets the
// full roster.
func (t *Tracker) HandleJoin(c *Conn) {
	members := t.registry.Members(c.RoomID)

	joined := mustMarshal(userEventFrame{
		Type:      FrameUserJoined,
		UserID:    c.UserID,
		Username:  c.Username,
		Timestamp: time.Now().UTC(),
	})
	t.router.Deliver(members, joined, nil)

	roster := make([]core.UserPresence, 0, len(members))
	for _, member := range members {
		roster = append(roster, core.UserPresence{
			UserID:   member.UserID,
			Username: member.Username,
			IsOnline: true,
		})
	}
	t.router.SendTo(c, mustMarshal(presenceFrame{Type: FramePresence, Users: roster}))

	t.pushPresence(c.UserID, c.Username, true)
}

// HandleLeave announces the departure to the remaining members. The leaver
// is already out of the registry, so the broadcast cannot target it.
func (t *Tracker) HandleLeave(id Identity) {
	left := mustMarshal(userEventFrame{
		Type:      FrameUserLeft,
		UserID:    id.UserID,
		Username:  id.Username,
		Timestamp: time.Now().UTC(),
	})
	t.router.BroadcastToRoom(id.RoomID, left, nil)

	t.pushPresence(id.UserID, id.Username, false)
}

// pushPresence forwards the presence flip to the store on its own goroutine.
// Failures are logged and swallowed; real-time state already reflects the
// event.
func (t *Tracker) pushPresence(userID, username string, online bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := t.users.UpdatePresence(ctx, userID, online, username); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"user_id": userID,
				"online":  online,
			}).Warn("Failed to persist presence update")
		}
	}()
}
