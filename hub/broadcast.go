package hub

import (
	"github.com/sirupsen/logrus"
)

// Router fans serialized payloads out to room members. Delivery is
// best-effort per recipient: one connection failing to take a payload never
// stops delivery to the others, it only puts that connection on the
// disconnect path.
type Router struct {
	registry  *Registry
	onFailure func(*Conn)
}

func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry, onFailure: func(*Conn) {}}
}

// SetFailureHandler installs the disconnect path invoked for connections
// that fail a send. The handler runs on its own goroutine, so it is safe
// for it to take room locks.
func (r *Router) SetFailureHandler(fn func(*Conn)) {
	r.onFailure = fn
}

// BroadcastToRoom delivers payload to every current member of the room,
// minus the excluded connection if any.
func (r *Router) BroadcastToRoom(roomID string, payload []byte, excluding *Conn) {
	r.Deliver(r.registry.Members(roomID), payload, excluding)
}

// Deliver fans payload out to an explicit member snapshot. Used directly by
// handlers that already hold the room's lock via Registry.Sync.
func (r *Router) Deliver(members []*Conn, payload []byte, excluding *Conn) {
	r.deliver(members, outbound{data: payload}, excluding)
}

// DeliverBinary is Deliver for opaque binary payloads.
func (r *Router) DeliverBinary(members []*Conn, payload []byte, excluding *Conn) {
	r.deliver(members, outbound{binary: true, data: payload}, excluding)
}

// SendTo unicasts a payload, with the same failure handling as a broadcast.
func (r *Router) SendTo(c *Conn, payload []byte) {
	r.deliver([]*Conn{c}, outbound{data: payload}, nil)
}

// SendBinaryTo unicasts an opaque binary payload.
func (r *Router) SendBinaryTo(c *Conn, payload []byte) {
	r.deliver([]*Conn{c}, outbound{binary: true, data: payload}, nil)
}

func (r *Router) deliver(members []*Conn, m outbound, excluding *Conn) {
	for _, member := range members {
		if member == excluding {
			continue
		}
		if !member.trySend(m) {
			logrus.WithFields(logrus.Fields{
				"connection_id": member.ID,
				"user_id":       member.UserID,
				"room_id":       member.RoomID,
			}).Warn("Send failed, scheduling disconnect")
			go r.onFailure(member)
		}
	}
}
