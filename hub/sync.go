package hub

import (
	"encoding/json"

	"github.com/sirupsen/logrus"
)

// Binary frames carry the whiteboard sync sub-protocol: a one-byte tag
// followed by an opaque payload. The hub answers state requests from the
// room's document and relays updates verbatim; it never interprets update
// payloads.
const (
	syncStateRequest byte = 0x00
	syncStatePayload byte = 0x01
	syncUpdate       byte = 0x02
)

// HandleBinary routes one inbound binary frame to the sender's room.
func (h *Hub) HandleBinary(c *Conn, data []byte) {
	if !c.active() || len(data) == 0 {
		return
	}

	switch data[0] {
	case syncStateRequest:
		snapshot := h.documents.Snapshot(c.RoomID)
		body, err := json.Marshal(snapshot)
		if err != nil {
			logrus.WithError(err).WithField("room_id", c.RoomID).Error("Failed to encode document state")
			return
		}
		reply := make([]byte, 0, len(body)+1)
		reply = append(reply, syncStatePayload)
		reply = append(reply, body...)
		h.router.SendBinaryTo(c, reply)

	case syncUpdate:
		// Opaque stroke-commit/update payload; relay to the rest of the
		// room in acceptance order.
		h.registry.Sync(c.RoomID, func(members []*Conn) {
			h.router.DeliverBinary(members, data, c)
		})

	default:
		logrus.WithFields(logrus.Fields{
			"room_id": c.RoomID,
			"tag":     data[0],
		}).Debug("Ignoring unknown sync message")
	}
}
