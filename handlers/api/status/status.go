package status

import (
	"net/http"

	"collab-whiteboard/hub"

	"github.com/go-chi/render"
)

type roomStatus struct {
	RoomID    string `json:"room_id"`
	UserCount int    `json:"user_count"`
}

// HandleHealth reports process liveness.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "healthy"})
	}
}

// HandleRooms reports the rooms that currently have members, with their
// occupancy. Observational only; the hub's room state stays volatile.
func HandleRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := h.RoomOccupancy()
		rooms := make([]roomStatus, 0, len(counts))
		for roomID, n := range counts {
			rooms = append(rooms, roomStatus{RoomID: roomID, UserCount: n})
		}
		render.JSON(w, r, rooms)
	}
}
