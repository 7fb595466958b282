package core

import (
	"context"
	"time"
)

type (
	// Stroke is one completed freehand drawing action. Immutable once
	// appended to a room's document.
	Stroke struct {
		ID        string      `json:"id"`
		Points    [][]float64 `json:"points"`
		Color     string      `json:"color"`
		BrushSize int         `json:"brush_size"`
		UserID    string      `json:"user_id"`
		Username  string      `json:"username"`
		CreatedAt time.Time   `json:"created_at"`
	}

	// WhiteboardAction is the persisted record of a whiteboard event. Only
	// terminal actions (completed strokes, canvas clears) are persisted.
	WhiteboardAction struct {
		ID         string         `json:"id"`
		ActionType string         `json:"action_type"`
		RoomID     string         `json:"room_id"`
		UserID     string         `json:"user_id"`
		Username   string         `json:"username"`
		CreatedAt  time.Time      `json:"created_at"`
		Stroke     *Stroke        `json:"stroke,omitempty"`
		Data       map[string]any `json:"data,omitempty"`
	}

	// DocumentSnapshot is the read-only view of a room's in-memory whiteboard
	// state: the stroke log plus free-form canvas metadata.
	DocumentSnapshot struct {
		RoomID     string         `json:"room_id"`
		Strokes    []Stroke       `json:"strokes"`
		CanvasMeta map[string]any `json:"canvas_state"`
	}

	// WhiteboardStore defines the whiteboard slice of the persistence port.
	// The hub never persists whiteboard state automatically; snapshots are
	// written only when a client asks for them.
	WhiteboardStore interface {
		SaveWhiteboardAction(ctx context.Context, action *WhiteboardAction) error
		SaveSnapshot(ctx context.Context, snapshot *DocumentSnapshot) error

		// GetSnapshot returns ErrNotFound when no snapshot was ever saved
		// for the room.
		GetSnapshot(ctx context.Context, roomID string) (*DocumentSnapshot, error)
	}
)
