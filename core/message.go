package core

import (
	"context"
	"time"
)

// MessageType classifies a chat entry.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

type (
	// ChatMessage is a persisted chat entry. The hub relays these; the store
	// owns their durability.
	ChatMessage struct {
		ID          string      `json:"id"`
		Content     string      `json:"content"`
		MessageType MessageType `json:"message_type"`
		RoomID      string      `json:"room_id"`
		UserID      string      `json:"user_id"`
		Username    string      `json:"username"`
		CreatedAt   time.Time   `json:"created_at"`
		FileURL     string      `json:"file_url,omitempty"`
		FileName    string      `json:"file_name,omitempty"`
		FileType    string      `json:"file_type,omitempty"`
	}

	// CreateMessageParams carries everything the store needs to mint a
	// ChatMessage. ID and CreatedAt are assigned by the store.
	CreateMessageParams struct {
		Content     string
		MessageType MessageType
		RoomID      string
		UserID      string
		Username    string
		FileURL     string
		FileName    string
		FileType    string
	}

	// Room is the durable room entity. Distinct from the hub's notion of a
	// room, which exists only while it has members or strokes.
	Room struct {
		ID        string    `json:"id"`
		Name      string    `json:"name"`
		CreatedBy string    `json:"created_by"`
		CreatedAt time.Time `json:"created_at"`
		IsActive  bool      `json:"is_active"`
	}

	// MessageStore defines the chat slice of the persistence port.
	MessageStore interface {
		CreateMessage(ctx context.Context, params CreateMessageParams) (*ChatMessage, error)

		// GetRoomMessages returns up to limit messages in chronological order.
		GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*ChatMessage, error)
	}

	// RoomStore defines the room slice of the persistence port.
	RoomStore interface {
		// GetRoom returns ErrNotFound when no room with the given id exists.
		GetRoom(ctx context.Context, roomID string) (*Room, error)
	}
)
