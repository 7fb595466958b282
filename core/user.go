package core

import (
	"context"
	"time"
)

type (
	// User is the durable identity record behind a connection. The hub only
	// reads it at admission time; everything else about a user belongs to
	// the external store.
	User struct {
		ID        string     `json:"id"`
		Username  string     `json:"username"`
		Email     string     `json:"email,omitempty"`
		IsOnline  bool       `json:"is_online"`
		LastSeen  *time.Time `json:"last_seen,omitempty"`
		CreatedAt time.Time  `json:"created_at"`
	}

	// UserPresence is one entry of a room roster.
	UserPresence struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		IsOnline bool   `json:"is_online"`
	}

	// UserStore defines the user-facing slice of the persistence port.
	UserStore interface {
		CreateUser(ctx context.Context, user *User) error

		// GetUser returns ErrNotFound when no user with the given id exists.
		GetUser(ctx context.Context, userID string) (*User, error)

		// UpdatePresence flips a user's online flag and stamps last_seen.
		// It must tolerate users that do not exist yet and create them.
		UpdatePresence(ctx context.Context, userID string, online bool, username string) error
	}
)
