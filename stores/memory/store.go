package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"collab-whiteboard/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// Store implements the full persistence port in process memory. It is
// the default backend and doubles as the store used by tests.
type Store struct {
	mu        sync.RWMutex
	users     map[string]*core.User
	rooms     map[string]*core.Room
	messages  map[string][]*core.ChatMessage
	actions   map[string][]*core.WhiteboardAction
	snapshots map[string]*core.DocumentSnapshot
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		users:     make(map[string]*core.User),
		rooms:     make(map[string]*core.Room),
		messages:  make(map[string][]*core.ChatMessage),
		actions:   make(map[string][]*core.WhiteboardAction),
		snapshots: make(map[string]*core.DocumentSnapshot),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == "" {
		return fmt.Errorf("user id cannot be empty")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	copied := *user
	s.users[user.ID] = &copied
	logrus.WithField("user_id", user.ID).Debug("User created")
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
	}
	copied := *user
	return &copied, nil
}

// UpdatePresence flips the online flag, creating the user on the fly when
// it does not exist yet.
func (s *Store) UpdatePresence(ctx context.Context, userID string, online bool, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	user, ok := s.users[userID]
	if !ok {
		if username == "" {
			username = userID
		}
		user = &core.User{ID: userID, Username: username, CreatedAt: now}
		s.users[userID] = user
		logrus.WithField("user_id", userID).Debug("User created from presence update")
	}
	user.IsOnline = online
	user.LastSeen = &now
	return nil
}

func (s *Store) CreateMessage(ctx context.Context, params core.CreateMessageParams) (*core.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &core.ChatMessage{
		ID:          ulid.Make().String(),
		Content:     params.Content,
		MessageType: params.MessageType,
		RoomID:      params.RoomID,
		UserID:      params.UserID,
		Username:    params.Username,
		CreatedAt:   time.Now().UTC(),
		FileURL:     params.FileURL,
		FileName:    params.FileName,
		FileType:    params.FileType,
	}
	s.messages[params.RoomID] = append(s.messages[params.RoomID], msg)
	copied := *msg
	return &copied, nil
}

// GetRoomMessages returns up to limit of the most recent messages, oldest
// first.
func (s *Store) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*core.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[roomID]
	start := 0
	if limit > 0 && len(all) > limit {
		start = len(all) - limit
	}
	messages := make([]*core.ChatMessage, 0, len(all)-start)
	for _, msg := range all[start:] {
		copied := *msg
		messages = append(messages, &copied)
	}
	return messages, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
	}
	copied := *room
	return &copied, nil
}

// CreateRoom registers a durable room entity. Not part of the hub's port,
// but the other backends persist rooms and tests need a way to seed them.
func (s *Store) CreateRoom(ctx context.Context, room *core.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	copied := *room
	s.rooms[room.ID] = &copied
	return nil
}

func (s *Store) SaveWhiteboardAction(ctx context.Context, action *core.WhiteboardAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *action
	s.actions[action.RoomID] = append(s.actions[action.RoomID], &copied)
	return nil
}

// RoomActions returns the persisted whiteboard actions for a room, in the
// order they were saved.
func (s *Store) RoomActions(roomID string) []*core.WhiteboardAction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := make([]*core.WhiteboardAction, len(s.actions[roomID]))
	copy(actions, s.actions[roomID])
	return actions
}

func (s *Store) SaveSnapshot(ctx context.Context, snapshot *core.DocumentSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *snapshot
	s.snapshots[snapshot.RoomID] = &copied
	logrus.WithFields(logrus.Fields{
		"room_id": snapshot.RoomID,
		"strokes": len(snapshot.Strokes),
	}).Debug("Snapshot saved")
	return nil
}

func (s *Store) GetSnapshot(ctx context.Context, roomID string) (*core.DocumentSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[roomID]
	if !ok {
		return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
	}
	copied := *snapshot
	return &copied, nil
}
