package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"collab-whiteboard/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// fsStore implements the persistence port on the local filesystem: one JSON
// file per entity, message and action files named by ULID so lexicographic
// order is chronological order.
type fsStore struct {
	basePath string
	mu       sync.Mutex
}

// NewStore creates a new filesystem-based store rooted at basePath.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"users", "rooms", "messages", "actions", "snapshots"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0o755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

func (s *fsStore) writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *fsStore) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *fsStore) userPath(userID string) string {
	return filepath.Join(s.basePath, "users", userID+".json")
}

func (s *fsStore) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return s.writeJSON(s.userPath(user.ID), user)
}

func (s *fsStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var user core.User
	if err := s.readJSON(s.userPath(userID), &user); err != nil {
		if err == core.ErrNotFound {
			return nil, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *fsStore) UpdatePresence(ctx context.Context, userID string, online bool, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var user core.User
	err := s.readJSON(s.userPath(userID), &user)
	if err == core.ErrNotFound {
		if username == "" {
			username = userID
		}
		user = core.User{ID: userID, Username: username, CreatedAt: now}
		logrus.WithField("user_id", userID).Debug("User created from presence update")
	} else if err != nil {
		return err
	}
	user.IsOnline = online
	user.LastSeen = &now
	return s.writeJSON(s.userPath(userID), &user)
}

func (s *fsStore) CreateMessage(ctx context.Context, params core.CreateMessageParams) (*core.ChatMessage, error) {
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
	path := filepath.Join(s.basePath, "messages", params.RoomID, msg.ID+".json")
	if err := s.writeJSON(path, msg); err != nil {
		logrus.WithError(err).WithField("room_id", params.RoomID).Error("Failed to write message")
		return nil, err
	}
	return msg, nil
}

func (s *fsStore) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*core.ChatMessage, error) {
	dir := filepath.Join(s.basePath, "messages", roomID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.ChatMessage{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[len(names)-limit:]
	}

	messages := make([]*core.ChatMessage, 0, len(names))
	for _, name := range names {
		var msg core.ChatMessage
		if err := s.readJSON(filepath.Join(dir, name), &msg); err != nil {
			logrus.WithError(err).Warnf("Failed to read message file %s, skipping", name)
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

func (s *fsStore) roomPath(roomID string) string {
	return filepath.Join(s.basePath, "rooms", roomID+".json")
}

func (s *fsStore) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	var room core.Room
	if err := s.readJSON(s.roomPath(roomID), &room); err != nil {
		if err == core.ErrNotFound {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	return &room, nil
}

// CreateRoom persists a durable room entity.
func (s *fsStore) CreateRoom(ctx context.Context, room *core.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	return s.writeJSON(s.roomPath(room.ID), room)
}

func (s *fsStore) SaveWhiteboardAction(ctx context.Context, action *core.WhiteboardAction) error {
	id := action.ID
	if id == "" {
		id = ulid.Make().String()
	}
	path := filepath.Join(s.basePath, "actions", action.RoomID, id+".json")
	return s.writeJSON(path, action)
}

func (s *fsStore) snapshotPath(roomID string) string {
	return filepath.Join(s.basePath, "snapshots", roomID+".json")
}

func (s *fsStore) SaveSnapshot(ctx context.Context, snapshot *core.DocumentSnapshot) error {
	return s.writeJSON(s.snapshotPath(snapshot.RoomID), snapshot)
}

func (s *fsStore) GetSnapshot(ctx context.Context, roomID string) (*core.DocumentSnapshot, error) {
	var snapshot core.DocumentSnapshot
	if err := s.readJSON(s.snapshotPath(roomID), &snapshot); err != nil {
		if err == core.ErrNotFound {
			return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	return &snapshot, nil
}
