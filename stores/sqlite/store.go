package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"collab-whiteboard/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC strings so lexicographic order
// in the database is chronological order. RFC3339Nano would trim trailing
// zeros and break that.
const sqliteTimeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// NewStore creates a new SQLite-based store and initializes its schema.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT,
			is_online INTEGER NOT NULL DEFAULT 0,
			last_seen TEXT,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			name TEXT,
			created_by TEXT,
			created_at TEXT NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			message_type TEXT NOT NULL,
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			created_at TEXT NOT NULL,
			file_url TEXT,
			file_name TEXT,
			file_type TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages (room_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS whiteboard_actions (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			action_type TEXT NOT NULL,
			user_id TEXT NOT NULL,
			username TEXT NOT NULL,
			created_at TEXT NOT NULL,
			payload BLOB
		);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			room_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
	}
	for _, stmt := range statements {
		if _, err = db.Exec(stmt); err != nil {
			log.Fatalf("failed to initialize sqlite schema: %v", err)
		}
	}

	return &sqliteStore{db}
}

func (s *sqliteStore) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, is_online, created_at) VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, boolToInt(user.IsOnline), user.CreatedAt.Format(sqliteTimeFormat))
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("Failed to create user")
	}
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var (
		user      core.User
		isOnline  int
		lastSeen  sql.NullString
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, email, is_online, last_seen, created_at FROM users WHERE id = ?`,
		userID).Scan(&user.ID, &user.Username, &user.Email, &isOnline, &lastSeen, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
		}
		return nil, err
	}
	user.IsOnline = isOnline != 0
	user.CreatedAt = parseTime(createdAt)
	if lastSeen.Valid {
		t := parseTime(lastSeen.String)
		user.LastSeen = &t
	}
	return &user, nil
}

func (s *sqliteStore) UpdatePresence(ctx context.Context, userID string, online bool, username string) error {
	now := time.Now().UTC().Format(sqliteTimeFormat)
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_online = ?, last_seen = ? WHERE id = ?`,
		boolToInt(online), now, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	if username == "" {
		username = userID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, is_online, last_seen, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, username, boolToInt(online), now, now)
	return err
}

func (s *sqliteStore) CreateMessage(ctx context.Context, params core.CreateMessageParams) (*core.ChatMessage, error) {
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
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, content, message_type, room_id, user_id, username, created_at, file_url, file_name, file_type)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Content, string(msg.MessageType), msg.RoomID, msg.UserID, msg.Username,
		msg.CreatedAt.Format(sqliteTimeFormat), msg.FileURL, msg.FileName, msg.FileType)
	if err != nil {
		logrus.WithError(err).WithField("room_id", msg.RoomID).Error("Failed to create message")
		return nil, err
	}
	return msg, nil
}

func (s *sqliteStore) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*core.ChatMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, message_type, room_id, user_id, username, created_at, file_url, file_name, file_type
		 FROM messages WHERE room_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []*core.ChatMessage
	for rows.Next() {
		var (
			msg                         core.ChatMessage
			messageType, createdAt      string
			fileURL, fileName, fileType sql.NullString
		)
		if err := rows.Scan(&msg.ID, &msg.Content, &messageType, &msg.RoomID, &msg.UserID,
			&msg.Username, &createdAt, &fileURL, &fileName, &fileType); err != nil {
			return nil, err
		}
		msg.MessageType = core.MessageType(messageType)
		msg.CreatedAt = parseTime(createdAt)
		msg.FileURL = fileURL.String
		msg.FileName = fileName.String
		msg.FileType = fileType.String
		newestFirst = append(newestFirst, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Chronological order for replay.
	messages := make([]*core.ChatMessage, len(newestFirst))
	for i, msg := range newestFirst {
		messages[len(newestFirst)-1-i] = msg
	}
	return messages, nil
}

func (s *sqliteStore) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	var (
		room      core.Room
		createdAt string
		isActive  int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at, is_active FROM rooms WHERE id = ?`,
		roomID).Scan(&room.ID, &room.Name, &room.CreatedBy, &createdAt, &isActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	room.CreatedAt = parseTime(createdAt)
	room.IsActive = isActive != 0
	return &room, nil
}

// CreateRoom persists a durable room entity.
func (s *sqliteStore) CreateRoom(ctx context.Context, room *core.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_by, created_at, is_active) VALUES (?, ?, ?, ?, ?)`,
		room.ID, room.Name, room.CreatedBy, room.CreatedAt.Format(sqliteTimeFormat), boolToInt(room.IsActive))
	return err
}

func (s *sqliteStore) SaveWhiteboardAction(ctx context.Context, action *core.WhiteboardAction) error {
	payload, err := json.Marshal(action)
	if err != nil {
		return err
	}
	id := action.ID
	if id == "" {
		id = ulid.Make().String()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO whiteboard_actions (id, room_id, action_type, user_id, username, created_at, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, action.RoomID, action.ActionType, action.UserID, action.Username,
		action.CreatedAt.Format(sqliteTimeFormat), payload)
	if err != nil {
		logrus.WithError(err).WithField("room_id", action.RoomID).Error("Failed to save whiteboard action")
	}
	return err
}

func (s *sqliteStore) SaveSnapshot(ctx context.Context, snapshot *core.DocumentSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO snapshots (room_id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		snapshot.RoomID, data, time.Now().UTC().Format(sqliteTimeFormat))
	return err
}

func (s *sqliteStore) GetSnapshot(ctx context.Context, roomID string) (*core.DocumentSnapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM snapshots WHERE room_id = ?`, roomID).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	var snapshot core.DocumentSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
