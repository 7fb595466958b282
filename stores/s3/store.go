package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"time"

	"collab-whiteboard/core"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// s3Store implements the persistence port as JSON objects in a bucket, one
// object per entity under a per-collection prefix. Message and action keys
// embed a ULID, so S3's lexicographic listing returns them in chronological
// order.
type s3Store struct {
	client *s3.Client
	bucket string
}

// NewStore creates a new S3-based store.
func NewStore(bucketName string) *s3Store {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	return &s3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucketName,
	}
}

func (s *s3Store) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *s3Store) getJSON(ctx context.Context, key string, v any) error {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return core.ErrNotFound
		}
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (s *s3Store) CreateUser(ctx context.Context, user *core.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return s.putJSON(ctx, path.Join("users", user.ID+".json"), user)
}

func (s *s3Store) GetUser(ctx context.Context, userID string) (*core.User, error) {
	var user core.User
	if err := s.getJSON(ctx, path.Join("users", userID+".json"), &user); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, core.ErrNotFound)
		}
		return nil, err
	}
	return &user, nil
}

func (s *s3Store) UpdatePresence(ctx context.Context, userID string, online bool, username string) error {
	now := time.Now().UTC()
	key := path.Join("users", userID+".json")

	var user core.User
	err := s.getJSON(ctx, key, &user)
	if errors.Is(err, core.ErrNotFound) {
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
	return s.putJSON(ctx, key, &user)
}

func (s *s3Store) CreateMessage(ctx context.Context, params core.CreateMessageParams) (*core.ChatMessage, error) {
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
	key := path.Join("messages", params.RoomID, msg.ID+".json")
	if err := s.putJSON(ctx, key, msg); err != nil {
		logrus.WithError(err).WithField("room_id", params.RoomID).Error("Failed to upload message")
		return nil, err
	}
	return msg, nil
}

func (s *s3Store) GetRoomMessages(ctx context.Context, roomID string, limit int) ([]*core.ChatMessage, error) {
	prefix := path.Join("messages", roomID) + "/"
	output, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for room %s: %w", roomID, err)
	}

	keys := make([]string, 0, len(output.Contents))
	for _, object := range output.Contents {
		keys = append(keys, *object.Key)
	}
	if limit > 0 && len(keys) > limit {
		keys = keys[len(keys)-limit:]
	}

	messages := make([]*core.ChatMessage, 0, len(keys))
	for _, key := range keys {
		var msg core.ChatMessage
		if err := s.getJSON(ctx, key, &msg); err != nil {
			logrus.WithError(err).Warnf("Failed to read message object %s, skipping", key)
			continue
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

func (s *s3Store) GetRoom(ctx context.Context, roomID string) (*core.Room, error) {
	var room core.Room
	if err := s.getJSON(ctx, path.Join("rooms", roomID+".json"), &room); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	return &room, nil
}

// CreateRoom persists a durable room entity.
func (s *s3Store) CreateRoom(ctx context.Context, room *core.Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	return s.putJSON(ctx, path.Join("rooms", room.ID+".json"), room)
}

func (s *s3Store) SaveWhiteboardAction(ctx context.Context, action *core.WhiteboardAction) error {
	id := action.ID
	if id == "" {
		id = ulid.Make().String()
	}
	return s.putJSON(ctx, path.Join("actions", action.RoomID, id+".json"), action)
}

func (s *s3Store) SaveSnapshot(ctx context.Context, snapshot *core.DocumentSnapshot) error {
	return s.putJSON(ctx, path.Join("snapshots", snapshot.RoomID+".json"), snapshot)
}

func (s *s3Store) GetSnapshot(ctx context.Context, roomID string) (*core.DocumentSnapshot, error) {
	var snapshot core.DocumentSnapshot
	if err := s.getJSON(ctx, path.Join("snapshots", roomID+".json"), &snapshot); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("snapshot for room %s: %w", roomID, core.ErrNotFound)
		}
		return nil, err
	}
	return &snapshot, nil
}
