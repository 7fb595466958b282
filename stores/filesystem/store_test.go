package filesystem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"collab-whiteboard/core"
)

func TestUserRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.CreateUser(ctx, &core.User{ID: "u1", Username: "alice"}); err != nil {
		t.Fatal(err)
	}
	user, err := s.GetUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if user.Username != "alice" || user.CreatedAt.IsZero() {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := s.GetUser(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing user: got %v, want ErrNotFound", err)
	}
}

func TestUpdatePresenceCreatesMissingUser(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.UpdatePresence(ctx, "u9", true, "carol"); err != nil {
		t.Fatal(err)
	}
	user, err := s.GetUser(ctx, "u9")
	if err != nil {
		t.Fatal(err)
	}
	if !user.IsOnline || user.Username != "carol" {
		t.Fatalf("created-from-presence user: %+v", user)
	}
}

func TestMessagesOrderAndLimit(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := s.CreateMessage(ctx, core.CreateMessageParams{
			Content:     fmt.Sprintf("m%d", i),
			MessageType: core.MessageTypeText,
			RoomID:      "r1",
			UserID:      "u1",
			Username:    "alice",
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.GetRoomMessages(ctx, "r1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("message count: got %d, want 4", len(all))
	}
	for i, msg := range all {
		if msg.Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d out of order: %s", i, msg.Content)
		}
	}

	recent, err := s.GetRoomMessages(ctx, "r1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Content != "m2" || recent[1].Content != "m3" {
		t.Fatalf("limited history: %+v", recent)
	}

	empty, err := s.GetRoomMessages(ctx, "never-used", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("unused room returned %d messages", len(empty))
	}
}

func TestWhiteboardActionWritesFile(t *testing.T) {
	base := t.TempDir()
	s := NewStore(base)
	ctx := context.Background()

	action := &core.WhiteboardAction{
		ID: "a1", ActionType: "clear_canvas", RoomID: "r1", UserID: "u1", Username: "alice",
	}
	if err := s.SaveWhiteboardAction(ctx, action); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(base, "actions", "r1", "a1.json")); err != nil {
		t.Fatalf("action file not written: %v", err)
	}
}

func TestSnapshotOverwrite(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if _, err := s.GetSnapshot(ctx, "r1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing snapshot: got %v, want ErrNotFound", err)
	}

	if err := s.SaveSnapshot(ctx, &core.DocumentSnapshot{
		RoomID:  "r1",
		Strokes: []core.Stroke{{ID: "s1", Points: [][]float64{{0, 0}}}},
		CanvasMeta: map[string]any{
			"background": "#ffffff",
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveSnapshot(ctx, &core.DocumentSnapshot{RoomID: "r1", Strokes: nil}); err != nil {
		t.Fatal(err)
	}

	stored, err := s.GetSnapshot(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Strokes) != 0 {
		t.Fatalf("snapshot after overwrite: %+v", stored)
	}
}

func TestRoomRoundTrip(t *testing.T) {
	s := NewStore(t.TempDir())
	ctx := context.Background()

	if err := s.CreateRoom(ctx, &core.Room{ID: "r1", Name: "standup", IsActive: true}); err != nil {
		t.Fatal(err)
	}
	room, err := s.GetRoom(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if room.Name != "standup" {
		t.Fatalf("unexpected room: %+v", room)
	}
}
