package hub

import (
	"context"
	"time"

	"collab-whiteboard/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

const chatHistoryLimit = 50

// Hub owns the collaboration state for all rooms and dispatches every
// inbound frame to the handler for its declared type. It is safe for
// concurrent use from one read loop per connection.
type Hub struct {
	registry  *Registry
	documents *DocumentStore
	router    *Router
	presence  *Tracker
	store     core.Store
}

func New(store core.Store) *Hub {
	registry := NewRegistry()
	router := NewRouter(registry)
	h := &Hub{
		registry:  registry,
		documents: NewDocumentStore(),
		router:    router,
		presence:  NewTracker(registry, router, store),
		store:     store,
	}
	router.SetFailureHandler(h.Disconnect)
	registry.SetEmptyRoomHandler(h.documents.Release)
	return h
}

// Admit registers an admitted connection with its room, announces it, hands
// it the roster, and replays recent chat history. Identity must already be
// resolved; admission control is the caller's job.
func (h *Hub) Admit(c *Conn) error {
	if err := h.registry.Join(c, c.RoomID, c.UserID, c.Username); err != nil {
		return err
	}

	h.presence.HandleJoin(c)
	c.state.Store(stateActive)

	go h.replayHistory(c)

	logrus.WithFields(logrus.Fields{
		"connection_id": c.ID,
		"user_id":       c.UserID,
		"username":      c.Username,
		"room_id":       c.RoomID,
	}).Info("Connection admitted")
	return nil
}

// Disconnect runs the teardown path for a connection. It is safe to call
// from multiple places for the same connection (the read loop on error, an
// explicit close, any broadcast that saw a failed send) and has effect
// exactly once: one registry removal, one user_left broadcast, and the
// room's document released if this was the last member. The release itself
// happens inside Leave, under the room's lock, so a join racing this
// teardown can never have its document dropped from under it.
func (h *Hub) Disconnect(c *Conn) {
	c.close()

	id, roomEmpty, ok := h.registry.Leave(c)
	if !ok {
		return
	}
	h.presence.HandleLeave(id)
	c.sock.Close()

	logrus.WithFields(logrus.Fields{
		"connection_id": c.ID,
		"user_id":       id.UserID,
		"room_id":       id.RoomID,
		"room_empty":    roomEmpty,
	}).Info("Connection disconnected")
}

// HandleText dispatches one inbound text frame. Protocol errors (malformed
// bodies, unknown types) are reported back to the sender only; the
// connection stays open.
func (h *Hub) HandleText(c *Conn, data []byte) {
	if !c.active() {
		return
	}

	frame, err := parseFrame(data)
	if err != nil {
		logrus.WithError(err).WithField("user_id", c.UserID).Debug("Malformed frame")
		h.router.SendTo(c, newErrorFrame("Invalid JSON format"))
		return
	}

	switch frame.Type {
	case FrameChatMessage:
		h.handleChat(c, frame.Chat)
	case FrameWhiteboardAction:
		h.handleWhiteboard(c, frame.Whiteboard)
	case FrameFileUpload:
		h.handleFileUpload(c, frame.FileUpload)
	case FrameSaveCanvas:
		h.handleSaveCanvas(c)
	case FramePing:
		h.router.SendTo(c, mustMarshal(pongFrame{Type: FramePong}))
	default:
		h.router.SendTo(c, newErrorFrame("Unknown message type: "+frame.Type))
	}
}

// handleChat persists the message and broadcasts the stored result, with
// its server-assigned id and timestamp, to the whole room, sender included.
// If the store is down the message still goes out with a locally minted id;
// durable history lagging is an accepted degradation.
func (h *Hub) handleChat(c *Conn, f *ChatFrame) {
	messageType := core.MessageType(f.MessageType)
	switch messageType {
	case core.MessageTypeText, core.MessageTypeFile, core.MessageTypeSystem:
	default:
		messageType = core.MessageTypeText
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	msg, err := h.store.CreateMessage(ctx, core.CreateMessageParams{
		Content:     f.Content,
		MessageType: messageType,
		RoomID:      c.RoomID,
		UserID:      c.UserID,
		Username:    c.Username,
	})
	cancel()
	if err != nil {
		logrus.WithError(err).WithField("room_id", c.RoomID).Warn("Failed to persist chat message")
		msg = &core.ChatMessage{
			ID:          ulid.Make().String(),
			Content:     f.Content,
			MessageType: messageType,
			RoomID:      c.RoomID,
			UserID:      c.UserID,
			Username:    c.Username,
			CreatedAt:   time.Now().UTC(),
		}
	}

	// Enqueue under the room's lock so every recipient sees concurrent chat
	// messages in the same relative order.
	payload := mustMarshal(chatBroadcastFrame{Type: FrameChatMessage, Message: msg})
	h.registry.Sync(c.RoomID, func(members []*Conn) {
		h.router.Deliver(members, payload, nil)
	})
}

// handleWhiteboard routes a whiteboard action. Terminal actions (a finished
// stroke, a canvas clear) mutate the room's document and then broadcast,
// both under the room's lock so nothing interleaves between the mutation
// and its fan-out. Anything else is a live-preview update: relayed to the
// rest of the room, never stored.
func (h *Hub) handleWhiteboard(c *Conn, f *WhiteboardFrame) {
	event := &whiteboardEvent{
		ActionType: f.ActionType,
		UserID:     c.UserID,
		Username:   c.Username,
		Timestamp:  time.Now().UTC(),
		Stroke:     f.Stroke,
		X:          f.X,
		Y:          f.Y,
		Color:      f.Color,
		BrushSize:  f.BrushSize,
		IsDrawing:  f.IsDrawing,
		Data:       f.Data,
	}
	payload := mustMarshal(whiteboardBroadcastFrame{Type: FrameWhiteboardAction, Action: event})

	switch f.ActionType {
	case ActionStrokeEnd:
		if f.Stroke == nil || len(f.Stroke.Points) == 0 {
			h.router.SendTo(c, newErrorFrame("stroke_end requires a stroke"))
			return
		}
		stroke := strokeFromFrame(f, c, event.Timestamp)
		added := false
		h.registry.Sync(c.RoomID, func(members []*Conn) {
			if added = h.documents.AddStroke(c.RoomID, stroke); added {
				h.router.Deliver(members, payload, c)
			}
		})
		if added {
			h.persistAction(c, f, &stroke, event.Timestamp)
		}

	case ActionClearCanvas:
		h.registry.Sync(c.RoomID, func(members []*Conn) {
			h.documents.Clear(c.RoomID, c.UserID, c.Username)
			h.router.Deliver(members, payload, c)
		})
		h.persistAction(c, f, nil, event.Timestamp)

	default:
		h.registry.Sync(c.RoomID, func(members []*Conn) {
			h.router.Deliver(members, payload, c)
		})
	}
}

func strokeFromFrame(f *WhiteboardFrame, c *Conn, at time.Time) core.Stroke {
	stroke := core.Stroke{
		ID:        f.Stroke.ID,
		Points:    f.Stroke.Points,
		Color:     f.Stroke.Color,
		BrushSize: f.Stroke.BrushSize,
		UserID:    c.UserID,
		Username:  c.Username,
		CreatedAt: at,
	}
	if stroke.ID == "" {
		stroke.ID = ulid.Make().String()
	}
	if stroke.Color == "" {
		stroke.Color = f.Color
	}
	if stroke.Color == "" {
		stroke.Color = "#000000"
	}
	if stroke.BrushSize == 0 {
		stroke.BrushSize = f.BrushSize
	}
	if stroke.BrushSize == 0 {
		stroke.BrushSize = 2
	}
	return stroke
}

// persistAction records a terminal whiteboard action, fire-and-forget.
func (h *Hub) persistAction(c *Conn, f *WhiteboardFrame, stroke *core.Stroke, at time.Time) {
	action := &core.WhiteboardAction{
		ID:         ulid.Make().String(),
		ActionType: f.ActionType,
		RoomID:     c.RoomID,
		UserID:     c.UserID,
		Username:   c.Username,
		CreatedAt:  at,
		Stroke:     stroke,
		Data:       f.Data,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := h.store.SaveWhiteboardAction(ctx, action); err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"room_id":     action.RoomID,
				"action_type": action.ActionType,
			}).Warn("Failed to persist whiteboard action")
		}
	}()
}

// handleFileUpload records the out-of-band upload as a chat entry and
// announces it to the whole room. The bytes themselves never pass through
// the hub.
func (h *Hub) handleFileUpload(c *Conn, f *FileUploadFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	_, err := h.store.CreateMessage(ctx, core.CreateMessageParams{
		Content:     "Uploaded: " + f.Filename,
		MessageType: core.MessageTypeFile,
		RoomID:      c.RoomID,
		UserID:      c.UserID,
		Username:    c.Username,
		FileURL:     f.DownloadURL,
		FileName:    f.Filename,
		FileType:    f.ContentType,
	})
	cancel()
	if err != nil {
		logrus.WithError(err).WithField("room_id", c.RoomID).Warn("Failed to persist file upload message")
	}

	payload := mustMarshal(fileBroadcastFrame{
		Type: FrameFileUpload,
		File: &fileInfo{
			ID:          f.FileID,
			Filename:    f.Filename,
			ContentType: f.ContentType,
			Size:        f.Size,
			DownloadURL: f.DownloadURL,
			UserID:      c.UserID,
			Username:    c.Username,
			CreatedAt:   time.Now().UTC(),
		},
	})
	h.registry.Sync(c.RoomID, func(members []*Conn) {
		h.router.Deliver(members, payload, nil)
	})
}

// handleSaveCanvas snapshots the room's document into the store. This is
// the only way whiteboard state outlives the room: nothing is persisted
// automatically when the last member leaves.
func (h *Hub) handleSaveCanvas(c *Conn) {
	snapshot := h.documents.Snapshot(c.RoomID)

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := h.store.SaveSnapshot(ctx, snapshot); err != nil {
		logrus.WithError(err).WithField("room_id", c.RoomID).Warn("Failed to save canvas snapshot")
		h.router.SendTo(c, newErrorFrame("Failed to save canvas"))
		return
	}
	h.router.SendTo(c, mustMarshal(canvasSavedFrame{Type: FrameCanvasSaved, RoomID: c.RoomID}))
}

// replayHistory sends recent chat history to a freshly joined connection.
// Best-effort: a store failure just means the newcomer starts with an empty
// scrollback.
func (h *Hub) replayHistory(c *Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	messages, err := h.store.GetRoomMessages(ctx, c.RoomID, chatHistoryLimit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", c.RoomID).Warn("Failed to load chat history")
		return
	}
	if len(messages) == 0 {
		return
	}
	h.router.SendTo(c, mustMarshal(chatHistoryFrame{Type: FrameChatHistory, Messages: messages}))
}

// RoomOccupancy reports the member count of every room that currently has
// members.
func (h *Hub) RoomOccupancy() map[string]int {
	return h.registry.Counts()
}

// SnapshotDocument exposes a room's current whiteboard state read-only.
func (h *Hub) SnapshotDocument(roomID string) *core.DocumentSnapshot {
	return h.documents.Snapshot(roomID)
}

// Shutdown disconnects every live connection. Room state is volatile by
// design and is simply dropped.
func (h *Hub) Shutdown() {
	for _, c := range h.registry.Connections() {
		h.Disconnect(c)
	}
}
