package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"collab-whiteboard/core"

	"github.com/sirupsen/logrus"
)

// Frame type tags exchanged over text frames. Every text frame is a JSON
// object with a required "type" field.
const (
	FrameChatMessage      = "chat_message"
	FrameWhiteboardAction = "whiteboard_action"
	FrameFileUpload       = "file_upload"
	FrameSaveCanvas       = "save_canvas"
	FramePing             = "ping"
	FramePong             = "pong"
	FramePresence         = "presence"
	FrameUserJoined       = "user_joined"
	FrameUserLeft         = "user_left"
	FrameChatHistory      = "chat_history"
	FrameCanvasSaved      = "canvas_saved"
	FrameError            = "error"
)

// Whiteboard action types with hub-side effects. Anything else is treated
// as a live-preview update and relayed without touching the document.
const (
	ActionStrokeEnd   = "stroke_end"
	ActionClearCanvas = "clear_canvas"
)

type (
	// ChatFrame is the inbound body of a chat_message frame.
	ChatFrame struct {
		Content     string `json:"content"`
		MessageType string `json:"message_type"`
	}

	// StrokeData is the client-supplied stroke of a terminal whiteboard
	// action.
	StrokeData struct {
		ID        string      `json:"id"`
		Points    [][]float64 `json:"points"`
		Color     string      `json:"color"`
		BrushSize int         `json:"brush_size"`
	}

	// WhiteboardFrame is the inbound body of a whiteboard_action frame.
	// Live-preview updates carry the loose drawing fields; terminal actions
	// carry a stroke or nothing (clear_canvas).
	WhiteboardFrame struct {
		ActionType string         `json:"action_type"`
		Stroke     *StrokeData    `json:"stroke,omitempty"`
		X          *float64       `json:"x,omitempty"`
		Y          *float64       `json:"y,omitempty"`
		Color      string         `json:"color,omitempty"`
		BrushSize  int            `json:"brush_size,omitempty"`
		IsDrawing  *bool          `json:"is_drawing,omitempty"`
		Data       map[string]any `json:"data,omitempty"`
	}

	// FileUploadFrame is the inbound notification that a file finished
	// uploading out of band. The hub never sees the bytes.
	FileUploadFrame struct {
		FileID      string `json:"file_id"`
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
		DownloadURL string `json:"download_url"`
	}

	// Frame is the decoded inbound envelope: exactly one variant is set for
	// a recognized type, none for an unrecognized one.
	Frame struct {
		Type       string
		Chat       *ChatFrame
		Whiteboard *WhiteboardFrame
		FileUpload *FileUploadFrame
	}
)

// parseFrame decodes a text frame into its tagged variant. A body that is
// not a JSON object with a "type" string is a protocol error; an object with
// an unknown type is returned with only Type set so the dispatcher can
// report it without dropping the connection.
func parseFrame(data []byte) (*Frame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}

	frame := &Frame{Type: envelope.Type}
	switch envelope.Type {
	case FrameChatMessage:
		frame.Chat = &ChatFrame{}
		if err := json.Unmarshal(data, frame.Chat); err != nil {
			return nil, fmt.Errorf("invalid chat_message frame: %w", err)
		}
	case FrameWhiteboardAction:
		frame.Whiteboard = &WhiteboardFrame{}
		if err := json.Unmarshal(data, frame.Whiteboard); err != nil {
			return nil, fmt.Errorf("invalid whiteboard_action frame: %w", err)
		}
	case FrameFileUpload:
		frame.FileUpload = &FileUploadFrame{}
		if err := json.Unmarshal(data, frame.FileUpload); err != nil {
			return nil, fmt.Errorf("invalid file_upload frame: %w", err)
		}
	}
	return frame, nil
}

type (
	presenceFrame struct {
		Type  string              `json:"type"`
		Users []core.UserPresence `json:"users"`
	}

	userEventFrame struct {
		Type      string    `json:"type"`
		UserID    string    `json:"user_id"`
		Username  string    `json:"username"`
		Timestamp time.Time `json:"timestamp"`
	}

	chatBroadcastFrame struct {
		Type    string            `json:"type"`
		Message *core.ChatMessage `json:"message"`
	}

	whiteboardBroadcastFrame struct {
		Type   string           `json:"type"`
		Action *whiteboardEvent `json:"action"`
	}

	// whiteboardEvent echoes the sender's action enriched with identity and
	// a server timestamp.
	whiteboardEvent struct {
		ActionType string         `json:"action_type"`
		UserID     string         `json:"user_id"`
		Username   string         `json:"username"`
		Timestamp  time.Time      `json:"timestamp"`
		Stroke     *StrokeData    `json:"stroke,omitempty"`
		X          *float64       `json:"x,omitempty"`
		Y          *float64       `json:"y,omitempty"`
		Color      string         `json:"color,omitempty"`
		BrushSize  int            `json:"brush_size,omitempty"`
		IsDrawing  *bool          `json:"is_drawing,omitempty"`
		Data       map[string]any `json:"data,omitempty"`
	}

	fileBroadcastFrame struct {
		Type string    `json:"type"`
		File *fileInfo `json:"file"`
	}

	fileInfo struct {
		ID          string    `json:"id"`
		Filename    string    `json:"filename"`
		ContentType string    `json:"content_type"`
		Size        int64     `json:"size"`
		DownloadURL string    `json:"download_url"`
		UserID      string    `json:"user_id"`
		Username    string    `json:"username"`
		CreatedAt   time.Time `json:"created_at"`
	}

	chatHistoryFrame struct {
		Type     string              `json:"type"`
		Messages []*core.ChatMessage `json:"messages"`
	}

	canvasSavedFrame struct {
		Type   string `json:"type"`
		RoomID string `json:"room_id"`
	}

	pongFrame struct {
		Type string `json:"type"`
	}

	errorFrame struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
)

// mustMarshal serializes an outbound frame. Outbound frames are built from
// our own types, so a marshal failure is a bug; it is logged and an empty
// payload returned rather than panicking the hub.
func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal outbound frame")
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return data
}

func newErrorFrame(message string) []byte {
	return mustMarshal(errorFrame{Type: FrameError, Message: message})
}
