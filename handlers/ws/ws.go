// Package ws glues the hub to real WebSocket connections: it resolves the
// identity behind an incoming upgrade request, admits the connection into
// its room, and runs the inbound read loop.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"collab-whiteboard/core"
	"collab-whiteboard/hub"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// CloseUserNotFound is sent when the identity behind a connection attempt
// cannot be resolved. Fatal to that attempt only, never to the process.
const CloseUserNotFound = 4004

const (
	maxMessageSize = 1 << 20
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	resolveTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// admissionClaims are the JWT claims accepted as a pre-resolved identity.
type admissionClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Handler upgrades GET /ws/{roomID}/{userID} and hands the connection to
// the hub. Identity must resolve before the connection joins anything:
// either from a signed token, or by looking the user up through the store.
func Handler(h *hub.Hub, store core.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "roomID")
		userID := chi.URLParam(r, "userID")

		log := logrus.WithFields(logrus.Fields{
			"room_id": roomID,
			"user_id": userID,
		})

		ctx, cancel := context.WithTimeout(r.Context(), resolveTimeout)
		username, resolveErr := resolveIdentity(ctx, store, userID, r.URL.Query().Get("token"))
		cancel()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		if resolveErr != nil {
			log.WithError(resolveErr).Warn("Identity resolution failed, refusing connection")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(CloseUserNotFound, "user not found"),
				time.Now().Add(writeWait))
			conn.Close()
			return
		}

		c := hub.NewConn(&wsSocket{conn: conn}, roomID, userID, username)
		go c.WritePump(h.Disconnect)

		if err := h.Admit(c); err != nil {
			log.WithError(err).Warn("Admission failed")
			h.Disconnect(c)
			return
		}

		readLoop(h, c, conn)
	}
}

// resolveIdentity turns a connection attempt into a username. When the
// deployment configures JWT_SECRET and the client supplies a token, the
// token's claims are trusted (its user_id must match the URL); otherwise
// the user must already exist in the store.
func resolveIdentity(ctx context.Context, store core.Store, userID, token string) (string, error) {
	if secret := os.Getenv("JWT_SECRET"); secret != "" && token != "" {
		claims := &admissionClaims{}
		parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !parsed.Valid {
			return "", fmt.Errorf("invalid admission token: %w", err)
		}
		if claims.UserID != "" && claims.UserID != userID {
			return "", errors.New("admission token user_id mismatch")
		}
		if claims.Username == "" {
			return "", errors.New("admission token missing username")
		}
		return claims.Username, nil
	}

	user, err := store.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Username, nil
}

func readLoop(h *hub.Hub, c *hub.Conn, conn *websocket.Conn) {
	defer h.Disconnect(c)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				logrus.WithError(err).WithField("user_id", c.UserID).Debug("Unexpected close")
			}
			return
		}

		switch messageType {
		case websocket.TextMessage:
			h.HandleText(c, data)
		case websocket.BinaryMessage:
			h.HandleBinary(c, data)
		}
	}
}

// wsSocket adapts a gorilla connection to the hub's Socket, adding write
// deadlines the hub does not know about.
type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) WriteMessage(messageType int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}
