package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
)

// Socket is the minimal transport surface the hub needs. Production code
// hands in a gorilla websocket connection; tests hand in fakes.
type Socket interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Connection lifecycle states.
const (
	stateConnecting int32 = iota
	stateActive
	stateClosed
)

const (
	sendBufferSize = 256
	pingPeriod     = 54 * time.Second
)

type outbound struct {
	binary bool
	data   []byte
}

// Conn is one registered bidirectional connection. It carries the identity
// resolved at admission time and a buffered send queue drained by the write
// pump. A connection belongs to exactly one room for its whole lifetime.
type Conn struct {
	ID       string
	UserID   string
	Username string
	RoomID   string

	sock      Socket
	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
}

// NewConn wraps a transport socket with the identity resolved for it. The
// connection starts in the connecting state; Hub.Admit moves it to active.
func NewConn(sock Socket, roomID, userID, username string) *Conn {
	return &Conn{
		ID:       ulid.Make().String(),
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
		sock:     sock,
		send:     make(chan outbound, sendBufferSize),
		done:     make(chan struct{}),
	}
}

// trySend enqueues a payload without blocking. A full queue means the peer
// cannot keep up and is reported as a send failure, the same as a broken
// socket.
func (c *Conn) trySend(m outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- m:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

// close marks the connection closed and stops all future sends. Safe to call
// any number of times; only the first has an effect.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.state.Store(stateClosed)
		close(c.done)
	})
}

func (c *Conn) active() bool {
	return c.state.Load() == stateActive
}

// WritePump drains the send queue onto the socket and keeps the connection
// alive with pings. It must run in its own goroutine. A write error hands
// the connection to onFailure, which is expected to run the disconnect path.
func (c *Conn) WritePump(onFailure func(*Conn)) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case <-c.done:
			c.sock.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case m := <-c.send:
			messageType := websocket.TextMessage
			if m.binary {
				messageType = websocket.BinaryMessage
			}
			if err := c.sock.WriteMessage(messageType, m.data); err != nil {
				onFailure(c)
				return
			}
		case <-ticker.C:
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				onFailure(c)
				return
			}
		}
	}
}
