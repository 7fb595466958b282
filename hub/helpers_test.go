package hub

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"collab-whiteboard/stores/memory"
)

type fakeMessage struct {
	messageType int
	data        []byte
}

// fakeSocket records everything written to it. failWrites makes every
// write return an error, simulating a broken transport.
type fakeSocket struct {
	mu         sync.Mutex
	messages   []fakeMessage
	closed     bool
	failWrites bool
}

type fakeWriteError struct{}

func (fakeWriteError) Error() string { return "write failed" }

func (s *fakeSocket) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return fakeWriteError{}
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	s.messages = append(s.messages, fakeMessage{messageType: messageType, data: copied})
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSocket) written() []fakeMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := make([]fakeMessage, len(s.messages))
	copy(messages, s.messages)
	return messages
}

func newTestHub() (*Hub, *memory.Store) {
	store := memory.NewStore()
	return New(store), store
}

// join admits a fresh connection backed by a fake socket. The write pump is
// not started; outbound frames stay queued on the connection for the test
// to read.
func join(t *testing.T, h *Hub, roomID, userID, username string) *Conn {
	t.Helper()
	c := NewConn(&fakeSocket{}, roomID, userID, username)
	if err := h.Admit(c); err != nil {
		t.Fatalf("Admit(%s) failed: %v", userID, err)
	}
	return c
}

// recv pops the next queued outbound payload or fails the test.
func recv(t *testing.T, c *Conn) outbound {
	t.Helper()
	select {
	case m := <-c.send:
		return m
	case <-time.After(time.Second):
		t.Fatalf("no frame queued for %s within 1s", c.UserID)
		return outbound{}
	}
}

// recvFrame decodes the next queued text frame into a generic map.
func recvFrame(t *testing.T, c *Conn) map[string]any {
	t.Helper()
	m := recv(t, c)
	if m.binary {
		t.Fatalf("expected text frame for %s, got binary", c.UserID)
	}
	return decodeFrame(t, m.data)
}

func decodeFrame(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("failed to decode frame %q: %v", data, err)
	}
	return frame
}

// recvFrameOfType reads queued frames until one of the wanted type arrives,
// discarding others. For asserting on a frame whose order relative to
// concurrent deliveries is not fixed.
func recvFrameOfType(t *testing.T, c *Conn, frameType string) map[string]any {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m := <-c.send:
			f := decodeFrame(t, m.data)
			if f["type"] == frameType {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame for %s within 1s", frameType, c.UserID)
			return nil
		}
	}
}

// expectNoFrame asserts nothing is queued for the connection.
func expectNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case m := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.UserID, m.data)
	case <-time.After(50 * time.Millisecond):
	}
}

// drain discards the admission frames (user_joined, presence) so tests can
// focus on what follows.
func drain(c *Conn) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}
