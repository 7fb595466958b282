package hub

import (
	"bytes"
	"encoding/json"
	"testing"

	"collab-whiteboard/core"
)

func TestBinaryStateRequestReturnsSnapshot(t *testing.T) {
	h, _ := newTestHub()
	alice := join(t, h, "r1", "u1", "alice")
	bob := join(t, h, "r1", "u2", "bob")
	drain(alice)
	drain(bob)

	h.HandleText(alice, []byte(`{"type":"whiteboard_action","action_type":"stroke_end","stroke":{"id":"s1","points":[[0,0],[1,1]]}}`))
	drain(bob)

	h.HandleBinary(bob, []byte{syncStateRequest})

	m := recv(t, bob)
	if !m.binary {
		t.Fatal("state reply was not a binary frame")
	}
	if len(m.data) == 0 || m.data[0] != syncStatePayload {
		t.Fatalf("state reply tag: got %v", m.data[:1])
	}

	var snapshot core.DocumentSnapshot
	if err := json.Unmarshal(m.data[1:], &snapshot); err != nil {
		t.Fatalf("state reply body: %v", err)
	}
	if snapshot.RoomID != "r1" || len(snapshot.Strokes) != 1 || snapshot.Strokes[0].ID != "s1" {
		t.Fatalf("state reply snapshot: %+v", snapshot)
	}

	// The request is answered by unicast only.
	expectNoFrame(t, alice)
}

func TestBinaryUpdateRelayedVerbatimExcludingSender(t *testing.T) {
	h, _ := newTestHub()
	alice := join(t, h, "r1", "u1", "alice")
	bob := join(t, h, "r1", "u2", "bob")
	carol := join(t, h, "r1", "u3", "carol")
	drain(alice)
	drain(bob)
	drain(carol)

	update := []byte{syncUpdate, 0xde, 0xad, 0xbe, 0xef}
	h.HandleBinary(alice, update)

	for _, c := range []*Conn{bob, carol} {
		m := recv(t, c)
		if !m.binary {
			t.Fatalf("%s got a text frame", c.Username)
		}
		if !bytes.Equal(m.data, update) {
			t.Fatalf("%s got %v, want the payload verbatim", c.Username, m.data)
		}
	}
	expectNoFrame(t, alice)
}

func TestBinaryUnknownTagIgnored(t *testing.T) {
	h, _ := newTestHub()
	alice := join(t, h, "r1", "u1", "alice")
	bob := join(t, h, "r1", "u2", "bob")
	drain(alice)
	drain(bob)

	h.HandleBinary(alice, []byte{0x7f, 0x01})
	h.HandleBinary(alice, nil)

	expectNoFrame(t, alice)
	expectNoFrame(t, bob)
}
