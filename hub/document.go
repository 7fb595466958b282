package hub

import (
	"sync"
	"time"

	"collab-whiteboard/core"
)

// Document is one room's in-memory whiteboard state: an append-only stroke
// log plus free-form canvas metadata. It lives only as long as the room has
// members; durability is the collaborator's business, on explicit request.
type Document struct {
	mu        sync.Mutex
	strokes   []core.Stroke
	meta      map[string]any
	strokeIDs map[string]struct{}
}

func newDocument() *Document {
	return &Document{
		meta: map[string]any{
			"initialized":  true,
			"background":   "#ffffff",
			"last_updated": time.Now().UTC(),
		},
		strokeIDs: make(map[string]struct{}),
	}
}

// DocumentStore keeps per-room documents, created lazily on first reference
// and dropped when the room's last member leaves.
type DocumentStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

func NewDocumentStore() *DocumentStore {
	return &DocumentStore{docs: make(map[string]*Document)}
}

// GetOrCreate returns the room's document, creating it on first reference.
func (s *DocumentStore) GetOrCreate(roomID string) *Document {
	s.mu.RLock()
	doc := s.docs[roomID]
	s.mu.RUnlock()
	if doc != nil {
		return doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc = s.docs[roomID]; doc == nil {
		doc = newDocument()
		s.docs[roomID] = doc
	}
	return doc
}

// AddStroke appends a completed stroke. Stroke ids are deduplicated: a
// retried stroke with an id already present in the log is dropped and
// reported as not added. Point geometry is the caller's responsibility.
func (s *DocumentStore) AddStroke(roomID string, stroke core.Stroke) bool {
	doc := s.GetOrCreate(roomID)
	doc.mu.Lock()
	defer doc.mu.Unlock()

	if stroke.ID != "" {
		if _, dup := doc.strokeIDs[stroke.ID]; dup {
			return false
		}
		doc.strokeIDs[stroke.ID] = struct{}{}
	}
	doc.strokes = append(doc.strokes, stroke)
	doc.meta["last_updated"] = time.Now().UTC()
	return true
}

// Clear atomically empties the stroke log and stamps the canvas metadata
// with who cleared it and when. A stroke appended concurrently lands either
// entirely before the clear (and is wiped) or entirely after it (and
// survives); there is no in-between.
func (s *DocumentStore) Clear(roomID, userID, username string) {
	doc := s.GetOrCreate(roomID)
	doc.mu.Lock()
	defer doc.mu.Unlock()

	now := time.Now().UTC()
	doc.strokes = nil
	doc.strokeIDs = make(map[string]struct{})
	doc.meta["last_cleared_by"] = username
	doc.meta["last_cleared_by_id"] = userID
	doc.meta["last_cleared_at"] = now
	doc.meta["last_updated"] = now
}

// Snapshot returns a copy of the room's current state, safe to serialize
// after the call returns.
func (s *DocumentStore) Snapshot(roomID string) *core.DocumentSnapshot {
	doc := s.GetOrCreate(roomID)
	doc.mu.Lock()
	defer doc.mu.Unlock()

	strokes := make([]core.Stroke, len(doc.strokes))
	copy(strokes, doc.strokes)
	meta := make(map[string]any, len(doc.meta))
	for k, v := range doc.meta {
		meta[k] = v
	}
	return &core.DocumentSnapshot{RoomID: roomID, Strokes: strokes, CanvasMeta: meta}
}

// Release drops the room's document. Called when the room's member count
// reaches zero; the next join recreates it empty.
func (s *DocumentStore) Release(roomID string) {
	s.mu.Lock()
	delete(s.docs, roomID)
	s.mu.Unlock()
}

// Len reports how many documents are currently held.
func (s *DocumentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
