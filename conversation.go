package caremall

import (
	"sort"
	"sync"
	"time"
)

// ============================================================================
// Conversation View Model
// ============================================================================

// Conversation holds the ordered message log and metadata for one room.
// It is owned by the ConversationStore; callers only ever see snapshots.
type Conversation struct {
	RoomID          string
	CounterpartName string
	LastPreview     string
	LastActivity    time.Time

	confirmed []Message
	pending   []Message
	seen      map[string]struct{} // permanent ids already applied
}

// ConversationStore is the per-session room → conversation map. It is the
// single shared instance read by every UI surface; the outbound pipeline and
// the inbound dispatcher are its only writers.
type ConversationStore struct {
	mu    sync.RWMutex
	rooms map[string]*Conversation
}

// NewConversationStore creates an empty store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{rooms: make(map[string]*Conversation)}
}

func (s *ConversationStore) ensure(roomID string) *Conversation {
	c, ok := s.rooms[roomID]
	if !ok {
		c = &Conversation{RoomID: roomID, seen: make(map[string]struct{})}
		s.rooms[roomID] = c
	}
	return c
}

// Track creates the conversation for a room if it does not exist yet and
// records its metadata. Re-tracking updates metadata only.
func (s *ConversationStore) Track(summary ConversationSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(summary.RoomID)
	if summary.CounterpartName != "" {
		c.CounterpartName = summary.CounterpartName
	}
	if summary.LastPreview != "" {
		c.LastPreview = summary.LastPreview
	}
	if summary.LastActivity.After(c.LastActivity) {
		c.LastActivity = summary.LastActivity
	}
}

// Tracked reports whether the room has a conversation in the store.
func (s *ConversationStore) Tracked(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.rooms[roomID]
	return ok
}

// SeedHistory applies a REST history page to a room. Entries whose permanent
// id is already known are skipped, so seeding after live delivery (or twice)
// is harmless. The page is applied in ascending creation order.
func (s *ConversationStore) SeedHistory(roomID string, msgs []WireMessage) int {
	sorted := make([]WireMessage, len(msgs))
	copy(sorted, msgs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(roomID)
	applied := 0
	for _, w := range sorted {
		m, ok := w.normalize()
		if !ok {
			continue
		}
		if _, dup := c.seen[m.ServerID]; dup {
			continue
		}
		c.seen[m.ServerID] = struct{}{}
		c.confirmed = append(c.confirmed, m)
		c.touch(m)
		applied++
	}
	return applied
}

// AppendConfirmed appends a server-confirmed message in arrival order. It
// reports false when the permanent id was already applied (duplicate
// delivery) or the room is not tracked.
func (s *ConversationStore) AppendConfirmed(m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rooms[m.RoomID]
	if !ok {
		return false
	}
	if _, dup := c.seen[m.ServerID]; dup {
		return false
	}
	c.seen[m.ServerID] = struct{}{}
	c.confirmed = append(c.confirmed, m)
	c.touch(m)
	return true
}

// AppendOptimistic inserts a pending local message. Optimistic entries always
// sort after every confirmed entry: they represent the newest local action.
func (s *ConversationStore) AppendOptimistic(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.ensure(m.RoomID)
	c.pending = append(c.pending, m)
	c.touch(m)
}

// RemoveOptimistic deletes the pending entry with the given local id. It
// reports the removed message so the pipeline can restore the draft on
// rollback. Removing twice is a no-op.
func (s *ConversationStore) RemoveOptimistic(roomID, localID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rooms[roomID]
	if !ok {
		return Message{}, false
	}
	for i, m := range c.pending {
		if m.LocalID == localID {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return m, true
		}
	}
	return Message{}, false
}

// Messages returns a snapshot of the room's log: confirmed entries in arrival
// order followed by pending entries in send order. Concurrent readers of the
// same room observe identical sequences.
func (s *ConversationStore) Messages(roomID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]Message, 0, len(c.confirmed)+len(c.pending))
	out = append(out, c.confirmed...)
	out = append(out, c.pending...)
	return out
}

// Meta returns a snapshot of the conversation metadata.
func (s *ConversationStore) Meta(roomID string) (ConversationSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.rooms[roomID]
	if !ok {
		return ConversationSummary{}, false
	}
	return ConversationSummary{
		RoomID:          c.RoomID,
		CounterpartName: c.CounterpartName,
		LastPreview:     c.LastPreview,
		LastActivity:    c.LastActivity,
	}, true
}

// Rooms returns the tracked room ids, most recently active first.
func (s *ConversationStore) Rooms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type entry struct {
		id string
		at time.Time
	}
	entries := make([]entry, 0, len(s.rooms))
	for id, c := range s.rooms {
		entries = append(entries, entry{id, c.LastActivity})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].at.After(entries[j].at) })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out
}

// Clear drops every conversation. Called on session teardown only.
func (s *ConversationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms = make(map[string]*Conversation)
}

func (c *Conversation) touch(m Message) {
	c.LastPreview = m.Body
	if m.CreatedAt.After(c.LastActivity) {
		c.LastActivity = m.CreatedAt
	}
}
