package caremall

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyMessage is returned by Send for whitespace-only bodies.
var ErrEmptyMessage = errors.New("caremall: empty message body")

// SessionConfig configures an authenticated session.
type SessionConfig struct {
	// UserID stamps outgoing optimistic messages so they render on the
	// correct side before the server copy arrives.
	UserID   string
	Realtime RealtimeConfig
	// Alert, when set, fires exactly once per incoming notification.
	Alert AlertFunc
}

// Session ties one authenticated user to the shared conversation store, the
// notification center, and the single realtime connection. All chat surfaces
// of the session render from the same store, so a message delivered once is
// visible everywhere at once. Create with NewSession, destroy with Teardown.
type Session struct {
	client *Client
	config SessionConfig
	store  *ConversationStore
	notifs *NotificationCenter
	rt     *Realtime

	mu         sync.Mutex
	drafts     map[string]string
	pollCancel context.CancelFunc
	closed     bool
}

// NewSession builds a session around an authenticated client. No network
// traffic happens until Connect.
func NewSession(client *Client, config SessionConfig) *Session {
	store := NewConversationStore()
	notifs := NewNotificationCenter(client.Notifications, config.Alert)
	return &Session{
		client: client,
		config: config,
		store:  store,
		notifs: notifs,
		rt:     newRealtime(client.WSUrl(), &config.Realtime, store, notifs),
		drafts: make(map[string]string),
	}
}

// Realtime exposes the connection for listener registration and status.
func (s *Session) Realtime() *Realtime { return s.rt }

// Conversations exposes the shared conversation store.
func (s *Session) Conversations() *ConversationStore { return s.store }

// Notifications exposes the notification center.
func (s *Session) Notifications() *NotificationCenter { return s.notifs }

// Connect opens the realtime connection, starts the status poll, and seeds
// the notification center from the backend. Safe to call concurrently; all
// callers share one connection attempt.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("caremall: session torn down")
	}
	if s.pollCancel == nil {
		pollCtx, cancel := context.WithCancel(context.Background())
		s.pollCancel = cancel
		go s.rt.runStatusPoll(pollCtx)
	}
	s.mu.Unlock()

	if err := s.rt.Connect(ctx); err != nil {
		return err
	}

	// Seeded counter, not computed client-side: reflects unread state across
	// devices. Seed merges by id, so a repeat Connect refreshes read state
	// without dropping notifications pushed since the last snapshot. Failure
	// leaves the center as is; the next notification push still lands.
	if data, err := s.client.Notifications.List(ctx); err != nil {
		log.Printf("caremall: seed notifications: %v", err)
	} else {
		s.notifs.Seed(data.Notifications)
	}
	return nil
}

// OpenConversation loads a room's history over REST on first open, tracks it
// in the store, and subscribes to its live updates. Subsequent opens render
// from the store and never refetch. Returns the current message snapshot.
func (s *Session) OpenConversation(ctx context.Context, roomID string) ([]Message, error) {
	if !s.store.Tracked(roomID) {
		meta, err := s.client.Conversations.Get(ctx, roomID)
		if err != nil || meta == nil {
			s.store.Track(ConversationSummary{RoomID: roomID})
		} else {
			s.store.Track(*meta)
		}

		history, err := s.client.Conversations.History(ctx, roomID, nil)
		if err != nil {
			// Live updates still flow for a tracked room; only the backlog
			// is missing.
			s.rt.Join(ctx, roomID)
			return nil, err
		}
		s.store.SeedHistory(roomID, history)
	}
	s.rt.Join(ctx, roomID)
	return s.store.Messages(roomID), nil
}

// Draft returns the saved input draft for a room.
func (s *Session) Draft(roomID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[roomID]
}

// SetDraft saves the input draft for a room.
func (s *Session) SetDraft(roomID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text == "" {
		delete(s.drafts, roomID)
		return
	}
	s.drafts[roomID] = text
}

// Send transmits a chat message with optimistic local echo. The message
// appears in the store immediately, tagged pending; the acknowledgement
// upgrade path is removal, because the confirmed copy arrives through the
// regular push channel like everyone else's. On rejection, timeout, or a
// down connection the pending entry is rolled back, the draft is restored
// for retry, and OnSendFailed handlers fire. Nothing is ever queued for
// later replay.
func (s *Session) Send(ctx context.Context, roomID, body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}

	localID := uuid.NewString()
	s.store.AppendOptimistic(Message{
		LocalID:   localID,
		RoomID:    roomID,
		SenderID:  s.config.UserID,
		Body:      body,
		CreatedAt: time.Now(),
		State:     MessagePending,
	})

	s.mu.Lock()
	prevDraft := s.drafts[roomID]
	delete(s.drafts, roomID)
	s.mu.Unlock()

	incMessageSent()
	err := s.rt.sendMessage(ctx, roomID, body, localID)
	if err == nil {
		s.store.RemoveOptimistic(roomID, localID)
		incMessageConfirmed()
		return nil
	}

	s.store.RemoveOptimistic(roomID, localID)
	s.mu.Lock()
	// Restore unless the user has already typed something new.
	if s.drafts[roomID] == "" {
		if prevDraft != "" {
			s.drafts[roomID] = prevDraft
		} else {
			s.drafts[roomID] = body
		}
	}
	s.mu.Unlock()

	incMessageFailed()
	s.rt.dispatcher.emitSendFailed(SendFailure{RoomID: roomID, Body: body, Err: err})
	return err
}

// Teardown closes the connection, stops the status poll, and clears all
// session-scoped state. Idempotent; the session cannot be reused after.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.pollCancel
	s.pollCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := s.rt.Disconnect(); err != nil {
		log.Printf("caremall: teardown disconnect: %v", err)
	}
	s.store.Clear()
	s.notifs.Clear()

	s.mu.Lock()
	s.drafts = make(map[string]string)
	s.mu.Unlock()
}
