package caremall

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendConfirmedFlow(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	require.NoError(t, s.Send(ctx, "room-1", "hello"))

	// The pending entry is removed on ack; the confirmed copy arrives over
	// the push channel like any other message.
	require.Eventually(t, func() bool {
		msgs := s.Conversations().Messages("room-1")
		return len(msgs) == 1 && msgs[0].State == MessageConfirmed
	}, time.Second, 10*time.Millisecond)

	msgs := s.Conversations().Messages("room-1")
	assert.Equal(t, "hello", msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ServerID)

	meta, ok := s.Conversations().Meta("room-1")
	require.True(t, ok)
	assert.Equal(t, "hello", meta.LastPreview)
}

func TestSendRejectedRollsBack(t *testing.T) {
	b := newFakeBackend(t)
	b.setMode(ackReject)
	s := newTestSession(t, b)
	ctx := context.Background()

	var failures int32
	s.Realtime().OnSendFailed(func(f SendFailure) {
		atomic.AddInt32(&failures, 1)
		assert.Equal(t, "room-1", f.RoomID)
		assert.Equal(t, "hello", f.Body)
	})

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	err = s.Send(ctx, "room-1", "hello")
	require.Error(t, err)

	assert.Empty(t, s.Conversations().Messages("room-1"), "rejected send must be rolled back")
	assert.Equal(t, "hello", s.Draft("room-1"), "rolled-back text must return to the draft")
	assert.Equal(t, int32(1), atomic.LoadInt32(&failures))
}

func TestSendAckTimeoutRollsBack(t *testing.T) {
	b := newFakeBackend(t)
	b.setMode(ackSilent)
	s := newTestSession(t, b)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	start := time.Now()
	err = s.Send(ctx, "room-1", "hello")
	require.ErrorIs(t, err, ErrAckTimeout)
	assert.Less(t, time.Since(start), 2*time.Second, "the wait must be bounded")

	assert.Empty(t, s.Conversations().Messages("room-1"))
	assert.Equal(t, "hello", s.Draft("room-1"))
}

func TestSendWhileDisconnected(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	err = s.Send(ctx, "room-1", "hello")
	require.ErrorIs(t, err, ErrNotConnected, "sending while down fails deterministically, nothing is queued")
	assert.Empty(t, s.Conversations().Messages("room-1"))
}

func TestSendEmptyBody(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)

	err := s.Send(context.Background(), "room-1", "   \n\t")
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, s.Conversations().Messages("room-1"))
}

func TestOpenConversationSeedsHistory(t *testing.T) {
	b := newFakeBackend(t)
	b.history["room-1"] = []WireMessage{
		{ID: "m-2", RoomID: "room-1", SenderID: "u-other", Body: "second", CreatedAt: time.Now()},
		{ID: "m-1", RoomID: "room-1", SenderID: "u-other", Body: "first", CreatedAt: time.Now().Add(-time.Minute)},
	}
	s := newTestSession(t, b)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	msgs, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Body, "history renders oldest first")
	assert.Equal(t, "second", msgs[1].Body)

	// Second open renders from the store, no refetch of history.
	b.mu.Lock()
	b.history["room-1"] = nil
	b.mu.Unlock()
	msgs, err = s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestNotificationPushAndAlert(t *testing.T) {
	b := newFakeBackend(t)
	client := NewClient("test-token", WithBaseURL(b.srv.URL))

	var alerts int32
	s := NewSession(client, SessionConfig{
		UserID: "u-test",
		Realtime: RealtimeConfig{
			StatusInterval:    10 * time.Millisecond,
			HeartbeatInterval: time.Minute,
		},
		Alert: func(Notification) { atomic.AddInt32(&alerts, 1) },
	})
	t.Cleanup(s.Teardown)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	b.push(EventNotification, Notification{ID: "n-1", Kind: NotifyInfo, Title: "Order shipped", Body: "Your order is on its way"})

	require.Eventually(t, func() bool {
		return s.Notifications().Unread() == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&alerts), "exactly one alert per notification")
	items := s.Notifications().List()
	require.Len(t, items, 1)
	assert.Equal(t, "Order shipped", items[0].Title)
}

func TestTeardownIdempotent(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	s.Teardown()
	s.Teardown()

	assert.False(t, s.Realtime().Connected())
	assert.Empty(t, s.Conversations().Rooms(), "teardown clears session state")
	assert.Zero(t, s.Notifications().Unread())
	require.Error(t, s.Connect(ctx), "a torn-down session cannot reconnect")
}

func TestRepeatConnectKeepsPushedNotifications(t *testing.T) {
	b := newFakeBackend(t)
	b.notifs = NotificationListData{
		Notifications: []Notification{{ID: "n-rest", Kind: NotifyInfo, Title: "Welcome", Read: true}},
	}
	s := newTestSession(t, b)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	b.push(EventNotification, Notification{ID: "n-live", Kind: NotifyInfo, Title: "Flash sale"})
	require.Eventually(t, func() bool {
		return s.Notifications().Unread() == 1
	}, time.Second, 10*time.Millisecond)

	// A repeat Connect re-seeds from REST; the pushed notification must
	// survive the fresh snapshot.
	require.NoError(t, s.Connect(ctx))

	items := s.Notifications().List()
	require.Len(t, items, 2)
	assert.Equal(t, "n-live", items[0].ID)
	assert.Equal(t, 1, s.Notifications().Unread())
}
