package caremall

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectIdempotent(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.Connect(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 1, b.acceptCount(), "concurrent connects must share one transport")

	// Already connected: immediate no-op.
	require.NoError(t, s.Connect(ctx))
	assert.Equal(t, 1, b.acceptCount())
	assert.True(t, s.Realtime().Connected())
}

func TestJoinOncePerConnection(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)
	_, err = s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)
	s.Realtime().Join(ctx, "room-1")

	require.Eventually(t, func() bool {
		return b.joinCount("room-1") >= 1
	}, time.Second, 10*time.Millisecond)
	// Give a stray duplicate time to arrive before asserting.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.joinCount("room-1"), "join directive must be sent once per connection")
}

func TestReconnectRejoinsRooms(t *testing.T) {
	b := newFakeBackend(t)
	client := NewClient("test-token", WithBaseURL(b.srv.URL))
	s := NewSession(client, SessionConfig{
		UserID: "u-test",
		Realtime: RealtimeConfig{
			AutoReconnect:      true,
			StatusInterval:     10 * time.Millisecond,
			AckTimeout:         200 * time.Millisecond,
			HeartbeatInterval:  time.Minute,
			ReconnectBaseDelay: 10 * time.Millisecond,
			ReconnectMaxDelay:  50 * time.Millisecond,
		},
	})
	t.Cleanup(s.Teardown)

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return b.joinCount("room-1") == 1
	}, time.Second, 10*time.Millisecond)

	b.dropConns()

	require.Eventually(t, func() bool {
		return b.acceptCount() == 2
	}, 2*time.Second, 10*time.Millisecond, "connection must be re-established")
	require.Eventually(t, func() bool {
		return b.joinCount("room-1") == 2
	}, 2*time.Second, 10*time.Millisecond, "tracked rooms must be rejoined after reconnect")
	require.Eventually(t, func() bool {
		return s.Realtime().Connected()
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDuplicateEventsDropped(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	var delivered int32
	s.Realtime().OnMessage(func(Message) { atomic.AddInt32(&delivered, 1) })

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	wire := WireMessage{ID: "m-1", RoomID: "room-1", SenderID: "u-other", Body: "hi", CreatedAt: time.Now()}
	b.push(EventMessageNew, wire)
	b.push(EventMessageNew, wire)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&delivered) >= 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&delivered), "replayed event must not reach handlers")
	assert.Len(t, s.Conversations().Messages("room-1"), 1)
}

func TestUntrackedRoomEventsDiscarded(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	var got []Message
	var mu sync.Mutex
	s.Realtime().OnMessage(func(m Message) {
		mu.Lock()
		got = append(got, m)
		mu.Unlock()
	})

	require.NoError(t, s.Connect(ctx))
	_, err := s.OpenConversation(ctx, "room-1")
	require.NoError(t, err)

	b.push(EventMessageNew, WireMessage{ID: "m-x", RoomID: "room-ghost", SenderID: "u-other", Body: "lost", CreatedAt: time.Now()})
	b.push(EventMessageNew, WireMessage{ID: "m-1", RoomID: "room-1", SenderID: "u-other", Body: "kept", CreatedAt: time.Now()})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "room-1", got[0].RoomID)
	assert.False(t, s.Conversations().Tracked("room-ghost"), "untracked rooms stay untracked")
}

func TestRoomTrackerEvictsLRU(t *testing.T) {
	tr := newRoomTracker(2)
	tr.touch("a")
	tr.touch("b")
	tr.touch("a") // refresh a; b is now least recently used
	tr.touch("c")

	assert.Equal(t, []string{"c", "a"}, tr.list())

	require.True(t, tr.needsJoin("c"))
	assert.False(t, tr.needsJoin("c"), "join owed once per transport")
	tr.resetTransport()
	assert.True(t, tr.needsJoin("c"), "a new transport owes the join again")
}

func TestWaitReady(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)

	shortCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.Error(t, s.Realtime().WaitReady(shortCtx), "no connection coming: WaitReady must time out")

	go s.Connect(context.Background())

	ctx, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	require.NoError(t, s.Realtime().WaitReady(ctx))
	assert.True(t, s.Realtime().Connected())
}

func TestStatusPollObservesDisconnect(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()

	states := make(chan ConnState, 16)
	s.Realtime().OnStateChange(func(st ConnState) { states <- st })

	require.NoError(t, s.Connect(ctx))
	b.dropConns()

	require.Eventually(t, func() bool {
		return !s.Realtime().Connected()
	}, time.Second, 5*time.Millisecond, "disconnect must become observable")

	// The poll may first report the connected transition; wait for the
	// disconnect to show up.
	deadline := time.After(time.Second)
	for {
		select {
		case st := <-states:
			if st == StateDisconnected {
				return
			}
		case <-deadline:
			t.Fatal("status poll never reported the disconnect")
		}
	}
}

func TestDisconnectDuringHandshakeAbortsDial(t *testing.T) {
	b := newFakeBackend(t)
	b.readyGate = make(chan struct{})
	s := newTestSession(t, b)
	rt := s.Realtime()

	errCh := make(chan error, 1)
	go func() { errCh <- rt.Connect(context.Background()) }()

	// Wait for the dial to be parked on the session.ready frame.
	require.Eventually(t, func() bool {
		return b.acceptCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, rt.Disconnect())
	assert.False(t, rt.Connected())

	close(b.readyGate)
	select {
	case err := <-errCh:
		require.Error(t, err, "a dial overtaken by Disconnect must not commit")
	case <-time.After(time.Second):
		t.Fatal("connect never returned")
	}

	// The late handshake frame must not resurrect the torn-down session.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, rt.Connected())
}

func TestJoinRetriedAfterFailedWrite(t *testing.T) {
	b := newFakeBackend(t)
	s := newTestSession(t, b)
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))
	rt := s.Realtime()

	// Sever the transport under the tracker: the failed join attempt must
	// not consume the room's turn for this connection.
	rt.mu.Lock()
	conn := rt.conn
	rt.conn = nil
	rt.mu.Unlock()

	rt.Join(ctx, "room-1")
	assert.Equal(t, 0, b.joinCount("room-1"))

	rt.mu.Lock()
	rt.conn = conn
	rt.mu.Unlock()

	rt.Join(ctx, "room-1")
	require.Eventually(t, func() bool {
		return b.joinCount("room-1") == 1
	}, time.Second, 10*time.Millisecond, "a failed join must be re-sent while the transport lives")
}
