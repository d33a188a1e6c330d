package caremall

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the realtime connection for one session.
type RealtimeConfig struct {
	AutoReconnect        bool
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	// StatusInterval is the period of the connection-status poll that drives
	// OnStateChange. UI consumers render from this state.
	StatusInterval time.Duration
	// AckTimeout bounds the wait for a send acknowledgement. A send that
	// never acks fails after this long; the optimistic entry is rolled back.
	AckTimeout time.Duration
	// RoomLimit caps the join-state tracker; least recently used entries are
	// evicted so a long-lived session does not grow without bound.
	RoomLimit int
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 1 * time.Second
	}
	if c.AckTimeout == 0 {
		c.AckTimeout = 5 * time.Second
	}
	if c.RoomLimit == 0 {
		c.RoomLimit = 128
	}
}

// ConnState represents the connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

var (
	// ErrNotConnected is returned by sends attempted while the transport is
	// down. The optimistic insert still happens first; the failure is
	// deterministic, never a silent drop.
	ErrNotConnected = errors.New("caremall: not connected")
	// ErrAckTimeout is returned when a send is never acknowledged within the
	// configured bound.
	ErrAckTimeout = errors.New("caremall: send acknowledgement timed out")
)

// SendFailure describes a rolled-back send, for user-visible notices.
type SendFailure struct {
	RoomID string
	Body   string
	Err    error
}

// ============================================================================
// Event Dispatcher
// ============================================================================

// dispatcher routes inbound and meta events to typed listeners. Handlers for
// one event type run synchronously in registration order for each delivery;
// a single delivery never fires one registration twice. Callers pairing
// add/remove are responsible for symmetry; misuse is not detected.
type dispatcher struct {
	mu             sync.RWMutex
	onMessage      []func(Message)
	onNotification []func(Notification)
	onPresence     []func([]string)
	onConnected    []func()
	onDisconnected []func(reason string)
	onStateChange  []func(ConnState)
	onSendFailed   []func(SendFailure)
}

func (d *dispatcher) emitMessage(m Message) {
	d.mu.RLock()
	handlers := append([]func(Message){}, d.onMessage...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (d *dispatcher) emitNotification(n Notification) {
	d.mu.RLock()
	handlers := append([]func(Notification){}, d.onNotification...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

func (d *dispatcher) emitPresence(online []string) {
	d.mu.RLock()
	handlers := append([]func([]string){}, d.onPresence...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(online)
	}
}

func (d *dispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *dispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

func (d *dispatcher) emitStateChange(s ConnState) {
	d.mu.RLock()
	handlers := append([]func(ConnState){}, d.onStateChange...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(s)
	}
}

func (d *dispatcher) emitSendFailed(f SendFailure) {
	d.mu.RLock()
	handlers := append([]func(SendFailure){}, d.onSendFailed...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(f)
	}
}

// ============================================================================
// Reconnector
// ============================================================================

type reconnector struct {
	baseDelay   time.Duration
	maxDelay    time.Duration
	maxAttempts int
	attempt     int
	connectedAt time.Time
}

func newReconnector(config *RealtimeConfig) *reconnector {
	return &reconnector{
		baseDelay:   config.ReconnectBaseDelay,
		maxDelay:    config.ReconnectMaxDelay,
		maxAttempts: config.MaxReconnectAttempts,
	}
}

func (r *reconnector) shouldReconnect() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) markConnected() {
	r.connectedAt = time.Now()
}

func (r *reconnector) nextDelay() time.Duration {
	if !r.connectedAt.IsZero() && time.Since(r.connectedAt) > 60*time.Second {
		r.attempt = 0
	}
	jitter := time.Duration(rand.Float64() * float64(r.baseDelay) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.baseDelay)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.maxDelay),
	))
	r.attempt++
	return delay
}

// ============================================================================
// Room Subscription Tracker
// ============================================================================

// roomTracker records which rooms the session wants live updates for, and
// which of those have had a join directive sent on the current transport.
// Capped with LRU eviction; evicting a room only forgets join bookkeeping,
// the conversation log itself stays in the store.
type roomTracker struct {
	mu    sync.Mutex
	limit int
	order *list.List               // front = most recently used
	rooms map[string]*list.Element // roomID → order element
	sent  map[string]bool          // join sent on the current transport
}

func newRoomTracker(limit int) *roomTracker {
	return &roomTracker{
		limit: limit,
		order: list.New(),
		rooms: make(map[string]*list.Element),
		sent:  make(map[string]bool),
	}
}

// touch records interest in a room, evicting the least recently used entry
// when the cap is exceeded.
func (t *roomTracker) touch(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if el, ok := t.rooms[roomID]; ok {
		t.order.MoveToFront(el)
		return
	}
	t.rooms[roomID] = t.order.PushFront(roomID)
	if t.order.Len() > t.limit {
		oldest := t.order.Back()
		evicted := t.order.Remove(oldest).(string)
		delete(t.rooms, evicted)
		delete(t.sent, evicted)
	}
}

// needsJoin reports whether a join directive is still owed for the room on
// the current transport, and marks it sent. At most one caller wins.
func (t *roomTracker) needsJoin(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sent[roomID] {
		return false
	}
	t.sent[roomID] = true
	return true
}

// clearSent returns the room's join turn after a failed write so the next
// caller can retry on the same transport.
func (t *roomTracker) clearSent(roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sent, roomID)
}

// resetTransport clears per-transport join state so every tracked room is
// rejoined on the next connection.
func (t *roomTracker) resetTransport() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = make(map[string]bool)
}

// list returns tracked room ids, most recently used first.
func (t *roomTracker) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, t.order.Len())
	for el := t.order.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value.(string))
	}
	return out
}

// ============================================================================
// Realtime Client
// ============================================================================

type connectAttempt struct {
	done chan struct{}
	err  error
}

// Realtime owns the single persistent connection of a session: lifecycle,
// room joins, outbound directives with ack correlation, and inbound event
// dispatch. Only the session creates or destroys it.
type Realtime struct {
	wsURL  string
	config *RealtimeConfig

	store  *ConversationStore
	notifs *NotificationCenter

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ConnState
	attempt          *connectAttempt
	intentionalClose bool
	cancelFn         context.CancelFunc
	readyCh          chan struct{}

	dispatcher dispatcher
	recon      *reconnector
	rooms      *roomTracker

	pendingMu   sync.Mutex
	pendingAcks map[string]chan AckPayload
	pingCounter int
}

func newRealtime(wsURL string, config *RealtimeConfig, store *ConversationStore, notifs *NotificationCenter) *Realtime {
	cfg := *config
	cfg.defaults()
	return &Realtime{
		wsURL:       wsURL,
		config:      &cfg,
		store:       store,
		notifs:      notifs,
		state:       StateDisconnected,
		recon:       newReconnector(&cfg),
		rooms:       newRoomTracker(cfg.RoomLimit),
		pendingAcks: make(map[string]chan AckPayload),
	}
}

// ── Listener registration ─────────────────────────────────

// OnMessage registers a handler for confirmed chat messages. Handlers fire
// after the message has been applied to the conversation store; duplicates
// and messages for untracked rooms never reach handlers.
func (rt *Realtime) OnMessage(h func(Message)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onMessage = append(rt.dispatcher.onMessage, h)
	rt.dispatcher.mu.Unlock()
}

// OnNotification registers a handler for pushed notifications.
func (rt *Realtime) OnNotification(h func(Notification)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onNotification = append(rt.dispatcher.onNotification, h)
	rt.dispatcher.mu.Unlock()
}

// OnPresence registers a handler for presence updates.
func (rt *Realtime) OnPresence(h func(online []string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onPresence = append(rt.dispatcher.onPresence, h)
	rt.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (rt *Realtime) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *Realtime) OnDisconnected(h func(reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnStateChange registers a handler fired by the status poll whenever the
// observed connection state differs from the previous poll.
func (rt *Realtime) OnStateChange(h func(ConnState)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onStateChange = append(rt.dispatcher.onStateChange, h)
	rt.dispatcher.mu.Unlock()
}

// OnSendFailed registers a handler for rolled-back sends, suitable for a
// transient dismissible notice.
func (rt *Realtime) OnSendFailed(h func(SendFailure)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onSendFailed = append(rt.dispatcher.onSendFailed, h)
	rt.dispatcher.mu.Unlock()
}

// ── Lifecycle ─────────────────────────────────────────────

// State returns the current connection state.
func (rt *Realtime) State() ConnState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connected is a pure, non-blocking status query. It never dials.
func (rt *Realtime) Connected() bool {
	return rt.State() == StateConnected
}

// Connect establishes the connection. Idempotent: while an attempt is in
// flight, concurrent callers join that attempt's outcome instead of opening
// a second transport; when already connected it returns nil immediately.
// A failed connect is an ordinary error; callers poll or retry.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected {
		rt.mu.Unlock()
		return nil
	}
	if rt.attempt != nil {
		att := rt.attempt
		rt.mu.Unlock()
		select {
		case <-att.done:
			return att.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	att := &connectAttempt{done: make(chan struct{})}
	rt.attempt = att
	if rt.state == StateDisconnected {
		rt.state = StateConnecting
	}
	rt.intentionalClose = false
	rt.mu.Unlock()

	incConnectAttempt()
	err := rt.dial(ctx)

	rt.mu.Lock()
	rt.attempt = nil
	rt.mu.Unlock()

	att.err = err
	close(att.done)
	return err
}

func (rt *Realtime) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, rt.wsURL, nil)
	if err != nil {
		rt.setState(StateDisconnected)
		return fmt.Errorf("websocket dial: %w", err)
	}

	// First frame must announce the session.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setState(StateDisconnected)
		return fmt.Errorf("read session ready: %w", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != EventSessionReady {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setState(StateDisconnected)
		return fmt.Errorf("expected %q, got %q", EventSessionReady, env.Type)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	// Disconnect may have run while the dial was in flight; committing the
	// transport now would resurrect a torn-down connection.
	if rt.intentionalClose {
		rt.mu.Unlock()
		cancel()
		conn.Close(websocket.StatusNormalClosure, "")
		return errors.New("caremall: disconnected during connect")
	}
	rt.conn = conn
	rt.state = StateConnected
	rt.cancelFn = cancel
	if rt.readyCh != nil {
		close(rt.readyCh)
		rt.readyCh = nil
	}
	rt.mu.Unlock()
	rt.recon.markConnected()
	setConnected(true)

	// A fresh transport owes a join for every tracked room, otherwise live
	// updates silently stop after a network blip.
	rt.rooms.resetTransport()
	rt.rejoinAll(connCtx)

	rt.dispatcher.emitConnected()

	go rt.readLoop(connCtx)
	go rt.heartbeatLoop(connCtx)

	return nil
}

// Disconnect tears the transport down unconditionally and resets the state
// to disconnected.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.failPending()
	setConnected(false)

	if conn != nil {
		err := conn.Close(websocket.StatusNormalClosure, "client disconnect")
		rt.dispatcher.emitDisconnected("client disconnect")
		return err
	}
	return nil
}

// WaitReady blocks until the connection is established or ctx expires. It
// replaces busy-polling a raw handle for readiness.
func (rt *Realtime) WaitReady(ctx context.Context) error {
	for {
		rt.mu.Lock()
		if rt.state == StateConnected {
			rt.mu.Unlock()
			return nil
		}
		if rt.readyCh == nil {
			rt.readyCh = make(chan struct{})
		}
		ch := rt.readyCh
		rt.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (rt *Realtime) setState(s ConnState) {
	rt.mu.Lock()
	rt.state = s
	rt.mu.Unlock()
}

// ── Rooms ─────────────────────────────────────────────────

// Join subscribes the session to live updates for a room. Idempotent per
// transport: at most one join directive is transmitted per distinct room per
// connection lifetime; a reconnect re-sends them. Join failures are
// swallowed; re-opening the conversation recovers.
func (rt *Realtime) Join(ctx context.Context, roomID string) {
	rt.rooms.touch(roomID)

	rt.mu.Lock()
	connected := rt.state == StateConnected
	rt.mu.Unlock()
	if !connected {
		return
	}
	if !rt.rooms.needsJoin(roomID) {
		return
	}
	if err := rt.writeCommand(ctx, Command{Type: CommandJoinRoom, Payload: joinRoomPayload{RoomID: roomID}}); err != nil {
		rt.rooms.clearSent(roomID)
		log.Printf("caremall: join room %s: %v", roomID, err)
	}
}

func (rt *Realtime) rejoinAll(ctx context.Context) {
	for _, roomID := range rt.rooms.list() {
		if !rt.rooms.needsJoin(roomID) {
			continue
		}
		if err := rt.writeCommand(ctx, Command{Type: CommandJoinRoom, Payload: joinRoomPayload{RoomID: roomID}}); err != nil {
			rt.rooms.clearSent(roomID)
			log.Printf("caremall: rejoin room %s: %v", roomID, err)
		}
	}
}

// ── Outbound ──────────────────────────────────────────────

func (rt *Realtime) writeCommand(ctx context.Context, cmd Command) error {
	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// sendMessage transmits a message.send directive and waits for the
// correlated acknowledgement, bounded by AckTimeout.
func (rt *Realtime) sendMessage(ctx context.Context, roomID, body, requestID string) error {
	ch := make(chan AckPayload, 1)
	rt.pendingMu.Lock()
	rt.pendingAcks[requestID] = ch
	rt.pendingMu.Unlock()

	err := rt.writeCommand(ctx, Command{
		Type:      CommandSendMessage,
		Payload:   sendMessagePayload{RoomID: roomID, Body: body},
		RequestID: requestID,
	})
	if err != nil {
		rt.dropPending(requestID)
		return err
	}

	select {
	case ack, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		if ack.Status != "ok" {
			if ack.Message != "" {
				return fmt.Errorf("caremall: send rejected: %s", ack.Message)
			}
			return errors.New("caremall: send rejected")
		}
		return nil
	case <-time.After(rt.config.AckTimeout):
		rt.dropPending(requestID)
		return ErrAckTimeout
	case <-ctx.Done():
		rt.dropPending(requestID)
		return ctx.Err()
	}
}

// Ping sends a ping and waits for the correlated pong.
func (rt *Realtime) Ping(ctx context.Context) error {
	rt.pendingMu.Lock()
	rt.pingCounter++
	requestID := fmt.Sprintf("ping-%d", rt.pingCounter)
	ch := make(chan AckPayload, 1)
	rt.pendingAcks[requestID] = ch
	rt.pendingMu.Unlock()

	err := rt.writeCommand(ctx, Command{
		Type:      CommandPing,
		Payload:   map[string]string{"requestId": requestID},
		RequestID: requestID,
	})
	if err != nil {
		rt.dropPending(requestID)
		return err
	}

	select {
	case _, ok := <-ch:
		if !ok {
			return ErrNotConnected
		}
		return nil
	case <-time.After(10 * time.Second):
		rt.dropPending(requestID)
		return errors.New("caremall: ping timeout")
	case <-ctx.Done():
		rt.dropPending(requestID)
		return ctx.Err()
	}
}

func (rt *Realtime) dropPending(requestID string) {
	rt.pendingMu.Lock()
	delete(rt.pendingAcks, requestID)
	rt.pendingMu.Unlock()
}

func (rt *Realtime) resolvePending(requestID string, ack AckPayload) {
	rt.pendingMu.Lock()
	ch, ok := rt.pendingAcks[requestID]
	if ok {
		delete(rt.pendingAcks, requestID)
	}
	rt.pendingMu.Unlock()
	if ok {
		ch <- ack
	}
}

// failPending closes every waiting ack channel so in-flight sends fail fast
// instead of riding out the full timeout.
func (rt *Realtime) failPending() {
	rt.pendingMu.Lock()
	for id, ch := range rt.pendingAcks {
		close(ch)
		delete(rt.pendingAcks, id)
	}
	rt.pendingMu.Unlock()
}

// ── Inbound ───────────────────────────────────────────────

func (rt *Realtime) readLoop(ctx context.Context) {
	for {
		rt.mu.Lock()
		conn := rt.conn
		rt.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			rt.state = StateDisconnected
			rt.conn = nil
			rt.mu.Unlock()

			rt.failPending()
			setConnected(false)
			rt.dispatcher.emitDisconnected(err.Error())

			if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
				rt.scheduleReconnect()
			}
			return
		}

		var env Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		rt.dispatch(env)
	}
}

// dispatch demultiplexes one server event. Normalization happens here, once,
// at the boundary: consumers only ever see canonical types with ids.
func (rt *Realtime) dispatch(env Envelope) {
	switch env.Type {
	case EventAck:
		var ack AckPayload
		if json.Unmarshal(env.Payload, &ack) == nil && ack.RequestID != "" {
			rt.resolvePending(ack.RequestID, ack)
		}

	case EventPong:
		var pong PongPayload
		if json.Unmarshal(env.Payload, &pong) == nil && pong.RequestID != "" {
			rt.resolvePending(pong.RequestID, AckPayload{RequestID: pong.RequestID, Status: "ok"})
		}

	case EventMessageNew:
		var wire WireMessage
		if json.Unmarshal(env.Payload, &wire) != nil {
			return
		}
		m, ok := wire.normalize()
		if !ok {
			return
		}
		// Events for rooms never viewed this session are discarded, not
		// buffered; history comes from REST when the room is opened.
		if !rt.store.Tracked(m.RoomID) {
			incEventDropped("untracked_room")
			return
		}
		if !rt.store.AppendConfirmed(m) {
			// Same permanent id already applied: server replay.
			incEventDropped("duplicate")
			return
		}
		incMessageReceived()
		rt.dispatcher.emitMessage(m)

	case EventNotification:
		var n Notification
		if json.Unmarshal(env.Payload, &n) != nil || n.ID == "" {
			return
		}
		rt.notifs.Add(n)
		incNotificationReceived()
		rt.dispatcher.emitNotification(n)

	case EventPresence:
		var p PresencePayload
		if json.Unmarshal(env.Payload, &p) != nil {
			return
		}
		rt.dispatcher.emitPresence(p.Online)
	}
}

// ── Background loops ──────────────────────────────────────

func (rt *Realtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !rt.Connected() {
				return
			}
			if err := rt.Ping(ctx); err != nil {
				rt.mu.Lock()
				conn := rt.conn
				rt.mu.Unlock()
				if conn != nil {
					conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				}
				return
			}
		}
	}
}

// runStatusPoll drives OnStateChange on a fixed interval. It exists because
// UI consumers render from polled state, not transport-internal callbacks;
// a dropped connection is observable within one interval.
func (rt *Realtime) runStatusPoll(ctx context.Context) {
	ticker := time.NewTicker(rt.config.StatusInterval)
	defer ticker.Stop()

	last := rt.State()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cur := rt.State()
			if cur != last {
				last = cur
				rt.dispatcher.emitStateChange(cur)
			}
		}
	}
}

func (rt *Realtime) scheduleReconnect() {
	delay := rt.recon.nextDelay()
	rt.setState(StateReconnecting)

	time.Sleep(delay)

	rt.mu.Lock()
	intentional := rt.intentionalClose
	rt.mu.Unlock()
	if intentional {
		return
	}

	if err := rt.Connect(context.Background()); err != nil {
		if rt.config.AutoReconnect && rt.recon.shouldReconnect() {
			rt.scheduleReconnect()
		} else {
			rt.setState(StateDisconnected)
		}
	}
}
