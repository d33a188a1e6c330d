package caremall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// ackMode controls how the fake backend answers message.send directives.
type ackMode int

const (
	ackOK ackMode = iota
	ackReject
	ackSilent
)

// fakeBackend is an in-process stand-in for the platform: REST fixtures plus
// a websocket endpoint speaking the realtime protocol.
type fakeBackend struct {
	t   *testing.T
	srv *httptest.Server

	mu      sync.Mutex
	accepts int
	joins   []string
	conns   []*websocket.Conn
	counter int

	history map[string][]WireMessage
	chats   []ConversationSummary
	notifs  NotificationListData

	mode ackMode
	// echo pushes the confirmed copy of an accepted send through the regular
	// message.new channel, like the real server does.
	echo bool
	// readyGate, when set, delays the session.ready frame until the channel
	// is closed, keeping the handshake in flight.
	readyGate chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	b := &fakeBackend{
		t:       t,
		history: make(map[string][]WireMessage),
		echo:    true,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.handleWS)
	mux.HandleFunc("/api/", b.handleREST)
	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	b.mu.Lock()
	b.accepts++
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	ctx := context.Background()
	b.mu.Lock()
	gate := b.readyGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b.writeEnv(ctx, conn, EventSessionReady, SessionReadyPayload{UserID: "u-server", Role: RoleCustomer})

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd struct {
			Type      string          `json:"type"`
			Payload   json.RawMessage `json:"payload"`
			RequestID string          `json:"requestId"`
		}
		if json.Unmarshal(data, &cmd) != nil {
			continue
		}

		switch cmd.Type {
		case CommandJoinRoom:
			var p joinRoomPayload
			if json.Unmarshal(cmd.Payload, &p) == nil {
				b.mu.Lock()
				b.joins = append(b.joins, p.RoomID)
				b.mu.Unlock()
			}

		case CommandPing:
			b.writeEnv(ctx, conn, EventPong, PongPayload{RequestID: cmd.RequestID})

		case CommandSendMessage:
			var p sendMessagePayload
			if json.Unmarshal(cmd.Payload, &p) != nil {
				continue
			}
			b.mu.Lock()
			mode, echo := b.mode, b.echo
			b.counter++
			serverID := fmt.Sprintf("srv-%d", b.counter)
			b.mu.Unlock()

			switch mode {
			case ackSilent:
			case ackReject:
				b.writeEnv(ctx, conn, EventAck, AckPayload{RequestID: cmd.RequestID, Status: "error", Message: "blocked by vendor"})
			default:
				b.writeEnv(ctx, conn, EventAck, AckPayload{RequestID: cmd.RequestID, Status: "ok"})
				if echo {
					b.writeEnv(ctx, conn, EventMessageNew, WireMessage{
						ID:        serverID,
						RoomID:    p.RoomID,
						SenderID:  "u-server",
						Body:      p.Body,
						CreatedAt: time.Now(),
					})
				}
			}
		}
	}
}

func (b *fakeBackend) handleREST(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/api/chats":
		writeResult(w, b.chats)
	case strings.HasSuffix(path, "/messages"):
		roomID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/chats/"), "/messages")
		writeResult(w, b.history[roomID])
	case strings.HasPrefix(path, "/api/chats/"):
		roomID := strings.TrimPrefix(path, "/api/chats/")
		writeResult(w, ConversationSummary{RoomID: roomID, CounterpartName: "Vendor"})
	case path == "/api/notifications":
		writeResult(w, b.notifs)
	case strings.HasPrefix(path, "/api/notifications/"):
		writeResult(w, map[string]bool{"updated": true})
	default:
		http.NotFound(w, r)
	}
}

func writeResult(w http.ResponseWriter, data interface{}) {
	raw, _ := json.Marshal(data)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Result{OK: true, Data: raw})
}

func (b *fakeBackend) writeEnv(ctx context.Context, conn *websocket.Conn, eventType string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.t.Errorf("marshal %s payload: %v", eventType, err)
		return
	}
	data, _ := json.Marshal(Envelope{Type: eventType, Payload: raw})
	conn.Write(ctx, websocket.MessageText, data)
}

// push sends an event to every live connection.
func (b *fakeBackend) push(eventType string, payload interface{}) {
	b.mu.Lock()
	conns := append([]*websocket.Conn{}, b.conns...)
	b.mu.Unlock()
	for _, conn := range conns {
		b.writeEnv(context.Background(), conn, eventType, payload)
	}
}

// dropConns severs every live connection, simulating a network failure.
func (b *fakeBackend) dropConns() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, conn := range conns {
		conn.Close(websocket.StatusGoingAway, "dropped")
	}
}

func (b *fakeBackend) acceptCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepts
}

func (b *fakeBackend) joinCount(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, r := range b.joins {
		if r == roomID {
			n++
		}
	}
	return n
}

func (b *fakeBackend) setMode(m ackMode) {
	b.mu.Lock()
	b.mode = m
	b.mu.Unlock()
}

// newTestSession wires a session against the fake backend with test-friendly
// timings.
func newTestSession(t *testing.T, b *fakeBackend) *Session {
	client := NewClient("test-token", WithBaseURL(b.srv.URL))
	s := NewSession(client, SessionConfig{
		UserID: "u-test",
		Realtime: RealtimeConfig{
			StatusInterval:     10 * time.Millisecond,
			AckTimeout:         200 * time.Millisecond,
			HeartbeatInterval:  time.Minute,
			ReconnectBaseDelay: 10 * time.Millisecond,
			ReconnectMaxDelay:  50 * time.Millisecond,
		},
	})
	t.Cleanup(s.Teardown)
	return s
}
