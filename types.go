package caremall

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Result is the generic REST API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Session Types
// ============================================================================

// Role identifies the kind of account a session belongs to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Credentials carry the identity established at login.
type Credentials struct {
	UserID string
	Role   Role
	Token  string
}

// LoginOptions is the request body for Auth.Login.
type LoginOptions struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginData is the decoded payload of a successful login.
type LoginData struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Token  string `json:"token"`
	Name   string `json:"name,omitempty"`
}

// Credentials extracts the identity triple for session construction.
func (d *LoginData) Credentials() Credentials {
	return Credentials{UserID: d.UserID, Role: d.Role, Token: d.Token}
}

// ============================================================================
// Chat Types
// ============================================================================

// MessageState distinguishes locally provisional entries from server-confirmed
// ones. A pending message carries only a LocalID; a confirmed message always
// carries a ServerID.
type MessageState string

const (
	MessagePending   MessageState = "pending"
	MessageConfirmed MessageState = "confirmed"
)

// Message is one chat message as held by the conversation store.
type Message struct {
	// ServerID is the permanent identifier. Empty while State is pending.
	ServerID string
	// LocalID is the client-generated identifier assigned at send time.
	// Empty for messages that originated from the server.
	LocalID   string
	RoomID    string
	SenderID  string
	Body      string
	CreatedAt time.Time
	State     MessageState
}

// Key returns the identifier the entry is currently known by: the server id
// once confirmed, the local id while pending.
func (m Message) Key() string {
	if m.State == MessageConfirmed {
		return m.ServerID
	}
	return m.LocalID
}

// ConversationSummary is one row of the conversation list endpoint.
type ConversationSummary struct {
	RoomID          string    `json:"roomId"`
	CounterpartName string    `json:"counterpartName"`
	LastPreview     string    `json:"lastMessagePreview"`
	LastActivity    time.Time `json:"lastActivityAt"`
}

// ============================================================================
// Notification Types
// ============================================================================

// NotificationKind classifies a push notification for display purposes.
type NotificationKind string

const (
	NotifyInfo    NotificationKind = "info"
	NotifySuccess NotificationKind = "success"
	NotifyWarning NotificationKind = "warning"
	NotifyError   NotificationKind = "error"
)

// Notification is one push notification held by the notification center.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
}

// ============================================================================
// Wire Types (messaging channel)
// ============================================================================

// Envelope is the wire format for all realtime events, both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Command is a client-to-server directive.
type Command struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	RequestID string      `json:"requestId,omitempty"`
}

// Wire event type names.
const (
	EventSessionReady = "session.ready"
	EventMessageNew   = "message.new"
	EventNotification = "notification"
	EventPresence     = "presence"
	EventAck          = "ack"
	EventPong         = "pong"

	CommandJoinRoom    = "room.join"
	CommandSendMessage = "message.send"
	CommandPing        = "ping"
)

// SessionReadyPayload is pushed by the server once a connection is accepted.
type SessionReadyPayload struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// WireMessage is the server's representation of a chat message.
type WireMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
}

// normalize converts a wire message into the canonical form. It reports false
// when a mandatory field is missing, which drops the event at the dispatcher
// boundary instead of leaking loosely-shaped payloads to every consumer.
func (w WireMessage) normalize() (Message, bool) {
	if w.ID == "" || w.RoomID == "" {
		return Message{}, false
	}
	return Message{
		ServerID:  w.ID,
		RoomID:    w.RoomID,
		SenderID:  w.SenderID,
		Body:      w.Body,
		CreatedAt: w.CreatedAt,
		State:     MessageConfirmed,
	}, true
}

// AckPayload correlates a server acknowledgement to an outbound send.
type AckPayload struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"` // "ok" or "error"
	Message   string `json:"message,omitempty"`
}

// PresencePayload lists user ids currently online.
type PresencePayload struct {
	Online []string `json:"online"`
}

// PongPayload is the response to a ping command.
type PongPayload struct {
	RequestID string `json:"requestId"`
}

type joinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	RoomID string `json:"roomId"`
	Body   string `json:"body"`
}
