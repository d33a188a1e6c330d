// Package caremall provides the official Go SDK for the CareMall platform's
// messaging surface: the conversation/notification REST endpoints and the
// realtime chat channel.
//
// Example:
//
//	client := caremall.NewClient(token)
//
//	// REST collaborators
//	convos, _ := client.Conversations.List(ctx)
//	history, _ := client.Conversations.History(ctx, "room-42", nil)
//
//	// Realtime session
//	sess := caremall.NewSession(client, caremall.SessionConfig{UserID: "u1"})
//	defer sess.Teardown()
//	sess.Realtime().OnMessage(func(m caremall.Message) { fmt.Println(m.Body) })
//	sess.Connect(ctx)
//	sess.OpenConversation(ctx, "room-42")
//	sess.Send(ctx, "room-42", "hello")
package caremall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Environment
// ============================================================================

type Environment string

const (
	Production Environment = "production"
)

var environments = map[Environment]string{
	Production: "https://api.caremall.shop",
}

const (
	DefaultBaseURL = "https://api.caremall.shop"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the REST collaborator client. It owns no chat state; it only
// speaks the platform HTTP contract.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	Auth          *AuthClient
	Conversations *ConversationsClient
	Notifications *NotificationsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithEnvironment(env Environment) ClientOption {
	return func(c *Client) {
		if u, ok := environments[env]; ok {
			c.baseURL = u
		}
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// NewClient creates a new CareMall client.
// token is optional; pass "" before login and update with SetToken.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Auth = &AuthClient{client: c}
	c.Conversations = &ConversationsClient{client: c}
	c.Notifications = &NotificationsClient{client: c}
	return c
}

// SetToken sets or updates the auth token, e.g. after login.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, query map[string]string) (*Result, error) {
	data, err := c.doRequest(ctx, method, path, body, query)
	if err != nil {
		return nil, err
	}
	return decodeJSON[Result](data)
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

func paginationQuery(opts *PaginationOptions) map[string]string {
	if opts == nil {
		return nil
	}
	q := map[string]string{}
	if opts.Limit > 0 {
		q["limit"] = fmt.Sprintf("%d", opts.Limit)
	}
	if opts.Before != "" {
		q["before"] = opts.Before
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// PaginationOptions bounds a history fetch.
type PaginationOptions struct {
	Limit  int
	Before string
}

// ============================================================================
// Sub-Clients
// ============================================================================

// AuthClient handles login and logout. Authentication logic itself is the
// backend's; this client only consumes the endpoints.
type AuthClient struct{ client *Client }

func (a *AuthClient) Login(ctx context.Context, opts *LoginOptions) (*LoginData, error) {
	res, err := a.client.do(ctx, "POST", "/api/auth/login", opts, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("login failed")
	}
	var data LoginData
	if err := res.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode login data: %w", err)
	}
	return &data, nil
}

func (a *AuthClient) Logout(ctx context.Context) error {
	_, err := a.client.do(ctx, "POST", "/api/auth/logout", nil, nil)
	return err
}

// ConversationsClient handles the conversation list and message history,
// the backfill channel; live updates arrive on the realtime connection.
type ConversationsClient struct{ client *Client }

func (cv *ConversationsClient) List(ctx context.Context) ([]ConversationSummary, error) {
	res, err := cv.client.do(ctx, "GET", "/api/chats", nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("list conversations failed")
	}
	var list []ConversationSummary
	if err := res.Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return list, nil
}

func (cv *ConversationsClient) Get(ctx context.Context, roomID string) (*ConversationSummary, error) {
	res, err := cv.client.do(ctx, "GET", "/api/chats/"+roomID, nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("get conversation failed")
	}
	var summary ConversationSummary
	if err := res.Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	return &summary, nil
}

// History fetches the ordered message history for a room.
func (cv *ConversationsClient) History(ctx context.Context, roomID string, opts *PaginationOptions) ([]WireMessage, error) {
	res, err := cv.client.do(ctx, "GET", "/api/chats/"+roomID+"/messages", nil, paginationQuery(opts))
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("fetch history failed")
	}
	var msgs []WireMessage
	if err := res.Decode(&msgs); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return msgs, nil
}

// NotificationsClient persists notification read-state. The notification
// center mirrors these calls optimistically; failures here are logged by the
// caller, never rolled back.
type NotificationsClient struct{ client *Client }

// NotificationListData is the decoded payload of the notification list.
type NotificationListData struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

func (n *NotificationsClient) List(ctx context.Context) (*NotificationListData, error) {
	res, err := n.client.do(ctx, "GET", "/api/notifications", nil, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		if res.Error != nil {
			return nil, res.Error
		}
		return nil, fmt.Errorf("list notifications failed")
	}
	var data NotificationListData
	if err := res.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return &data, nil
}

func (n *NotificationsClient) MarkRead(ctx context.Context, id string) error {
	res, err := n.client.do(ctx, "POST", "/api/notifications/"+id+"/read", nil, nil)
	if err != nil {
		return err
	}
	if !res.OK && res.Error != nil {
		return res.Error
	}
	return nil
}

func (n *NotificationsClient) MarkAllRead(ctx context.Context) error {
	res, err := n.client.do(ctx, "POST", "/api/notifications/read-all", nil, nil)
	if err != nil {
		return err
	}
	if !res.OK && res.Error != nil {
		return res.Error
	}
	return nil
}

// WSUrl returns the realtime endpoint derived from the API origin.
func (c *Client) WSUrl() string {
	base := strings.Replace(c.baseURL, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	if c.token != "" {
		return base + "/ws?token=" + c.token
	}
	return base + "/ws"
}
