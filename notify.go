package caremall

import (
	"context"
	"log"
	"sync"
)

// ============================================================================
// Notification Center
// ============================================================================

// NotificationPersister mirrors read-state changes to the backend. The REST
// NotificationsClient satisfies it; tests substitute their own.
type NotificationPersister interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
}

// AlertFunc is invoked exactly once per added notification, for audio/visual
// alerts. It runs on the caller's goroutine; keep it fast.
type AlertFunc func(Notification)

// NotificationCenter accumulates push notifications for one session and
// tracks the derived unread count. Read-state mutations are optimistic
// against local state: the persister call is best effort and never rolled
// back on failure.
type NotificationCenter struct {
	mu      sync.Mutex
	items   []Notification // newest first
	unread  int
	alert   AlertFunc
	persist NotificationPersister
}

// NewNotificationCenter creates an empty center. persist and alert may be nil.
func NewNotificationCenter(persist NotificationPersister, alert AlertFunc) *NotificationCenter {
	return &NotificationCenter{alert: alert, persist: persist}
}

// Seed merges a REST snapshot into local state, e.g. at session start. The
// snapshot is authoritative for entries it contains; notifications pushed
// before the snapshot landed are kept, so a repeat connect never loses them.
// It never fires alerts: seeded entries are not new events.
func (nc *NotificationCenter) Seed(items []Notification) {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	inSnapshot := make(map[string]struct{}, len(items))
	for _, n := range items {
		inSnapshot[n.ID] = struct{}{}
	}
	merged := make([]Notification, 0, len(items)+len(nc.items))
	for _, n := range nc.items {
		if _, ok := inSnapshot[n.ID]; !ok {
			merged = append(merged, n)
		}
	}
	nc.items = append(merged, items...)
	nc.unread = 0
	for _, n := range nc.items {
		if !n.Read {
			nc.unread++
		}
	}
	setUnread(nc.unread)
}

// Add prepends a pushed notification and fires the alert callback once.
// Receipt never implicitly marks anything read.
func (nc *NotificationCenter) Add(n Notification) {
	nc.mu.Lock()
	nc.items = append([]Notification{n}, nc.items...)
	if !n.Read {
		nc.unread++
	}
	setUnread(nc.unread)
	alert := nc.alert
	nc.mu.Unlock()

	if alert != nil {
		alert(n)
	}
}

// MarkRead flags one notification read and decrements the unread count,
// floored at zero. Marking an already-read (or unknown) id is a no-op.
func (nc *NotificationCenter) MarkRead(ctx context.Context, id string) {
	nc.mu.Lock()
	flipped := false
	for i := range nc.items {
		if nc.items[i].ID == id {
			if !nc.items[i].Read {
				nc.items[i].Read = true
				if nc.unread > 0 {
					nc.unread--
				}
				flipped = true
			}
			break
		}
	}
	setUnread(nc.unread)
	persist := nc.persist
	nc.mu.Unlock()

	if flipped && persist != nil {
		if err := persist.MarkRead(ctx, id); err != nil {
			log.Printf("caremall: mark notification read: %v", err)
		}
	}
}

// MarkAllRead flags every notification read and resets the unread count.
// Idempotent regardless of how many entries were already read.
func (nc *NotificationCenter) MarkAllRead(ctx context.Context) {
	nc.mu.Lock()
	for i := range nc.items {
		nc.items[i].Read = true
	}
	nc.unread = 0
	setUnread(0)
	persist := nc.persist
	nc.mu.Unlock()

	if persist != nil {
		if err := persist.MarkAllRead(ctx); err != nil {
			log.Printf("caremall: mark all notifications read: %v", err)
		}
	}
}

// Unread returns the derived count of notifications not yet marked read.
func (nc *NotificationCenter) Unread() int {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return nc.unread
}

// List returns a snapshot, newest first.
func (nc *NotificationCenter) List() []Notification {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	return append([]Notification{}, nc.items...)
}

// Clear drops all notifications. Called on session teardown only; durable
// deletion is the backend's concern.
func (nc *NotificationCenter) Clear() {
	nc.mu.Lock()
	defer nc.mu.Unlock()
	nc.items = nil
	nc.unread = 0
	setUnread(0)
}
