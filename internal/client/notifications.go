package client

import (
	"sync"
	"time"

	"github.com/MoonShineVFX/meal-system-sub001/internal/core/domain"
)

// Notification is a user-visible toast.
type Notification struct {
	EventType domain.EventType
	Kind      domain.NotificationKind
	Title     string
	Message   string
	Link      string
	// Tag groups notifications that replace each other.
	Tag string
}

// NotificationSink shows notifications.
type NotificationSink interface {
	Notify(n Notification)
}

// NotificationSinkFunc adapts a function to NotificationSink.
type NotificationSinkFunc func(n Notification)

func (f NotificationSinkFunc) Notify(n Notification) { f(n) }

// NotificationQueue holds tagged notifications for a short window so that a
// burst sharing one tag shows only its latest member. Untagged
// notifications pass straight through.
type NotificationQueue struct {
	sink   NotificationSink
	window time.Duration

	mu      sync.Mutex
	pending map[string]*pendingNotification
}

type pendingNotification struct {
	n     Notification
	timer *time.Timer
}

// NewNotificationQueue creates a queue. A zero window disables deduplication.
func NewNotificationQueue(sink NotificationSink, window time.Duration) *NotificationQueue {
	return &NotificationQueue{
		sink:    sink,
		window:  window,
		pending: make(map[string]*pendingNotification),
	}
}

// Enqueue shows n, or holds it to replace any pending notification with the same tag.
func (q *NotificationQueue) Enqueue(n Notification) {
	if n.Tag == "" || q.window <= 0 {
		q.sink.Notify(n)
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if p, ok := q.pending[n.Tag]; ok {
		p.n = n
		return
	}

	tag := n.Tag
	q.pending[tag] = &pendingNotification{
		n:     n,
		timer: time.AfterFunc(q.window, func() { q.release(tag) }),
	}
}

func (q *NotificationQueue) release(tag string) {
	q.mu.Lock()
	p, ok := q.pending[tag]
	delete(q.pending, tag)
	q.mu.Unlock()

	if ok {
		q.sink.Notify(p.n)
	}
}

// Pending returns the number of held notifications.
func (q *NotificationQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush shows every held notification now.
func (q *NotificationQueue) Flush() {
	q.mu.Lock()
	held := make([]Notification, 0, len(q.pending))
	for tag, p := range q.pending {
		p.timer.Stop()
		held = append(held, p.n)
		delete(q.pending, tag)
	}
	q.mu.Unlock()

	for _, n := range held {
		q.sink.Notify(n)
	}
}
