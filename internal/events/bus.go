// Package events provides the in-process event bus shared by views.
package events

import (
	"sync"
	"time"

	"github.com/quarrydata/quarry/internal/metrics"
	"github.com/quarrydata/quarry/pkg/protocol"
)

const (
	// EventAlert carries a user-facing notification.
	EventAlert = "alert"
	// EventLogin fires whenever the viewer identity changes, including
	// logout. Holders of cross-view state must reset on it.
	EventLogin = "login"
	// EventRemote carries a server-sent notification forwarded from the
	// notification stream.
	EventRemote = "remote"
)

// Alert is a user-facing notification.
type Alert struct {
	Icon    string
	Text    string
	Type    string // "success", "warning", "danger", "info"
	Timeout time.Duration
}

// Event is a single bus message.
type Event struct {
	Type   string
	Alert  *Alert
	UserID string // set for EventLogin; empty means logged out
	Remote *protocol.Notification
}

// Bus fans events out to subscribers. Publish is non-blocking and drops
// events for slow consumers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe adds a subscriber and returns its channel. The caller must
// call Unsubscribe when done.
func (b *Bus) Subscribe() chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
}

// Publish sends an event to all subscribers.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop event for slow consumer
		}
	}
	metrics.RecordBusEvent(event.Type)
}

// Count returns the current number of subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// PublishAlert is shorthand for publishing an EventAlert.
func (b *Bus) PublishAlert(icon, text, alertType string, timeout time.Duration) {
	b.Publish(Event{
		Type:  EventAlert,
		Alert: &Alert{Icon: icon, Text: text, Type: alertType, Timeout: timeout},
	})
}

// PublishLogin announces an identity change. userID is empty on logout.
func (b *Bus) PublishLogin(userID string) {
	b.Publish(Event{Type: EventLogin, UserID: userID})
}
