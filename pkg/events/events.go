// Package events carries UI notifications raised by tenant switches and
// route denials to in-process subscribers and, optionally, to other
// processes through Redis.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/platinummonkey/tenantgate/pkg/async"
)

// Event names
const (
	TenantChanged          = "tenantChanged"
	TenantSwitched         = "tenantSwitched"
	TenantExperienceLoaded = "tenantExperienceLoaded"
	ShowToast              = "showToast"
)

// Event is one notification for a session
type Event struct {
	Name      string                 `json:"name"`
	SessionID string                 `json:"sessionId"`
	Detail    map[string]interface{} `json:"detail,omitempty"`
	At        time.Time              `json:"at"`
}

// Handler receives published events
type Handler func(Event)

// Forwarder ships events out of the process
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

// Bus dispatches events synchronously to subscribers. Forwarding runs in
// the background and never blocks Publish.
type Bus struct {
	mu        sync.RWMutex
	handlers  map[string][]Handler
	all       []Handler
	forwarder Forwarder
	timeout   time.Duration
}

// NewBus creates a bus. forwarder may be nil.
func NewBus(forwarder Forwarder) *Bus {
	return &Bus{
		handlers:  make(map[string][]Handler),
		forwarder: forwarder,
		timeout:   2 * time.Second,
	}
}

// Subscribe registers a handler for one event name, or for every event
// when name is empty
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if name == "" {
		b.all = append(b.all, h)
		return
	}
	b.handlers[name] = append(b.handlers[name], h)
}

// Publish delivers the event
func (b *Bus) Publish(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[e.Name])+len(b.all))
	handlers = append(handlers, b.handlers[e.Name]...)
	handlers = append(handlers, b.all...)
	forwarder := b.forwarder
	b.mu.RUnlock()

	for _, h := range handlers {
		h(e)
	}

	if forwarder != nil {
		async.SafeGo(context.WithoutCancel(ctx), b.timeout, "forward "+e.Name, func(ctx context.Context) error {
			return forwarder.Forward(ctx, e)
		})
	}
}

// Toast builds a showToast event
func Toast(sessionID, level, message string) Event {
	return Event{
		Name:      ShowToast,
		SessionID: sessionID,
		Detail: map[string]interface{}{
			"type":    level,
			"message": message,
		},
	}
}
