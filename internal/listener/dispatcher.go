package listener

import (
	"log/slog"
	"sync"

	"scout-sdk/internal/events"
	"scout-sdk/internal/logging"
)

// HandlerID identifies one registered handler. It is returned by every On method
// and accepted by Off.
type HandlerID uint64

// Handler receives an event and the id of the location it belongs to. The id is
// empty for connection state events.
type Handler func(e events.Event, locationID string)

// HandlerOption configures a registration.
type HandlerOption func(*registration)

// ForLocation restricts a handler to events of one location.
func ForLocation(locationID string) HandlerOption {
	return func(r *registration) {
		r.location = locationID
	}
}

type registration struct {
	id       HandlerID
	location string
	fn       Handler
}

// Dispatcher fans events out to handlers registered per category.
// Handlers run synchronously in registration order; a panicking handler is logged
// and does not stop the others.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	next     HandlerID
	handlers map[events.Category][]registration
}

// NewDispatcher returns an empty Dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logging.OrDefault(logger),
		handlers: make(map[events.Category][]registration),
	}
}

// On registers fn for category.
func (d *Dispatcher) On(category events.Category, fn Handler, opts ...HandlerOption) HandlerID {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	r := registration{id: d.next, fn: fn}
	for _, opt := range opts {
		opt(&r)
	}
	d.handlers[category] = append(d.handlers[category], r)
	return r.id
}

// Off removes the handler registered under id. It reports whether one was removed.
func (d *Dispatcher) Off(id HandlerID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for cat, regs := range d.handlers {
		for i, r := range regs {
			if r.id != id {
				continue
			}
			next := make([]registration, 0, len(regs)-1)
			next = append(next, regs[:i]...)
			next = append(next, regs[i+1:]...)
			if len(next) == 0 {
				delete(d.handlers, cat)
			} else {
				d.handlers[cat] = next
			}
			return true
		}
	}
	return false
}

// Len returns the number of handlers registered for category.
func (d *Dispatcher) Len(category events.Category) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[category])
}

// Emit delivers e to the handlers of its category that match locationID and returns
// how many ran. Events with no handlers are dropped.
func (d *Dispatcher) Emit(e events.Event, locationID string) int {
	d.mu.RLock()
	regs := d.handlers[e.Category()]
	d.mu.RUnlock()

	n := 0
	for _, r := range regs {
		if r.location != "" && r.location != locationID {
			continue
		}
		d.call(r, e, locationID)
		n++
	}
	return n
}

func (d *Dispatcher) call(r registration, e events.Event, locationID string) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("listener: handler panicked",
				"category", e.Category(), "location_id", locationID, "handler", r.id, "panic", p)
		}
	}()
	r.fn(e, locationID)
}

// typed adapts a handler for one concrete event type.
func typed[E events.Event](fn func(E, string)) Handler {
	return func(e events.Event, locationID string) {
		if v, ok := e.(E); ok {
			fn(v, locationID)
		}
	}
}
