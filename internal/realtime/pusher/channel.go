package pusher

import (
	"encoding/json"
	"sync"
)

type channel struct {
	name string

	mu         sync.Mutex
	handlers   map[string][]func(json.RawMessage)
	subscribed bool
}

func newChannel(name string) *channel {
	return &channel{name: name, handlers: make(map[string][]func(json.RawMessage))}
}

func (ch *channel) Name() string {
	return ch.name
}

func (ch *channel) Bind(event string, fn func(json.RawMessage)) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.handlers[event] = append(ch.handlers[event], fn)
}

// Subscribed reports whether the server confirmed the subscription on the current connection.
func (ch *channel) Subscribed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.subscribed
}

func (ch *channel) setSubscribed(v bool) {
	ch.mu.Lock()
	ch.subscribed = v
	ch.mu.Unlock()
}

func (ch *channel) handlersFor(event string) []func(json.RawMessage) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	hs := ch.handlers[event]
	out := make([]func(json.RawMessage), len(hs))
	copy(out, hs)
	return out
}
