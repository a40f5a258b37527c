package listener

import (
	"context"
	"encoding/json"
	"sync"

	"scout-sdk/internal/realtime"
)

type fakeChannel struct {
	name string

	mu    sync.Mutex
	binds map[string][]func(json.RawMessage)
}

func (c *fakeChannel) Name() string { return c.name }

func (c *fakeChannel) Bind(event string, fn func(json.RawMessage)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.binds[event] = append(c.binds[event], fn)
}

func (c *fakeChannel) bindCount(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.binds[event])
}

// emit simulates an upstream event on the channel.
func (c *fakeChannel) emit(event, data string) {
	c.mu.Lock()
	hs := append([]func(json.RawMessage){}, c.binds[event]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(json.RawMessage(data))
	}
}

// fakeTransport records calls; tests drive state changes and channel events by hand.
type fakeTransport struct {
	cfg realtime.Config

	mu            sync.Mutex
	connects      []realtime.AuthConfig
	disconnects   int
	stateHandlers []func(realtime.StateChange)
	channels      map[string]*fakeChannel
	subscribes    []string
	unsubscribes  []string
}

func (f *fakeTransport) Connect(auth realtime.AuthConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, auth)
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
}

func (f *fakeTransport) OnStateChange(fn func(realtime.StateChange)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stateHandlers = append(f.stateHandlers, fn)
}

func (f *fakeTransport) Channel(name string) (realtime.Channel, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[name]
	if !ok {
		return nil, false
	}
	return ch, true
}

func (f *fakeTransport) Subscribe(name string) realtime.Channel {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, name)
	ch := &fakeChannel{name: name, binds: make(map[string][]func(json.RawMessage))}
	f.channels[name] = ch
	return ch
}

func (f *fakeTransport) Unsubscribe(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, name)
	delete(f.channels, name)
}

// reject drops a channel the way the transport does after a refused subscription.
func (f *fakeTransport) reject(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, name)
}

func (f *fakeTransport) emitState(prev, cur realtime.ConnectionState) {
	f.mu.Lock()
	hs := append([]func(realtime.StateChange){}, f.stateHandlers...)
	f.mu.Unlock()
	for _, h := range hs {
		h(realtime.StateChange{Previous: prev, Current: cur})
	}
}

func (f *fakeTransport) channel(name string) *fakeChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[name]
}

// fakeFactory hands out one fakeTransport and counts creations.
type fakeFactory struct {
	mu        sync.Mutex
	created   int
	transport *fakeTransport
}

func (ff *fakeFactory) New(cfg realtime.Config) realtime.Transport {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.created++
	ff.transport = &fakeTransport{cfg: cfg, channels: make(map[string]*fakeChannel)}
	return ff.transport
}

// mockTokens returns token (or err) and counts calls.
type mockTokens struct {
	mu    sync.Mutex
	token string
	err   error
	calls int
}

func (m *mockTokens) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.token, m.err
}

func (m *mockTokens) set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}
