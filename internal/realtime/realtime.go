// Package realtime defines the contract between the location listener and a
// publish/subscribe transport. The Pusher implementation lives in realtime/pusher;
// tests substitute their own.
package realtime

import "encoding/json"

// ConnectionState is the transport's connection status.
type ConnectionState string

const (
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Disconnected ConnectionState = "disconnected"
	Failed       ConnectionState = "failed"
	Unavailable  ConnectionState = "unavailable"
)

// StateChangeEvent is the name of the transport's connection event.
const StateChangeEvent = "state_change"

// StateChange is one connection state transition.
type StateChange struct {
	Previous ConnectionState `json:"previous"`
	Current  ConnectionState `json:"current"`
}

// Config configures a Transport.
type Config struct {
	// Key is the application key of the real-time service.
	Key string
	// Host is the websocket host; empty selects the implementation's default.
	Host string
	// AuthEndpoint authorizes private-channel subscriptions.
	AuthEndpoint string
}

// AuthConfig carries the credentials of one connect attempt.
type AuthConfig struct {
	// Headers are sent with every channel authorization request.
	Headers map[string]string
}

// Transport is a connection to the real-time service.
//
// State handlers and channel handlers run on the transport's delivery goroutine,
// one at a time, in arrival order.
type Transport interface {
	// Connect (re)connects using auth for subsequent channel authorizations.
	Connect(auth AuthConfig)
	// Disconnect closes the connection. Subscriptions are kept for the next Connect.
	Disconnect()
	// OnStateChange registers a handler for connection state transitions.
	OnStateChange(fn func(StateChange))
	// Channel returns the subscribed channel with name, if any.
	Channel(name string) (Channel, bool)
	// Subscribe subscribes to name and returns the channel.
	Subscribe(name string) Channel
	// Unsubscribe drops the subscription to name.
	Unsubscribe(name string)
}

// Channel is a subscribed channel.
type Channel interface {
	Name() string
	// Bind registers fn for event. Data is the event's JSON document.
	Bind(event string, fn func(data json.RawMessage))
}

// Factory creates a Transport from cfg.
type Factory func(cfg Config) Transport
