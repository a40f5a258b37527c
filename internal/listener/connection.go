package listener

import (
	"context"

	"scout-sdk/internal/events"
	"scout-sdk/internal/realtime"
)

// Connect authenticates and (re)connects the transport. The first call creates the
// transport; every call fetches a token and passes it with the connect. If the token
// cannot be obtained the error is returned and the transport is left alone.
func (l *LocationListener) Connect(ctx context.Context) error {
	token, err := l.tokens.Token(ctx)
	if err != nil {
		return err
	}

	l.mu.Lock()
	if l.transport == nil {
		l.transport = l.factory(l.cfg)
		l.transport.OnStateChange(l.handleStateChange)
	}
	t := l.transport
	l.mu.Unlock()

	t.Connect(realtime.AuthConfig{Headers: map[string]string{AuthorizationHeader: token}})
	return nil
}

// Disconnect closes the transport. It does nothing before the first Connect.
func (l *LocationListener) Disconnect() {
	l.mu.Lock()
	t := l.transport
	l.mu.Unlock()
	if t != nil {
		t.Disconnect()
	}
}

// ConnectionState returns the last state reported by the transport.
func (l *LocationListener) ConnectionState() realtime.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *LocationListener) handleStateChange(sc realtime.StateChange) {
	l.mu.Lock()
	l.state = sc.Current
	l.mu.Unlock()

	l.logger.Info("listener: connection state changed", "previous", sc.Previous, "current", sc.Current)
	l.emit(context.Background(), events.ConnectionStateEvent{Previous: sc.Previous, Current: sc.Current}, "")
}
