// Package listener subscribes to the real-time channels of Scout locations and
// delivers their events, normalized and typed, to registered handlers.
//
// A LocationListener owns one transport. Connect authenticates it with a fresh
// bearer token, AddLocation subscribes to a location's channel, and the On methods
// register handlers per event category, optionally restricted to one location.
package listener

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"scout-sdk/internal/api"
	"scout-sdk/internal/events"
	"scout-sdk/internal/logging"
	"scout-sdk/internal/realtime"
)

const (
	// DefaultKey is the application key of Scout's real-time service.
	DefaultKey = "baf06f5a867d462e09d4"
	// AuthorizationHeader carries the bearer token on channel authorization requests.
	AuthorizationHeader = "Authorization"

	instrumentationName = "scout-sdk/internal/listener"
)

// ErrNotConnected is returned by location operations before the first Connect.
var ErrNotConnected = errors.New("listener: not connected")

// TokenSource supplies bearer tokens. Satisfied by *auth.Authenticator.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// DefaultConfig is the transport configuration for the production service.
func DefaultConfig() realtime.Config {
	return realtime.Config{
		Key:          DefaultKey,
		AuthEndpoint: api.DefaultBaseURL + "/auth/pusher",
	}
}

// Option configures a LocationListener.
type Option func(*LocationListener)

// WithConfig overrides the transport configuration. Empty fields keep their defaults.
func WithConfig(cfg realtime.Config) Option {
	return func(l *LocationListener) {
		if cfg.Key != "" {
			l.cfg.Key = cfg.Key
		}
		if cfg.Host != "" {
			l.cfg.Host = cfg.Host
		}
		if cfg.AuthEndpoint != "" {
			l.cfg.AuthEndpoint = cfg.AuthEndpoint
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *LocationListener) {
		l.logger = logger
	}
}

// LocationListener multiplexes location channels over one transport.
type LocationListener struct {
	tokens     TokenSource
	factory    realtime.Factory
	cfg        realtime.Config
	logger     *slog.Logger
	dispatcher *Dispatcher

	dispatched metric.Int64Counter
	dropped    metric.Int64Counter

	mu        sync.Mutex
	transport realtime.Transport
	state     realtime.ConnectionState
	locations map[string]struct{}
}

// New returns a disconnected LocationListener. The transport is created by factory
// on the first Connect.
func New(tokens TokenSource, factory realtime.Factory, opts ...Option) *LocationListener {
	l := &LocationListener{
		tokens:    tokens,
		factory:   factory,
		cfg:       DefaultConfig(),
		state:     realtime.Disconnected,
		locations: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrDefault(l.logger)
	l.dispatcher = NewDispatcher(l.logger)

	meter := otel.Meter(instrumentationName)
	var err error
	if l.dispatched, err = meter.Int64Counter("scout.listener.events",
		metric.WithDescription("Events delivered to handlers, by category.")); err != nil {
		l.logger.Warn("listener: create events counter", "error", err)
	}
	if l.dropped, err = meter.Int64Counter("scout.listener.dropped_device_events",
		metric.WithDescription("Device events with an unknown event tag.")); err != nil {
		l.logger.Warn("listener: create dropped counter", "error", err)
	}
	return l
}

// On registers fn for every event of category. Use the typed On methods when the
// category is known at compile time.
func (l *LocationListener) On(category events.Category, fn Handler, opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(category, fn, opts...)
}

// Off removes one handler. It reports whether the handler was registered.
func (l *LocationListener) Off(id HandlerID) bool {
	return l.dispatcher.Off(id)
}

// OnConnectionState registers fn for connection state transitions.
func (l *LocationListener) OnConnectionState(fn func(events.ConnectionStateEvent)) HandlerID {
	return l.dispatcher.On(events.CategoryConnectionState, typed(func(e events.ConnectionStateEvent, _ string) {
		fn(e)
	}))
}

// OnDeviceAlarm registers fn for devices that alarmed or were dismissed.
func (l *LocationListener) OnDeviceAlarm(fn func(events.DeviceAlarmEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryDeviceAlarm, typed(fn), opts...)
}

// OnDevicePair registers fn for devices that were paired or unpaired.
func (l *LocationListener) OnDevicePair(fn func(events.DevicePairEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryDevicePair, typed(fn), opts...)
}

// OnDeviceTrigger registers fn for triggered devices.
func (l *LocationListener) OnDeviceTrigger(fn func(events.DeviceTriggerEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryDeviceTrigger, typed(fn), opts...)
}

// OnHub registers fn for hub updates.
func (l *LocationListener) OnHub(fn func(events.HubEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryHub, typed(fn), opts...)
}

// OnMode registers fn for mode changes.
func (l *LocationListener) OnMode(fn func(events.ModeEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryMode, typed(fn), opts...)
}

// OnRfid registers fn for RFID swipes.
func (l *LocationListener) OnRfid(fn func(events.RfidEvent, string), opts ...HandlerOption) HandlerID {
	return l.dispatcher.On(events.CategoryRfid, typed(fn), opts...)
}
