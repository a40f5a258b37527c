// Package bridge forwards Scout location events to external sinks and keeps the
// real-time connection alive.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"scout-sdk/internal/api"
	"scout-sdk/internal/events"
	"scout-sdk/internal/listener"
	"scout-sdk/internal/logging"
	"scout-sdk/internal/realtime"
	"scout-sdk/internal/sink"
)

const (
	instrumentationName = "scout-sdk/internal/bridge"

	defaultInitialInterval = time.Second
	defaultMaxInterval     = time.Minute
	stateBuffer            = 16
)

// ErrNoLocations is returned by Run when there is nothing to subscribe to.
var ErrNoLocations = errors.New("bridge: no locations configured")

// Listener is the subset of *listener.LocationListener the bridge drives.
type Listener interface {
	Connect(ctx context.Context) error
	Disconnect()
	AddLocation(locationID string) error
	On(category events.Category, fn listener.Handler, opts ...listener.HandlerOption) listener.HandlerID
	OnConnectionState(fn func(events.ConnectionStateEvent)) listener.HandlerID
	Off(id listener.HandlerID) bool
}

// Filter decides whether a record is forwarded. Satisfied by *policy.Filter.
type Filter interface {
	Allow(ctx context.Context, r sink.Record) (bool, error)
}

// TokenInvalidator drops a cached token. Satisfied by *auth.Authenticator.
type TokenInvalidator interface {
	Invalidate(ctx context.Context) error
}

// StateReporter receives every connection state. Satisfied by *health.Reporter.
type StateReporter interface {
	Update(state realtime.ConnectionState)
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithFilter sets the forwarding filter. Without one every event is forwarded.
func WithFilter(f Filter) Option {
	return func(b *Bridge) { b.filter = f }
}

// WithTokens lets the bridge invalidate the token after the transport failed.
func WithTokens(t TokenInvalidator) Option {
	return func(b *Bridge) { b.tokens = t }
}

// WithStateReporter mirrors connection states to r.
func WithStateReporter(r StateReporter) Option {
	return func(b *Bridge) { b.reporter = r }
}

// WithBackoff sets the reconnect delays.
func WithBackoff(initial, maximum time.Duration) Option {
	return func(b *Bridge) {
		if initial > 0 {
			b.initialInterval = initial
		}
		if maximum > 0 {
			b.maxInterval = maximum
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// Bridge subscribes a listener to locations and publishes every allowed event.
type Bridge struct {
	listener  Listener
	locations []string
	filter    Filter
	tokens    TokenInvalidator
	reporter  StateReporter
	logger    *slog.Logger
	async     *sink.Async

	initialInterval time.Duration
	maxInterval     time.Duration

	forwarded metric.Int64Counter
	filtered  metric.Int64Counter

	states chan realtime.ConnectionState

	mu      sync.Mutex
	handler []listener.HandlerID
}

// New returns a Bridge publishing events of locations received by l to out.
func New(l Listener, out sink.Sink, locations []string, opts ...Option) *Bridge {
	b := &Bridge{
		listener:        l,
		locations:       append([]string(nil), locations...),
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		states:          make(chan realtime.ConnectionState, stateBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = logging.OrDefault(b.logger)
	b.async = sink.NewAsync(out, b.logger)

	meter := otel.Meter(instrumentationName)
	var err error
	if b.forwarded, err = meter.Int64Counter("scout.bridge.forwarded",
		metric.WithDescription("Events handed to sinks, by category.")); err != nil {
		b.logger.Warn("bridge: create forwarded counter", "error", err)
	}
	if b.filtered, err = meter.Int64Counter("scout.bridge.filtered",
		metric.WithDescription("Events dropped by the policy filter, by category.")); err != nil {
		b.logger.Warn("bridge: create filtered counter", "error", err)
	}
	return b
}

// Run connects, subscribes every location and forwards events until ctx is done.
// Lost connections are re-established with exponential backoff. In-flight publishes
// are awaited before Run returns.
func (b *Bridge) Run(ctx context.Context) error {
	if len(b.locations) == 0 {
		return ErrNoLocations
	}
	b.register()
	defer func() {
		b.listener.Disconnect()
		b.unregister()
		b.async.Wait()
	}()

	if err := b.connect(ctx); err != nil {
		return ignoreCanceled(ctx, err)
	}
	for _, id := range b.locations {
		if err := b.listener.AddLocation(id); err != nil {
			return err
		}
		b.logger.Info("bridge: subscribed", "location_id", id)
	}

	retry := b.newBackOff()
	for {
		select {
		case <-ctx.Done():
			return nil
		case state := <-b.states:
			switch state {
			case realtime.Connected:
				retry.Reset()
				b.resubscribe()
			case realtime.Unavailable, realtime.Failed:
				if err := b.reconnect(ctx, state, retry.NextBackOff()); err != nil {
					return ignoreCanceled(ctx, err)
				}
			}
		}
	}
}

// resubscribe re-adds every location. Channels the transport still holds are left
// alone; channels it dropped after a rejected subscription are subscribed again.
func (b *Bridge) resubscribe() {
	for _, id := range b.locations {
		if err := b.listener.AddLocation(id); err != nil {
			b.logger.Warn("bridge: resubscribe", "location_id", id, "error", err)
		}
	}
}

func (b *Bridge) register() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = append(b.handler, b.listener.OnConnectionState(b.onState))
	for _, cat := range events.Categories() {
		b.handler = append(b.handler, b.listener.On(cat, b.forward))
	}
}

func (b *Bridge) unregister() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.handler {
		b.listener.Off(id)
	}
	b.handler = nil
}

func (b *Bridge) onState(e events.ConnectionStateEvent) {
	if b.reporter != nil {
		b.reporter.Update(e.Current)
	}
	select {
	case b.states <- e.Current:
	default:
		b.logger.Warn("bridge: state buffer full, dropping transition", "state", e.Current)
	}
}

func (b *Bridge) forward(e events.Event, locationID string) {
	r, err := sink.NewRecord(e, locationID)
	if err != nil {
		b.logger.Warn("bridge: encode event", "category", e.Category(), "error", err)
		return
	}
	attrs := metric.WithAttributes(attribute.String("category", string(r.Category)))
	if b.filter != nil {
		// Allow fails open and logs; the error needs no handling here.
		if ok, _ := b.filter.Allow(context.Background(), r); !ok {
			if b.filtered != nil {
				b.filtered.Add(context.Background(), 1, attrs)
			}
			b.logger.Debug("bridge: event filtered", "category", r.Category, "location_id", locationID)
			return
		}
	}
	if b.forwarded != nil {
		b.forwarded.Add(context.Background(), 1, attrs)
	}
	b.async.Publish(r)
}

func (b *Bridge) reconnect(ctx context.Context, state realtime.ConnectionState, delay time.Duration) error {
	if state == realtime.Failed && b.tokens != nil {
		// The service refused the connection; force a fresh login.
		if err := b.tokens.Invalidate(ctx); err != nil {
			b.logger.Warn("bridge: invalidate token", "error", err)
		}
	}
	b.logger.Info("bridge: connection lost, reconnecting", "state", state, "delay", delay)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}
	return b.connect(ctx)
}

// connect retries until the listener obtains a token. Rejected credentials stop the
// retries. Transport failures surface later as state changes.
func (b *Bridge) connect(ctx context.Context) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := b.listener.Connect(ctx)
		if rejected(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b.newBackOff()),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, d time.Duration) {
			b.logger.Warn("bridge: connect failed", "error", err, "retry_in", d)
		}),
	)
	return err
}

func (b *Bridge) newBackOff() *backoff.ExponentialBackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.initialInterval
	eb.MaxInterval = b.maxInterval
	return eb
}

// rejected reports whether the login endpoint refused the credentials.
func rejected(err error) bool {
	var se *api.StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500 && se.StatusCode != http.StatusTooManyRequests
}

func ignoreCanceled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}
