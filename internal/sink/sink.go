// Package sink forwards location events to external systems. Delivery is
// best-effort: a failing sink is logged and never blocks event dispatch.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"scout-sdk/internal/events"
	"scout-sdk/internal/logging"
)

// PublishTimeout bounds a single asynchronous publish.
const PublishTimeout = 5 * time.Second

// Record is one forwarded event.
type Record struct {
	ID         string          `json:"id"`
	LocationID string          `json:"location_id,omitempty"`
	Category   events.Category `json:"category"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// NewRecord wraps e, received for locationID, in a Record with a fresh id.
func NewRecord(e events.Event, locationID string) (Record, error) {
	if e == nil {
		return Record{}, errors.New("sink: nil event")
	}
	payload, err := events.Document(e)
	if err != nil {
		return Record{}, fmt.Errorf("sink: encode %s event: %w", e.Category(), err)
	}
	return Record{
		ID:         uuid.NewString(),
		LocationID: locationID,
		Category:   e.Category(),
		Payload:    payload,
		ReceivedAt: time.Now().UTC(),
	}, nil
}

// Sink publishes records to one destination.
type Sink interface {
	Name() string
	// Publish writes r. Implementations should honor ctx cancellation.
	Publish(ctx context.Context, r Record) error
	// Close releases resources. Safe to call more than once.
	Close() error
}

// Async publishes records in the background, each bounded by PublishTimeout, so the
// caller is never blocked. Errors are logged.
type Async struct {
	sink   Sink
	logger *slog.Logger
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsync returns an Async over s. A nil s drops every record.
func NewAsync(s Sink, logger *slog.Logger) *Async {
	return &Async{sink: s, logger: logging.OrDefault(logger)}
}

// Publish starts publishing r and returns immediately. Records published after
// Wait are dropped.
func (a *Async) Publish(r Record) {
	if a.sink == nil {
		return
	}
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Debug("sink: publish after shutdown dropped", "sink", a.sink.Name(), "record_id", r.ID)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()
		if err := a.sink.Publish(ctx, r); err != nil {
			a.logger.Warn("sink: async publish failed", "sink", a.sink.Name(), "record_id", r.ID, "error", err)
		}
	}()
}

// Wait stops accepting records and blocks until every started publish has finished.
func (a *Async) Wait() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}

// Fanout publishes every record to all of its sinks concurrently.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

var _ Sink = (*Fanout)(nil)

// NewFanout returns a Fanout over sinks. Nil sinks are skipped.
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	f := &Fanout{logger: logging.OrDefault(logger)}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Name() string { return "fanout" }

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish writes r to every sink and returns the first failure. Every failure is logged.
func (f *Fanout) Publish(ctx context.Context, r Record) error {
	var g errgroup.Group
	for _, s := range f.sinks {
		g.Go(func() error {
			if err := s.Publish(ctx, r); err != nil {
				f.logger.Warn("sink: publish failed", "sink", s.Name(), "record_id", r.ID, "error", err)
				return fmt.Errorf("%s: %w", s.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Close closes every sink and joins their errors.
func (f *Fanout) Close() error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
