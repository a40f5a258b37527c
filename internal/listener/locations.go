package listener

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"scout-sdk/internal/events"
)

const channelPrefix = "private-"

// ErrEmptyLocation is returned for an empty location id.
var ErrEmptyLocation = errors.New("listener: empty location id")

// ChannelName returns the transport channel of a location.
func ChannelName(locationID string) string {
	return channelPrefix + locationID
}

// AddLocation subscribes to the location's channel. Adding a location whose channel
// the transport still holds does nothing.
func (l *LocationListener) AddLocation(locationID string) error {
	if locationID == "" {
		return ErrEmptyLocation
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transport == nil {
		return ErrNotConnected
	}

	name := ChannelName(locationID)
	if _, ok := l.transport.Channel(name); ok {
		l.locations[locationID] = struct{}{}
		return nil
	}
	ch := l.transport.Subscribe(name)
	ch.Bind(events.UpstreamDevice, func(data json.RawMessage) { l.handleDevice(locationID, data) })
	ch.Bind(events.UpstreamHub, decoded(l, locationID, events.DecodeHub))
	ch.Bind(events.UpstreamMode, decoded(l, locationID, events.DecodeMode))
	ch.Bind(events.UpstreamRfid, decoded(l, locationID, events.DecodeRfid))
	l.locations[locationID] = struct{}{}

	l.logger.Debug("listener: location added", "location_id", locationID, "channel", name)
	return nil
}

// RemoveLocation unsubscribes from the location's channel if subscribed.
func (l *LocationListener) RemoveLocation(locationID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.transport == nil {
		return ErrNotConnected
	}
	name := ChannelName(locationID)
	if _, ok := l.transport.Channel(name); ok {
		l.transport.Unsubscribe(name)
	}
	delete(l.locations, locationID)
	return nil
}

// Locations returns the subscribed location ids in sorted order. A location whose
// channel the transport dropped after a rejected subscription is forgotten; adding it
// again subscribes anew.
func (l *LocationListener) Locations() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0, len(l.locations))
	for id := range l.locations {
		if l.transport != nil {
			if _, ok := l.transport.Channel(ChannelName(id)); !ok {
				delete(l.locations, id)
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (l *LocationListener) handleDevice(locationID string, data json.RawMessage) {
	e, err := events.ClassifyDevice(data)
	if errors.Is(err, events.ErrUnknownDeviceEvent) {
		if l.dropped != nil {
			l.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("location_id", locationID)))
		}
		l.logger.Debug("listener: device event dropped", "location_id", locationID, "error", err)
		return
	}
	if err != nil {
		l.logger.Warn("listener: undecodable device event", "location_id", locationID, "error", err)
		return
	}
	l.emit(context.Background(), e, locationID)
}

// decoded returns a channel handler that decodes with decode and emits the result.
func decoded[E events.Event](l *LocationListener, locationID string, decode func(json.RawMessage) (E, error)) func(json.RawMessage) {
	return func(data json.RawMessage) {
		e, err := decode(data)
		if err != nil {
			l.logger.Warn("listener: undecodable event", "location_id", locationID, "error", err)
			return
		}
		l.emit(context.Background(), e, locationID)
	}
}

func (l *LocationListener) emit(ctx context.Context, e events.Event, locationID string) {
	n := l.dispatcher.Emit(e, locationID)
	if l.dispatched != nil && n > 0 {
		l.dispatched.Add(ctx, int64(n), metric.WithAttributes(attribute.String("category", string(e.Category()))))
	}
}
