// Package journal persists forwarded location events to Postgres.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"scout-sdk/internal/events"
)

// Entry is one journaled event.
type Entry struct {
	ID         string
	LocationID string
	Category   events.Category
	Payload    json.RawMessage // JSONB
	ReceivedAt time.Time
}

// Repository defines persistence for journal entries.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// ListByLocation returns the newest entries of a location first, paginated by limit and offset.
	ListByLocation(ctx context.Context, locationID string, limit, offset int32) ([]*Entry, error)
}
