package journal

import (
	"context"
	"database/sql"
	"encoding/json"

	"scout-sdk/internal/events"
)

const (
	insertEntry = `INSERT INTO location_events (id, location_id, category, payload, received_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

	listByLocation = `SELECT id, location_id, category, payload, received_at
FROM location_events
WHERE location_id = $1
ORDER BY received_at DESC
LIMIT $2 OFFSET $3`
)

// PostgresRepository stores entries in the location_events table.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a journal repository that uses db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts e. Re-inserting an id is a no-op.
func (r *PostgresRepository) Create(ctx context.Context, e *Entry) error {
	_, err := r.db.ExecContext(ctx, insertEntry,
		e.ID, e.LocationID, string(e.Category), string(payloadOrEmpty(e.Payload)), e.ReceivedAt)
	return err
}

// ListByLocation returns entries for locationID, newest first.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByLocation(ctx context.Context, locationID string, limit, offset int32) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, listByLocation, locationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var (
			e        Entry
			category string
			payload  []byte
		)
		if err := rows.Scan(&e.ID, &e.LocationID, &category, &payload, &e.ReceivedAt); err != nil {
			return nil, err
		}
		e.Category = events.Category(category)
		e.Payload = payloadOrEmpty(payload)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func payloadOrEmpty(b []byte) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage("{}")
	}
	return json.RawMessage(b)
}
