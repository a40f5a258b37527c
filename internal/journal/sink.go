package journal

import (
	"context"
	"log/slog"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

// Sink journals every record. It is best-effort: failures are logged, not returned,
// so a slow or down database never fails the fanout.
type Sink struct {
	repo   Repository
	logger *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

// NewSink returns a Sink writing to repo.
func NewSink(repo Repository, logger *slog.Logger) *Sink {
	return &Sink{repo: repo, logger: logging.OrDefault(logger)}
}

func (s *Sink) Name() string { return "journal" }

// Publish writes one journal entry.
func (s *Sink) Publish(ctx context.Context, r sink.Record) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Create(ctx, EntryFromRecord(r)); err != nil {
		s.logger.Warn("journal: failed to record event", "record_id", r.ID, "category", r.Category, "error", err)
	}
	return nil
}

// EntryFromRecord maps a forwarded record to its journal entry. The entry keeps the
// record id, so writing the same record twice stores it once.
func EntryFromRecord(r sink.Record) *Entry {
	return &Entry{
		ID:         r.ID,
		LocationID: r.LocationID,
		Category:   r.Category,
		Payload:    r.Payload,
		ReceivedAt: r.ReceivedAt,
	}
}

// Close is a no-op; the database handle is owned by the caller.
func (s *Sink) Close() error { return nil }
