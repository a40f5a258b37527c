package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

// DefaultGroupID is the consumer group used when none is configured.
const DefaultGroupID = "scout-journal-worker"

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// HandleFunc processes one record read from the topic.
type HandleFunc func(ctx context.Context, r sink.Record) error

// Consumer reads records written by Sink.
type Consumer struct {
	reader        messageReader
	logger        *slog.Logger
	handleTimeout time.Duration
}

// NewConsumer creates a consumer of topic in groupID. Call Close when shutting down.
func NewConsumer(brokers []string, topic, groupID string, logger *slog.Logger) (*Consumer, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("kafka: brokers and topic required")
	}
	if groupID == "" {
		groupID = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  time.Second,
	})
	return &Consumer{reader: reader, logger: logging.OrDefault(logger), handleTimeout: 10 * time.Second}, nil
}

// Run hands every record to handle until ctx is done. A message is committed once
// handled; undecodable messages are logged and committed so they are not redelivered.
// A handler error leaves the message uncommitted and stops Run.
func (c *Consumer) Run(ctx context.Context, handle HandleFunc) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka: fetch failed", "error", err)
			continue
		}

		var r sink.Record
		if err := json.Unmarshal(msg.Value, &r); err != nil {
			c.logger.Warn("kafka: skipping malformed record", "offset", msg.Offset, "partition", msg.Partition, "error", err)
		} else {
			handleCtx, cancel := context.WithTimeout(ctx, c.handleTimeout)
			err := handle(handleCtx, r)
			cancel()
			if err != nil {
				return err
			}
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka: commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

// Close closes the reader.
func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
