package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

// mockReader serves msgs in order, then blocks until ctx is done.
type mockReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	fetchErr  []error
	committed []int64
	closed    int
}

func (m *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	m.mu.Lock()
	if len(m.fetchErr) > 0 {
		err := m.fetchErr[0]
		m.fetchErr = m.fetchErr[1:]
		m.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(m.msgs) > 0 {
		msg := m.msgs[0]
		m.msgs = m.msgs[1:]
		m.mu.Unlock()
		return msg, nil
	}
	m.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (m *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		m.committed = append(m.committed, msg.Offset)
	}
	return nil
}

func (m *mockReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func (m *mockReader) commits() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.committed...)
}

func TestNewConsumer_Validation(t *testing.T) {
	if _, err := NewConsumer(nil, "topic", "", logging.Discard()); err == nil {
		t.Error("NewConsumer without brokers should fail")
	}
	if _, err := NewConsumer([]string{"localhost:9092"}, "", "", logging.Discard()); err == nil {
		t.Error("NewConsumer without topic should fail")
	}
	c, err := NewConsumer([]string{"localhost:9092"}, "scout-events", "", logging.Discard())
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestConsumer_Run(t *testing.T) {
	reader := &mockReader{
		fetchErr: []error{errors.New("broker not available")},
		msgs: []kafka.Message{
			{Offset: 1, Value: []byte(`{"id":"r1","location_id":"loc1","category":"hub","payload":{"id":"h1"}}`)},
			{Offset: 2, Value: []byte(`not json`)},
			{Offset: 3, Value: []byte(`{"id":"r3","location_id":"loc2","category":"mode","payload":{}}`)},
		},
	}
	c := &Consumer{reader: reader, logger: logging.Discard(), handleTimeout: sink.PublishTimeout}

	ctx, cancel := context.WithCancel(context.Background())
	var got []sink.Record
	err := c.Run(ctx, func(_ context.Context, r sink.Record) error {
		got = append(got, r)
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 2 || got[0].ID != "r1" || got[1].LocationID != "loc2" {
		t.Errorf("handled = %+v", got)
	}
	if string(got[0].Payload) != `{"id":"h1"}` {
		t.Errorf("payload = %s", got[0].Payload)
	}
	commits := reader.commits()
	if len(commits) < 2 || commits[0] != 1 || commits[1] != 2 {
		t.Errorf("commits = %v, want the malformed message committed too", commits)
	}
}

func TestConsumer_HandlerErrorStops(t *testing.T) {
	reader := &mockReader{msgs: []kafka.Message{{Offset: 7, Value: []byte(`{"id":"r1","category":"hub"}`)}}}
	c := &Consumer{reader: reader, logger: logging.Discard(), handleTimeout: sink.PublishTimeout}
	boom := errors.New("db down")

	err := c.Run(context.Background(), func(context.Context, sink.Record) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("Run err = %v, want %v", err, boom)
	}
	if len(reader.commits()) != 0 {
		t.Error("failed message must not be committed")
	}
}

