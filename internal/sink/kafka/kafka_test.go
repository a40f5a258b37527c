package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"scout-sdk/internal/events"
	"scout-sdk/internal/sink"
)

type mockWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed int
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	m.msgs = append(m.msgs, msgs...)
	return m.err
}

func (m *mockWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(nil, "topic"); err == nil {
		t.Error("New without brokers should fail")
	}
	if _, err := New([]string{"localhost:9092"}, ""); err == nil {
		t.Error("New without topic should fail")
	}
	s, err := New([]string{"localhost:9092"}, "scout-events")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Topic() != "scout-events" || s.Name() != "kafka" {
		t.Errorf("sink = %s/%s", s.Name(), s.Topic())
	}
	_ = s.Close()
}

func TestSink_Publish(t *testing.T) {
	w := &mockWriter{}
	s := &Sink{writer: w, topic: "scout-events"}
	r := sink.Record{
		ID:         "r1",
		LocationID: "loc1",
		Category:   events.CategoryMode,
		Payload:    json.RawMessage(`{"mode_id":"m1","event":"armed"}`),
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.Publish(context.Background(), r); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "loc1" {
		t.Errorf("Key = %q, want loc1", msg.Key)
	}
	var got sink.Record
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("Value: %v", err)
	}
	if got.ID != "r1" || got.Category != events.CategoryMode {
		t.Errorf("Value record = %+v", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "mode" {
		t.Errorf("Headers = %v", msg.Headers)
	}
}

func TestSink_PublishError(t *testing.T) {
	boom := errors.New("leader not available")
	s := &Sink{writer: &mockWriter{err: boom}, topic: "t"}
	if err := s.Publish(context.Background(), sink.Record{}); !errors.Is(err, boom) {
		t.Errorf("Publish err = %v, want %v", err, boom)
	}
}

func TestSink_NilSafe(t *testing.T) {
	var s *Sink
	if err := s.Publish(context.Background(), sink.Record{}); err != nil {
		t.Errorf("Publish on nil sink: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil sink: %v", err)
	}
}
