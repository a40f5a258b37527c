package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"scout-sdk/internal/events"
	"scout-sdk/internal/sink"
)

type smsServer struct {
	mu     sync.Mutex
	bodies []map[string]string
	auth   string
	status int
}

func newSMSServer(t *testing.T, status int) (*smsServer, *httptest.Server) {
	t.Helper()
	s := &smsServer{status: status}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.auth = r.Header.Get("Authorization")
		s.mu.Unlock()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":"invalid request"}`))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func record(cat events.Category, payload string) sink.Record {
	return sink.Record{ID: "r1", LocationID: "loc1", Category: cat, Payload: json.RawMessage(payload)}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Numbers: []string{"1"}}); !errors.Is(err, errNoAPIKey) {
		t.Errorf("New without key err = %v", err)
	}
	if _, err := New(Config{APIKey: "k"}); err == nil {
		t.Error("New without numbers should fail")
	}
	s, err := New(Config{APIKey: "k", Numbers: []string{"911234567890"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q, want default", s.baseURL)
	}
	if s.http.Timeout != defaultTimeout {
		t.Errorf("timeout = %v, want %v", s.http.Timeout, defaultTimeout)
	}
}

func TestMessage(t *testing.T) {
	testCases := []struct {
		name  string
		r     sink.Record
		want  string
		alert bool
	}{
		{"device alarmed", record(events.CategoryDeviceAlarm, `{"event":"alarmed","id":"d1"}`), "Scout: device d1 alarmed at location loc1", true},
		{"device dismissed", record(events.CategoryDeviceAlarm, `{"event":"dismissed","id":"d1"}`), "", false},
		{"device triggered", record(events.CategoryDeviceTrigger, `{"event":"triggered","id":"e1","device_id":"d2"}`), "Scout: device d2 triggered at location loc1", true},
		{"mode alarmed", record(events.CategoryMode, `{"event":"alarmed"}`), "Scout: location loc1 is in alarm", true},
		{"mode armed", record(events.CategoryMode, `{"event":"armed"}`), "", false},
		{"hub", record(events.CategoryHub, `{"id":"h1"}`), "", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, alert := Message(tc.r)
			if alert != tc.alert || got != tc.want {
				t.Errorf("Message = %q, %v, want %q, %v", got, alert, tc.want, tc.alert)
			}
		})
	}
}

func TestPublish_SendsAlert(t *testing.T) {
	server, srv := newSMSServer(t, http.StatusOK)
	s, err := New(Config{APIKey: "test-api-key", BaseURL: srv.URL, Sender: "SCOUT", Numbers: []string{"111", "222"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.Publish(context.Background(), record(events.CategoryDeviceAlarm, `{"event":"alarmed","id":"d1"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := s.Publish(context.Background(), record(events.CategoryHub, `{}`)); err != nil {
		t.Fatalf("Publish hub: %v", err)
	}

	server.mu.Lock()
	defer server.mu.Unlock()
	if len(server.bodies) != 1 {
		t.Fatalf("requests = %d, want 1 (hub ignored)", len(server.bodies))
	}
	if server.auth != "test-api-key" {
		t.Errorf("Authorization = %q", server.auth)
	}
	body := server.bodies[0]
	if body["numbers"] != "111,222" || body["sender_id"] != "SCOUT" || body["route"] != "q" {
		t.Errorf("body = %v", body)
	}
	if !strings.Contains(body["message"], "d1") {
		t.Errorf("message = %q, want device id", body["message"])
	}
}

func TestPublish_Non200Status(t *testing.T) {
	_, srv := newSMSServer(t, http.StatusBadRequest)
	s, err := New(Config{APIKey: "k", BaseURL: srv.URL, Numbers: []string{"1"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Publish(context.Background(), record(events.CategoryMode, `{"event":"alarmed"}`))
	if err == nil {
		t.Fatal("expected error for non-200 status")
	}
	if !strings.Contains(err.Error(), "status=400") || !strings.Contains(err.Error(), "invalid request") {
		t.Errorf("error = %q, want status and body", err.Error())
	}
}

func TestPublish_CanceledContext(t *testing.T) {
	_, srv := newSMSServer(t, http.StatusOK)
	s, err := New(Config{APIKey: "k", BaseURL: srv.URL, Numbers: []string{"1"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Publish(ctx, record(events.CategoryMode, `{"event":"alarmed"}`)); err == nil {
		t.Error("Publish with canceled context should fail")
	}
}
