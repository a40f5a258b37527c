package policy

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"scout-sdk/internal/events"
	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

const quietHubPolicy = `package scout.bridge

default forward := true

forward := false if {
	input.category == "hub"
}

forward := false if {
	input.category == "device_alarm"
	input.event.event == "dismissed"
}
`

func record(cat events.Category, payload string) sink.Record {
	return sink.Record{ID: "r1", LocationID: "loc1", Category: cat, Payload: json.RawMessage(payload)}
}

func TestDefaultFilter_ForwardsEverything(t *testing.T) {
	f, err := DefaultFilter(context.Background(), logging.Discard())
	if err != nil {
		t.Fatalf("DefaultFilter: %v", err)
	}
	for _, cat := range events.Categories() {
		ok, err := f.Allow(context.Background(), record(cat, `{}`))
		if err != nil || !ok {
			t.Errorf("Allow(%s) = %v, %v, want true", cat, ok, err)
		}
	}
	if err := f.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestFilter_CustomPolicy(t *testing.T) {
	f, err := NewFilter(context.Background(), quietHubPolicy, logging.Discard())
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	testCases := []struct {
		name string
		r    sink.Record
		want bool
	}{
		{"hub dropped", record(events.CategoryHub, `{"id":"h1"}`), false},
		{"alarm forwarded", record(events.CategoryDeviceAlarm, `{"event":"alarmed"}`), true},
		{"dismissed dropped", record(events.CategoryDeviceAlarm, `{"event":"dismissed"}`), false},
		{"mode forwarded", record(events.CategoryMode, `{"event":"armed"}`), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := f.Allow(context.Background(), tc.r)
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if got != tc.want {
				t.Errorf("Allow = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestFilter_UndefinedDecisionForwards(t *testing.T) {
	f, err := NewFilter(context.Background(), "package scout.bridge\n\nother := 1\n", logging.Discard())
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	if ok, err := f.Allow(context.Background(), record(events.CategoryHub, `{}`)); !ok || err != nil {
		t.Errorf("Allow = %v, %v, want true, nil", ok, err)
	}
}

func TestFilter_FailsOpen(t *testing.T) {
	f, err := NewFilter(context.Background(), "package scout.bridge\n\nforward := \"yes\"\n", logging.Discard())
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}
	ok, err := f.Allow(context.Background(), record(events.CategoryHub, `{}`))
	if !ok || err == nil {
		t.Errorf("non-boolean decision: Allow = %v, %v, want true with error", ok, err)
	}
	ok, err = f.Allow(context.Background(), record(events.CategoryHub, `{not json`))
	if !ok || err == nil {
		t.Errorf("bad payload: Allow = %v, %v, want true with error", ok, err)
	}
}

func TestNewFilter_Errors(t *testing.T) {
	if _, err := NewFilter(context.Background(), "package other\n\nforward := true\n", logging.Discard()); !errors.Is(err, ErrNoPolicyPackage) {
		t.Errorf("wrong package err = %v, want ErrNoPolicyPackage", err)
	}
	if _, err := NewFilter(context.Background(), "package scout.bridge\n\nforward if {", logging.Discard()); err == nil {
		t.Error("syntax error should fail to compile")
	}
}

func TestLoadFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.rego")
	if err := os.WriteFile(path, []byte(quietHubPolicy), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := LoadFilter(context.Background(), path, logging.Discard())
	if err != nil {
		t.Fatalf("LoadFilter: %v", err)
	}
	if ok, _ := f.Allow(context.Background(), record(events.CategoryHub, `{}`)); ok {
		t.Error("loaded policy should drop hub events")
	}

	if _, err := LoadFilter(context.Background(), "", logging.Discard()); err != nil {
		t.Errorf("LoadFilter with empty path: %v", err)
	}
	if _, err := LoadFilter(context.Background(), filepath.Join(t.TempDir(), "missing.rego"), logging.Discard()); err == nil {
		t.Error("LoadFilter of a missing file should fail")
	}
}
