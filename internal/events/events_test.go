package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestClassifyDevice(t *testing.T) {
	testCases := []struct {
		tag  string
		want Category
	}{
		{"alarmed", CategoryDeviceAlarm},
		{"dismissed", CategoryDeviceAlarm},
		{"paired", CategoryDevicePair},
		{"unpaired", CategoryDevicePair},
		{"triggered", CategoryDeviceTrigger},
	}
	for _, tc := range testCases {
		t.Run(tc.tag, func(t *testing.T) {
			data := json.RawMessage(`{"id":"d1","device_id":"dev","event":"` + tc.tag + `","extra":true}`)
			e, err := ClassifyDevice(data)
			if err != nil {
				t.Fatalf("ClassifyDevice: %v", err)
			}
			if e.Category() != tc.want {
				t.Errorf("Category = %q, want %q", e.Category(), tc.want)
			}
			raw, err := Document(e)
			if err != nil {
				t.Fatalf("Document: %v", err)
			}
			if string(raw) != string(data) {
				t.Errorf("Document = %s, want the received document", raw)
			}
		})
	}
}

func TestClassifyDevice_Fields(t *testing.T) {
	e, err := ClassifyDevice(json.RawMessage(`{"event":"triggered","id":"d1"}`))
	if err != nil {
		t.Fatalf("ClassifyDevice: %v", err)
	}
	trig, ok := e.(DeviceTriggerEvent)
	if !ok {
		t.Fatalf("ClassifyDevice = %T, want DeviceTriggerEvent", e)
	}
	if trig.ID != "d1" || trig.Event != DeviceTriggered {
		t.Errorf("event = %+v, want id d1 triggered", trig.DeviceEvent)
	}
}

func TestClassifyDevice_Errors(t *testing.T) {
	if _, err := ClassifyDevice(json.RawMessage(`{"event":"tampered","id":"d1"}`)); !errors.Is(err, ErrUnknownDeviceEvent) {
		t.Errorf("unknown tag err = %v, want ErrUnknownDeviceEvent", err)
	}
	if _, err := ClassifyDevice(json.RawMessage(`{"event":"tampered"`)); err == nil || errors.Is(err, ErrUnknownDeviceEvent) {
		t.Errorf("malformed document err = %v, want decode error", err)
	}
}

func TestDecodeHub_RevivesTimes(t *testing.T) {
	data := json.RawMessage(`{"id":"h1","serial_number":"S1","status":"online","heartbeat":1579278763000,"created_at":"2020-01-17T16:32:43.000Z"}`)
	h, err := DecodeHub(data)
	if err != nil {
		t.Fatalf("DecodeHub: %v", err)
	}
	if !h.Heartbeat.Equal(time.UnixMilli(1579278763000)) {
		t.Errorf("Heartbeat = %v, want 1579278763000ms", h.Heartbeat.Time)
	}
	want := time.Date(2020, 1, 17, 16, 32, 43, 0, time.UTC)
	if h.CreatedAt == nil || !h.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", h.CreatedAt, want)
	}
	if h.Serial != "S1" || h.Status != "online" {
		t.Errorf("hub = %+v", h)
	}
	if h.Category() != CategoryHub {
		t.Errorf("Category = %q", h.Category())
	}
}

func TestEpochMillis(t *testing.T) {
	var m struct {
		Heartbeat EpochMillis `json:"heartbeat"`
	}
	if err := json.Unmarshal([]byte(`{"heartbeat":null}`), &m); err != nil {
		t.Fatalf("Unmarshal null: %v", err)
	}
	if !m.Heartbeat.IsZero() {
		t.Errorf("null heartbeat = %v, want zero", m.Heartbeat.Time)
	}
	if err := json.Unmarshal([]byte(`{"heartbeat":"soon"}`), &m); err == nil {
		t.Error("Unmarshal should reject a non-numeric heartbeat")
	}
	m.Heartbeat = EpochMillis{time.UnixMilli(1000)}
	out, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"heartbeat":1000}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestDecodeModeAndRfid(t *testing.T) {
	mode, err := DecodeMode(json.RawMessage(`{"mode_id":"m1","event":"armed"}`))
	if err != nil {
		t.Fatalf("DecodeMode: %v", err)
	}
	if mode.ModeID != "m1" || mode.Event != ModeArmed {
		t.Errorf("mode = %+v", mode)
	}
	rfid, err := DecodeRfid(json.RawMessage(`{"token":"tok","event":"swiped"}`))
	if err != nil {
		t.Fatalf("DecodeRfid: %v", err)
	}
	if rfid.Token != "tok" || rfid.Event != RfidSwiped {
		t.Errorf("rfid = %+v", rfid)
	}
	if _, err := DecodeMode(json.RawMessage(`[]`)); err == nil {
		t.Error("DecodeMode should reject an array")
	}
}

func TestDocument_WithoutRaw(t *testing.T) {
	raw, err := Document(ConnectionStateEvent{Previous: "connecting", Current: "connected"})
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if string(raw) != `{"previous":"connecting","current":"connected"}` {
		t.Errorf("Document = %s", raw)
	}
}

func TestCategories(t *testing.T) {
	cats := Categories()
	if len(cats) != 6 {
		t.Fatalf("Categories = %v, want 6 location categories", cats)
	}
	for _, c := range cats {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
		if c == CategoryConnectionState {
			t.Error("connection_state is not location scoped")
		}
	}
	if Category("bogus").Valid() {
		t.Error("bogus category should be invalid")
	}
}
