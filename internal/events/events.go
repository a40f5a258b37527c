// Package events holds the normalized location events delivered to listeners.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"scout-sdk/internal/realtime"
)

// Category identifies a class of events handlers register for.
type Category string

const (
	CategoryConnectionState Category = "connection_state"
	CategoryDeviceAlarm     Category = "device_alarm"
	CategoryDevicePair      Category = "device_pair"
	CategoryDeviceTrigger   Category = "device_trigger"
	CategoryHub             Category = "hub"
	CategoryMode            Category = "mode"
	CategoryRfid            Category = "rfid"
)

// Upstream event names bound on every location channel.
const (
	UpstreamDevice = "device"
	UpstreamHub    = "hub"
	UpstreamMode   = "mode"
	UpstreamRfid   = "rfid"
)

// Categories returns the location-scoped categories.
func Categories() []Category {
	return []Category{
		CategoryDeviceAlarm,
		CategoryDevicePair,
		CategoryDeviceTrigger,
		CategoryHub,
		CategoryMode,
		CategoryRfid,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryConnectionState, CategoryDeviceAlarm, CategoryDevicePair, CategoryDeviceTrigger,
		CategoryHub, CategoryMode, CategoryRfid:
		return true
	}
	return false
}

// Event is implemented by every event type in this package and nothing else.
type Event interface {
	Category() Category
	isEvent()
}

// DeviceEventType is the "event" tag of a device event.
type DeviceEventType string

const (
	DeviceAlarmed   DeviceEventType = "alarmed"
	DeviceDismissed DeviceEventType = "dismissed"
	DevicePaired    DeviceEventType = "paired"
	DeviceUnpaired  DeviceEventType = "unpaired"
	DeviceTriggered DeviceEventType = "triggered"
)

// ModeState is the "event" tag of a mode event.
type ModeState string

const (
	ModeArming    ModeState = "arming"
	ModeArmed     ModeState = "armed"
	ModeDisarmed  ModeState = "disarmed"
	ModeAlarmed   ModeState = "alarmed"
	ModeTriggered ModeState = "triggered"
)

// RfidEventType is the "event" tag of an RFID event.
type RfidEventType string

const RfidSwiped RfidEventType = "swiped"

// EpochMillis is a time carried on the wire as Unix milliseconds.
type EpochMillis struct {
	time.Time
}

func (t *EpochMillis) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		var f float64
		if err2 := json.Unmarshal(data, &f); err2 != nil {
			return fmt.Errorf("events: invalid epoch millis %s: %w", data, err)
		}
		ms = int64(f)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t EpochMillis) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UnixMilli())
}

// ConnectionStateEvent reports a transport state transition.
type ConnectionStateEvent struct {
	Previous realtime.ConnectionState `json:"previous"`
	Current  realtime.ConnectionState `json:"current"`
}

func (ConnectionStateEvent) Category() Category { return CategoryConnectionState }
func (ConnectionStateEvent) isEvent()           {}

// DeviceEvent is the payload of the upstream "device" event.
type DeviceEvent struct {
	ID       string          `json:"id"`
	DeviceID string          `json:"device_id,omitempty"`
	Event    DeviceEventType `json:"event"`
	// Raw is the document as received, including fields not mapped above.
	Raw json.RawMessage `json:"-"`
}

// DeviceAlarmEvent is a device event tagged alarmed or dismissed.
type DeviceAlarmEvent struct{ DeviceEvent }

// DevicePairEvent is a device event tagged paired or unpaired.
type DevicePairEvent struct{ DeviceEvent }

// DeviceTriggerEvent is a device event tagged triggered.
type DeviceTriggerEvent struct{ DeviceEvent }

func (DeviceAlarmEvent) Category() Category   { return CategoryDeviceAlarm }
func (DeviceAlarmEvent) isEvent()             {}
func (DevicePairEvent) Category() Category    { return CategoryDevicePair }
func (DevicePairEvent) isEvent()              {}
func (DeviceTriggerEvent) Category() Category { return CategoryDeviceTrigger }
func (DeviceTriggerEvent) isEvent()           {}

// HubEvent is the payload of the upstream "hub" event: the hub's current record.
type HubEvent struct {
	ID         string      `json:"id"`
	LocationID string      `json:"location_id,omitempty"`
	Serial     string      `json:"serial_number,omitempty"`
	Status     string      `json:"status,omitempty"`
	Heartbeat  EpochMillis `json:"heartbeat"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`

	Raw json.RawMessage `json:"-"`
}

func (HubEvent) Category() Category { return CategoryHub }
func (HubEvent) isEvent()           {}

// ModeEvent is the payload of the upstream "mode" event.
type ModeEvent struct {
	ModeID string    `json:"mode_id"`
	Event  ModeState `json:"event"`

	Raw json.RawMessage `json:"-"`
}

func (ModeEvent) Category() Category { return CategoryMode }
func (ModeEvent) isEvent()           {}

// RfidEvent is the payload of the upstream "rfid" event.
type RfidEvent struct {
	Token string        `json:"token"`
	Event RfidEventType `json:"event"`

	Raw json.RawMessage `json:"-"`
}

func (RfidEvent) Category() Category { return CategoryRfid }
func (RfidEvent) isEvent()           {}
