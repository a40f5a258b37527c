package events

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownDeviceEvent is returned by ClassifyDevice for tags outside the known set.
var ErrUnknownDeviceEvent = errors.New("events: unknown device event")

// ClassifyDevice decodes a device document and reclassifies it by its event tag:
// alarmed and dismissed become DeviceAlarmEvent, paired and unpaired DevicePairEvent,
// triggered DeviceTriggerEvent. Other tags return ErrUnknownDeviceEvent.
func ClassifyDevice(data json.RawMessage) (Event, error) {
	var d DeviceEvent
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("events: decode device: %w", err)
	}
	d.Raw = data
	switch d.Event {
	case DeviceAlarmed, DeviceDismissed:
		return DeviceAlarmEvent{DeviceEvent: d}, nil
	case DevicePaired, DeviceUnpaired:
		return DevicePairEvent{DeviceEvent: d}, nil
	case DeviceTriggered:
		return DeviceTriggerEvent{DeviceEvent: d}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeviceEvent, d.Event)
	}
}

// DecodeHub decodes a hub document.
func DecodeHub(data json.RawMessage) (HubEvent, error) {
	var h HubEvent
	if err := json.Unmarshal(data, &h); err != nil {
		return HubEvent{}, fmt.Errorf("events: decode hub: %w", err)
	}
	h.Raw = data
	return h, nil
}

// DecodeMode decodes a mode document.
func DecodeMode(data json.RawMessage) (ModeEvent, error) {
	var m ModeEvent
	if err := json.Unmarshal(data, &m); err != nil {
		return ModeEvent{}, fmt.Errorf("events: decode mode: %w", err)
	}
	m.Raw = data
	return m, nil
}

// DecodeRfid decodes an RFID document.
func DecodeRfid(data json.RawMessage) (RfidEvent, error) {
	var r RfidEvent
	if err := json.Unmarshal(data, &r); err != nil {
		return RfidEvent{}, fmt.Errorf("events: decode rfid: %w", err)
	}
	r.Raw = data
	return r, nil
}

// Document returns the JSON form of e: the received document when there is one.
func Document(e Event) (json.RawMessage, error) {
	var raw json.RawMessage
	switch v := e.(type) {
	case DeviceAlarmEvent:
		raw = v.Raw
	case DevicePairEvent:
		raw = v.Raw
	case DeviceTriggerEvent:
		raw = v.Raw
	case HubEvent:
		raw = v.Raw
	case ModeEvent:
		raw = v.Raw
	case RfidEvent:
		raw = v.Raw
	}
	if len(raw) > 0 {
		return raw, nil
	}
	return json.Marshal(e)
}
