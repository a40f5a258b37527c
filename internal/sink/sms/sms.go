// Package sms sends a text message to configured phone numbers when a location
// goes into alarm. It talks to the SMS Local bulk API.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout-sdk/internal/events"
	"scout-sdk/internal/sink"
)

const (
	// DefaultBaseURL is the SMS Local bulk endpoint.
	DefaultBaseURL = "https://www.smslocal.com/dev/bulkV2"
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 1 << 10
)

var errNoAPIKey = errors.New("sms: API key not configured")

// Config configures the alert sink.
type Config struct {
	APIKey  string
	BaseURL string
	Sender  string
	// Numbers are digits only, with country code.
	Numbers []string
}

// Sink implements sink.Sink. Only alarm records produce a message; the rest are ignored.
type Sink struct {
	apiKey  string
	baseURL string
	sender  string
	numbers string
	http    *http.Client
}

var _ sink.Sink = (*Sink)(nil)

// New returns an alert sink. APIKey and at least one number are required.
func New(cfg Config) (*Sink, error) {
	if cfg.APIKey == "" {
		return nil, errNoAPIKey
	}
	if len(cfg.Numbers) == 0 {
		return nil, errors.New("sms: no alert numbers configured")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Sink{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		sender:  cfg.Sender,
		numbers: strings.Join(cfg.Numbers, ","),
		http:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

func (s *Sink) Name() string { return "sms" }

// alarmDoc holds the fields of device and mode documents the message uses.
type alarmDoc struct {
	Event    string `json:"event"`
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
}

// Message returns the alert text for r and whether r is an alarm at all.
func Message(r sink.Record) (string, bool) {
	var doc alarmDoc
	if len(r.Payload) > 0 {
		_ = json.Unmarshal(r.Payload, &doc)
	}
	device := doc.DeviceID
	if device == "" {
		device = doc.ID
	}
	switch r.Category {
	case events.CategoryDeviceAlarm:
		if doc.Event != string(events.DeviceAlarmed) {
			return "", false
		}
		return fmt.Sprintf("Scout: device %s alarmed at location %s", device, r.LocationID), true
	case events.CategoryDeviceTrigger:
		return fmt.Sprintf("Scout: device %s triggered at location %s", device, r.LocationID), true
	case events.CategoryMode:
		if doc.Event != string(events.ModeAlarmed) {
			return "", false
		}
		return fmt.Sprintf("Scout: location %s is in alarm", r.LocationID), true
	}
	return "", false
}

// Publish sends the alert for r, if any.
func (s *Sink) Publish(ctx context.Context, r sink.Record) error {
	msg, ok := Message(r)
	if !ok {
		return nil
	}
	body := map[string]string{
		"route":   "q",
		"numbers": s.numbers,
		"message": msg,
	}
	if s.sender != "" {
		body["sender_id"] = s.sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", s.apiKey)
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("sms: request failed status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (s *Sink) Close() error { return nil }
