package pusher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Protocol event names.
const (
	eventConnectionEstablished = "pusher:connection_established"
	eventError                 = "pusher:error"
	eventPing                  = "pusher:ping"
	eventPong                  = "pusher:pong"
	eventSubscribe             = "pusher:subscribe"
	eventUnsubscribe           = "pusher:unsubscribe"
	eventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
	eventSubscriptionError     = "pusher:subscription_error"
)

const privatePrefix = "private-"

// ErrAuthorization is returned when the auth endpoint refuses a channel.
var ErrAuthorization = errors.New("pusher: channel authorization failed")

// message is one protocol frame. Data is a JSON string on inbound channel events
// and a JSON object on most other frames.
type message struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type connectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type protocolError struct {
	Message string `json:"message"`
	Code    *int   `json:"code"`
}

// fatal reports whether the error code forbids reconnecting with the same settings.
func (e protocolError) fatal() bool {
	return e.Code != nil && *e.Code >= 4000 && *e.Code <= 4099
}

// unwrapData returns the JSON document carried in data, decoding it first when it
// arrives as a JSON string.
func unwrapData(data json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}

func newMessage(event string, data any) (message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return message{}, err
	}
	return message{Event: event, Data: raw}, nil
}

type authResponse struct {
	Auth string `json:"auth"`
}

// authorize asks the auth endpoint to sign a private channel subscription.
func authorize(ctx context.Context, client *http.Client, endpoint, socketID, channel string, headers map[string]string) (string, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pusher: authorize %s: %w", channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return "", fmt.Errorf("%w: %s: status %d: %s", ErrAuthorization, channel, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var ar authResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return "", fmt.Errorf("pusher: decode auth response: %w", err)
	}
	if ar.Auth == "" {
		return "", fmt.Errorf("%w: %s: empty auth", ErrAuthorization, channel)
	}
	return ar.Auth, nil
}
