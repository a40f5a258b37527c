// Package api is the minimal Scout REST client the SDK needs: login and the
// channel authorization endpoint. Device and location CRUD are out of scope.
package api

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
)

// DefaultBaseURL is the production Scout API.
const DefaultBaseURL = "https://api.scoutalarm.com"

// maxErrorBody caps how much of a failed response body is kept on StatusError.
const maxErrorBody = 4 << 10

var (
	// ErrEmptyJWT is returned when the login endpoint answers 2xx without a token.
	ErrEmptyJWT = errors.New("api: login response has no jwt")
)

// Credentials identify a Scout member. Email and password are sent to the login endpoint only.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the login response; JWT is the signed bearer token.
type Session struct {
	JWT string `json:"jwt"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("api: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client calls the Scout REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for baseURL (DefaultBaseURL when empty). httpClient may be nil.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), http: httpClient}
}

// BaseURL returns the API base without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AuthEndpoint is the private-channel authorization URL used by the real-time transport.
func (c *Client) AuthEndpoint() string {
	return c.baseURL + "/auth/pusher"
}

// Login exchanges credentials for a Session. Returns *StatusError for non-2xx responses
// and ErrEmptyJWT when the response carries no token.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	body, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("api: decode login response: %w", err)
	}
	if session.JWT == "" {
		return nil, ErrEmptyJWT
	}
	return &session, nil
}
