package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/auth" {
			t.Errorf("request = %s %s, want POST /auth", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if creds.Email != "e" || creds.Password != "p" {
			t.Errorf("credentials = %+v", creds)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jwt":"token1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	session, err := c.Login(context.Background(), Credentials{Email: "e", Password: "p"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if session.JWT != "token1" {
		t.Errorf("JWT = %q, want %q", session.JWT, "token1")
	}
	if c.AuthEndpoint() != srv.URL+"/auth/pusher" {
		t.Errorf("AuthEndpoint = %q", c.AuthEndpoint())
	}
}

func TestClient_LoginStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Login(context.Background(), Credentials{Email: "e", Password: "x"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Login error = %v, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", statusErr.StatusCode)
	}
	if statusErr.Body != "bad credentials" {
		t.Errorf("Body = %q", statusErr.Body)
	}
}

func TestClient_LoginEmptyJWT(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, nil).Login(context.Background(), Credentials{})
	if !errors.Is(err, ErrEmptyJWT) {
		t.Fatalf("Login error = %v, want ErrEmptyJWT", err)
	}
}

func TestClient_LoginMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, nil).Login(context.Background(), Credentials{}); err == nil {
		t.Fatal("Login should fail on malformed body")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("", nil)
	if c.BaseURL() != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", c.BaseURL(), DefaultBaseURL)
	}
}
