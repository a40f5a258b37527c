package auth

import (
	"errors"
	"testing"
	"time"
)

// Fixture token with exp in 2021. Decode does not check expiry.
const issuedToken = "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9." +
	"eyJpZCI6ImlkMSIsImZuYW1lIjoibmFtZTEiLCJlbWFpbCI6ImVtYWlsMSIsInRva2VuIjoidG9rZW4xIiwiaWF0IjoxNTc5Mjc4NzYzLCJleHAiOjE2MTA4MTQ3NjN9." +
	"aK2vHbL8hZ0Umo4ZV5ypV8-JGkTq2oU8gr7KVxTzJzs"

func TestDecode(t *testing.T) {
	p, err := Decode(issuedToken)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.ID != "id1" {
		t.Errorf("ID = %q, want %q", p.ID, "id1")
	}
	if p.FirstName != "name1" {
		t.Errorf("FirstName = %q, want %q", p.FirstName, "name1")
	}
	if p.Email != "email1" {
		t.Errorf("Email = %q, want %q", p.Email, "email1")
	}
	if p.Token != "token1" {
		t.Errorf("Token = %q, want %q", p.Token, "token1")
	}
	if p.IssuedAt == nil || !p.IssuedAt.Time.Equal(time.Unix(1579278763, 0)) {
		t.Errorf("IssuedAt = %v, want 1579278763", p.IssuedAt)
	}
	if p.ExpiresAt == nil || !p.ExpiresAt.Time.Equal(time.Unix(1610814763, 0)) {
		t.Errorf("ExpiresAt = %v, want 1610814763", p.ExpiresAt)
	}
	if sub, _ := p.GetSubject(); sub != "id1" {
		t.Errorf("GetSubject = %q, want id1", sub)
	}
}

func TestDecode_Invalid(t *testing.T) {
	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"bad segment", "a.b.c"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(tc.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Decode(%q) err = %v, want ErrInvalidToken", tc.token, err)
			}
		})
	}
}
