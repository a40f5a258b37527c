// Package auth turns Scout credentials into a cached bearer token.
//
// An Authenticator logs in lazily: the first Token call logs in, later calls are
// served from the Store until the entry's expiry (the configured TTL or the token's
// own exp claim, whichever comes first). Expiry is checked on read, so a stale
// token is never returned.
package auth

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"scout-sdk/internal/api"
	"scout-sdk/internal/logging"
)

// DefaultTTL is the cache lifetime used when Create is given a non-positive ttl.
const DefaultTTL = 24 * time.Hour

// LoginTimeout bounds a login shared by concurrent Token callers.
const LoginTimeout = 30 * time.Second

const instrumentationName = "scout-sdk/internal/auth"

// LoginAPI exchanges credentials for a signed session. Satisfied by *api.Client.
type LoginAPI interface {
	Login(ctx context.Context, creds api.Credentials) (*api.Session, error)
}

// Option configures a Factory.
type Option func(*Factory)

// WithStore sets the cache backend shared by every Authenticator the factory creates.
func WithStore(s Store) Option {
	return func(f *Factory) {
		f.store = s
	}
}

// WithClock overrides time.Now. Used by tests to move past expiry.
func WithClock(now func() time.Time) Option {
	return func(f *Factory) {
		f.nowF = now
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		f.logger = l
	}
}

// Factory creates Authenticators bound to one login API and cache.
type Factory struct {
	api    LoginAPI
	store  Store
	nowF   func() time.Time
	logger *slog.Logger

	tracer   trace.Tracer
	logins   metric.Int64Counter
	failures metric.Int64Counter
}

// NewFactory returns a Factory that logs in through loginAPI.
func NewFactory(loginAPI LoginAPI, opts ...Option) *Factory {
	f := &Factory{api: loginAPI, nowF: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	if f.store == nil {
		f.store = newMemoryStore(f.nowF)
	}
	f.logger = logging.OrDefault(f.logger)

	f.tracer = otel.Tracer(instrumentationName)
	meter := otel.Meter(instrumentationName)
	var err error
	if f.logins, err = meter.Int64Counter("scout.auth.logins",
		metric.WithDescription("Logins performed against the Scout API.")); err != nil {
		f.logger.Warn("auth: create login counter", "error", err)
	}
	if f.failures, err = meter.Int64Counter("scout.auth.login_failures",
		metric.WithDescription("Logins that failed or returned an unusable token.")); err != nil {
		f.logger.Warn("auth: create failure counter", "error", err)
	}
	return f
}

// Create returns an Authenticator for creds. Tokens are cached for ttl, capped by the
// token's exp claim; ttl <= 0 means DefaultTTL. Creating an Authenticator does not log in.
func (f *Factory) Create(creds api.Credentials, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Authenticator{
		f:     f,
		creds: creds,
		ttl:   ttl,
		key:   cacheKey(creds),
	}
}

// cacheKey derives the store slot from the whole credential so that only an
// Authenticator holding the same email and password can read the cached token.
func cacheKey(creds api.Credentials) string {
	email := strings.ToLower(strings.TrimSpace(creds.Email))
	sum := blake2b.Sum256([]byte(email + "\x00" + creds.Password))
	return "cred:" + hex.EncodeToString(sum[:])
}

// Authenticator hands out a valid bearer token for one set of credentials.
// It is safe for concurrent use; concurrent callers during a login share its result.
type Authenticator struct {
	f     *Factory
	creds api.Credentials
	ttl   time.Duration
	key   string
	group singleflight.Group
}

// TTL returns the configured cache lifetime.
func (a *Authenticator) TTL() time.Duration {
	return a.ttl
}

// Token returns the cached token, logging in when the cache is empty or expired.
// Failures are returned as *AuthError and nothing is cached. A caller whose ctx ends
// while a login is in flight gets ctx.Err(); the login itself keeps running for the
// other callers, bounded by LoginTimeout.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	if e, ok := a.lookup(ctx); ok {
		return e.Token, nil
	}
	ch := a.group.DoChan(a.key, func() (any, error) {
		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), LoginTimeout)
		defer cancel()
		// Another flight may have stored a token between the lookup and DoChan.
		if e, ok := a.lookup(loginCtx); ok {
			return e, nil
		}
		return a.login(loginCtx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(Entry).Token, nil
	}
}

// Payload decodes the claims of the current token.
func (a *Authenticator) Payload(ctx context.Context) (*Payload, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return nil, err
	}
	p, err := Decode(token)
	if err != nil {
		return nil, &AuthError{Op: "decode", Err: err}
	}
	return p, nil
}

// Invalidate drops the cached token; the next Token call logs in again.
func (a *Authenticator) Invalidate(ctx context.Context) error {
	return a.f.store.Delete(ctx, a.key)
}

func (a *Authenticator) lookup(ctx context.Context) (Entry, bool) {
	e, ok, err := a.f.store.Get(ctx, a.key)
	if err != nil {
		a.f.logger.Warn("auth: token cache read failed", "error", err)
		return Entry{}, false
	}
	now := a.f.nowF()
	if !ok || !e.ExpiresAt.After(now) {
		return Entry{}, false
	}
	// The slot may have been filled by an Authenticator with a longer TTL.
	if !e.FetchedAt.IsZero() && !e.FetchedAt.Add(a.ttl).After(now) {
		return Entry{}, false
	}
	return e, true
}

func (a *Authenticator) login(ctx context.Context) (Entry, error) {
	ctx, span := a.f.tracer.Start(ctx, "auth.login")
	defer span.End()

	entry, err := a.fetch(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		if a.f.failures != nil {
			a.f.failures.Add(ctx, 1)
		}
		a.f.logger.Warn("auth: login failed", "error", err)
		return Entry{}, err
	}
	if a.f.logins != nil {
		a.f.logins.Add(ctx, 1)
	}
	span.SetAttributes(attribute.String("auth.expires_at", entry.ExpiresAt.UTC().Format(time.RFC3339)))

	if err := a.f.store.Put(ctx, a.key, entry); err != nil {
		a.f.logger.Warn("auth: token cache write failed", "error", err)
	}
	a.f.logger.Debug("auth: logged in", "expires_at", entry.ExpiresAt)
	return entry, nil
}

func (a *Authenticator) fetch(ctx context.Context) (Entry, error) {
	session, err := a.f.api.Login(ctx, a.creds)
	if err != nil {
		return Entry{}, &AuthError{Op: "login", Err: err}
	}
	payload, err := Decode(session.JWT)
	if err != nil {
		return Entry{}, &AuthError{Op: "decode", Err: err}
	}

	now := a.f.nowF()
	expiresAt := now.Add(a.ttl)
	if payload.ExpiresAt != nil && payload.ExpiresAt.Time.Before(expiresAt) {
		expiresAt = payload.ExpiresAt.Time
	}
	if !expiresAt.After(now) {
		return Entry{}, &AuthError{Op: "login", Err: ErrTokenExpired}
	}
	return Entry{Token: session.JWT, FetchedAt: now, ExpiresAt: expiresAt}, nil
}
