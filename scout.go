// Package scout is a client SDK for the Scout home-security service.
//
// An Authenticator logs in with account credentials and caches the bearer token.
// A LocationListener uses it to open the real-time connection, subscribes to
// locations and delivers their device, hub, mode and RFID events to typed handlers:
//
//	l := scout.New(scout.Credentials{Email: email, Password: password})
//	l.OnDeviceAlarm(func(e scout.DeviceAlarmEvent, locationID string) { ... })
//	if err := l.Connect(ctx); err != nil { ... }
//	if err := l.AddLocation(locationID); err != nil { ... }
package scout

import (
	"net/http"

	"scout-sdk/internal/api"
	"scout-sdk/internal/auth"
	"scout-sdk/internal/events"
	"scout-sdk/internal/listener"
	"scout-sdk/internal/realtime"
	"scout-sdk/internal/realtime/pusher"
)

// Defaults of the production service.
const (
	DefaultBaseURL      = api.DefaultBaseURL
	DefaultKey          = listener.DefaultKey
	DefaultPusherHost   = pusher.DefaultHost
	DefaultTTL          = auth.DefaultTTL
	StateChangeEvent    = realtime.StateChangeEvent
	AuthorizationHeader = listener.AuthorizationHeader
)

// Authentication.
type (
	Credentials   = api.Credentials
	Session       = api.Session
	APIClient     = api.Client
	StatusError   = api.StatusError
	LoginAPI      = auth.LoginAPI
	Payload       = auth.Payload
	Authenticator = auth.Authenticator
	Factory       = auth.Factory
	AuthOption    = auth.Option
	AuthError     = auth.AuthError
	Store         = auth.Store
	StoreConfig   = auth.StoreConfig
	RedisConfig   = auth.RedisConfig
)

// Real-time connection.
type (
	ConnectionState  = realtime.ConnectionState
	StateChange      = realtime.StateChange
	TransportConfig  = realtime.Config
	Transport        = realtime.Transport
	TransportFactory = realtime.Factory
	PusherOption     = pusher.Option
	TokenSource      = listener.TokenSource
	LocationListener = listener.LocationListener
	ListenerOption   = listener.Option
	Handler          = listener.Handler
	HandlerID        = listener.HandlerID
	HandlerOption    = listener.HandlerOption
)

// Events.
type (
	Category             = events.Category
	Event                = events.Event
	ConnectionStateEvent = events.ConnectionStateEvent
	DeviceEvent          = events.DeviceEvent
	DeviceEventType      = events.DeviceEventType
	DeviceAlarmEvent     = events.DeviceAlarmEvent
	DevicePairEvent      = events.DevicePairEvent
	DeviceTriggerEvent   = events.DeviceTriggerEvent
	HubEvent             = events.HubEvent
	ModeEvent            = events.ModeEvent
	ModeState            = events.ModeState
	RfidEvent            = events.RfidEvent
	RfidEventType        = events.RfidEventType
	EpochMillis          = events.EpochMillis
)

const (
	Connecting   = realtime.Connecting
	Connected    = realtime.Connected
	Disconnected = realtime.Disconnected
	Failed       = realtime.Failed
	Unavailable  = realtime.Unavailable
)

const (
	CategoryConnectionState = events.CategoryConnectionState
	CategoryDeviceAlarm     = events.CategoryDeviceAlarm
	CategoryDevicePair      = events.CategoryDevicePair
	CategoryDeviceTrigger   = events.CategoryDeviceTrigger
	CategoryHub             = events.CategoryHub
	CategoryMode            = events.CategoryMode
	CategoryRfid            = events.CategoryRfid
)

var (
	ErrNotConnected  = listener.ErrNotConnected
	ErrEmptyLocation = listener.ErrEmptyLocation
	ErrTokenExpired  = auth.ErrTokenExpired
	ErrInvalidToken  = auth.ErrInvalidToken
	ErrAuthorization = pusher.ErrAuthorization
)

var (
	WithStore        = auth.WithStore
	WithAuthLogger   = auth.WithLogger
	WithConfig       = listener.WithConfig
	WithLogger       = listener.WithLogger
	WithPusherLogger = pusher.WithLogger
	WithHTTPClient   = pusher.WithHTTPClient
	ForLocation      = listener.ForLocation
	Decode           = auth.Decode
	IsAuthError      = auth.IsAuthError
	NewStore         = auth.NewStore
	NewMemoryStore   = auth.NewMemoryStore
	NewRedisStore    = auth.NewRedisStore
	Categories       = events.Categories
)

// NewAPIClient returns a login client for baseURL (DefaultBaseURL when empty).
// A nil httpClient uses a client with a default timeout.
func NewAPIClient(baseURL string, httpClient *http.Client) *APIClient {
	return api.NewClient(baseURL, httpClient)
}

// NewFactory returns an Authenticator factory logging in through loginAPI.
func NewFactory(loginAPI LoginAPI, opts ...AuthOption) *Factory {
	return auth.NewFactory(loginAPI, opts...)
}

// NewPusherTransport returns a TransportFactory for the Pusher protocol.
func NewPusherTransport(opts ...PusherOption) TransportFactory {
	return pusher.NewFactory(opts...)
}

// NewListener returns a disconnected LocationListener.
func NewListener(tokens TokenSource, factory TransportFactory, opts ...ListenerOption) *LocationListener {
	return listener.New(tokens, factory, opts...)
}

// New returns a LocationListener for creds against the production service, with an
// in-memory token cache and the default TTL.
func New(creds Credentials, opts ...ListenerOption) *LocationListener {
	authenticator := NewFactory(NewAPIClient(DefaultBaseURL, nil)).Create(creds, DefaultTTL)
	return NewListener(authenticator, NewPusherTransport(), opts...)
}
