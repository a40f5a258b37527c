// Package pusher is a realtime.Transport speaking the Pusher channels protocol
// (version 7) over a websocket.
package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/realtime"
)

const (
	// DefaultHost is the websocket host of the shared Pusher cluster.
	DefaultHost = "ws-mt1.pusher.com"

	protocolVersion = 7
	clientName      = "scout-go"
	clientVersion   = "1.0.0"

	defaultActivityTimeout = 120 * time.Second
	pongTimeout            = 30 * time.Second
	writeTimeout           = 10 * time.Second
	authTimeout            = 15 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHTTPClient sets the client used for channel authorization.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// NewFactory returns a realtime.Factory producing Clients configured with opts.
func NewFactory(opts ...Option) realtime.Factory {
	return func(cfg realtime.Config) realtime.Transport {
		return New(cfg, opts...)
	}
}

// Client is a Pusher connection. It does not reconnect on its own: a dropped connection
// is reported as unavailable and the owner decides when to call Connect again.
type Client struct {
	cfg    realtime.Config
	logger *slog.Logger
	http   *http.Client
	dialer *websocket.Dialer
	queue  serialQueue

	mu            sync.Mutex
	state         realtime.ConnectionState
	auth          realtime.AuthConfig
	gen           uint64
	dialing       bool
	sess          *session
	channels      map[string]*channel
	stateHandlers []func(realtime.StateChange)
}

// session is one websocket connection.
type session struct {
	gen      uint64
	conn     *websocket.Conn
	socketID string
	done     chan struct{}

	writeMu         sync.Mutex
	lastActivity    atomic.Int64
	activityTimeout atomic.Int64
	fatal           atomic.Bool
}

var _ realtime.Transport = (*Client)(nil)

// New returns a disconnected Client for cfg.
func New(cfg realtime.Config, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		state:    realtime.Disconnected,
		channels: make(map[string]*channel),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrDefault(c.logger)
	if c.http == nil {
		c.http = &http.Client{Timeout: authTimeout}
	}
	if c.dialer == nil {
		c.dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second, Proxy: http.ProxyFromEnvironment}
	}
	c.queue.logger = c.logger
	return c
}

// URL returns the websocket URL for the configured host and key. A host with a
// scheme (ws:// or wss://) is used as the base as given.
func (c *Client) URL() string {
	host := c.cfg.Host
	if host == "" {
		host = DefaultHost
	}
	base := host
	if !strings.Contains(host, "://") {
		base = "wss://" + host
	}
	q := url.Values{}
	q.Set("protocol", strconv.Itoa(protocolVersion))
	q.Set("client", clientName)
	q.Set("version", clientVersion)
	q.Set("flash", "false")
	return strings.TrimSuffix(base, "/") + "/app/" + url.PathEscape(c.cfg.Key) + "?" + q.Encode()
}

// State returns the current connection state.
func (c *Client) State() realtime.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SocketID returns the id assigned by the server, or "" when not connected.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess == nil {
		return ""
	}
	return c.sess.socketID
}

// OnStateChange registers fn for state transitions.
func (c *Client) OnStateChange(fn func(realtime.StateChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, fn)
}

// Connect stores auth for channel authorization and opens the connection unless one
// is open or being opened.
func (c *Client) Connect(auth realtime.AuthConfig) {
	c.mu.Lock()
	c.auth = copyAuth(auth)
	if c.dialing || c.sess != nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	gen := c.gen
	c.dialing = true
	c.setStateLocked(realtime.Connecting)
	c.mu.Unlock()
	c.queue.drain()

	go c.dial(gen)
}

// Disconnect closes the connection. Channels stay registered and are resubscribed
// on the next Connect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.gen++
	sess := c.sess
	c.sess = nil
	c.dialing = false
	for _, ch := range c.channels {
		ch.setSubscribed(false)
	}
	c.setStateLocked(realtime.Disconnected)
	c.mu.Unlock()
	c.queue.drain()

	if sess != nil {
		sess.close()
	}
}

// Channel returns the channel with name if it was subscribed.
func (c *Client) Channel(name string) (realtime.Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[name]
	if !ok {
		return nil, false
	}
	return ch, true
}

// Subscribe registers a channel and subscribes to it now if connected, otherwise
// once the connection is established.
func (c *Client) Subscribe(name string) realtime.Channel {
	c.mu.Lock()
	ch, ok := c.channels[name]
	if ok {
		c.mu.Unlock()
		return ch
	}
	ch = newChannel(name)
	c.channels[name] = ch
	sess, headers := c.sess, c.auth.Headers
	c.mu.Unlock()

	if sess != nil {
		go c.subscribe(sess, ch, headers)
	}
	return ch
}

// Unsubscribe drops the channel and tells the server when connected.
func (c *Client) Unsubscribe(name string) {
	c.mu.Lock()
	_, ok := c.channels[name]
	delete(c.channels, name)
	sess := c.sess
	c.mu.Unlock()

	if !ok || sess == nil {
		return
	}
	msg, err := newMessage(eventUnsubscribe, map[string]string{"channel": name})
	if err == nil {
		err = sess.write(msg)
	}
	if err != nil {
		c.logger.Warn("pusher: unsubscribe failed", "channel", name, "error", err)
	}
}

// setStateLocked records a transition and queues its delivery. c.mu must be held;
// callers drain the queue after unlocking.
func (c *Client) setStateLocked(next realtime.ConnectionState) {
	prev := c.state
	if prev == next {
		return
	}
	c.state = next
	change := realtime.StateChange{Previous: prev, Current: next}
	handlers := append([]func(realtime.StateChange){}, c.stateHandlers...)
	c.queue.enqueue(func() {
		for _, h := range handlers {
			h(change)
		}
	})
}

func (c *Client) dial(gen uint64) {
	timeout := c.dialer.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, c.URL(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.logger.Warn("pusher: dial failed", "error", err)
		c.mu.Lock()
		if c.gen == gen {
			c.dialing = false
			c.setStateLocked(realtime.Unavailable)
		}
		c.mu.Unlock()
		c.queue.drain()
		return
	}

	sess := &session{gen: gen, conn: conn, done: make(chan struct{})}
	sess.activityTimeout.Store(int64(defaultActivityTimeout))
	sess.touch()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.dialing = false
	c.sess = sess
	c.mu.Unlock()

	go c.keepalive(sess)
	c.readLoop(sess)
}

func (c *Client) readLoop(sess *session) {
	var readErr error
	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(sess.timeout() + pongTimeout))
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			readErr = err
			break
		}
		sess.touch()

		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("pusher: malformed frame", "error", err)
			continue
		}
		c.handle(sess, msg)
	}

	var closeErr *websocket.CloseError
	if errors.As(readErr, &closeErr) && closeErr.Code >= 4000 && closeErr.Code <= 4099 {
		sess.fatal.Store(true)
	}

	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		for _, ch := range c.channels {
			ch.setSubscribed(false)
		}
		next := realtime.Unavailable
		if sess.fatal.Load() {
			next = realtime.Failed
		}
		c.logger.Warn("pusher: connection lost", "error", readErr, "state", next)
		c.setStateLocked(next)
	}
	c.mu.Unlock()
	c.queue.drain()
	sess.close()
}

func (c *Client) handle(sess *session, msg message) {
	switch msg.Event {
	case eventConnectionEstablished:
		c.established(sess, msg)
	case eventPing:
		pong, _ := newMessage(eventPong, struct{}{})
		if err := sess.write(pong); err != nil {
			c.logger.Warn("pusher: pong failed", "error", err)
		}
	case eventPong:
	case eventError:
		var pe protocolError
		data, _ := unwrapData(msg.Data)
		_ = json.Unmarshal(data, &pe)
		if pe.fatal() {
			sess.fatal.Store(true)
		}
		c.logger.Warn("pusher: server error", "message", pe.Message, "code", pe.Code)
	case eventSubscriptionSucceeded:
		c.mu.Lock()
		ch, ok := c.channels[msg.Channel]
		c.mu.Unlock()
		if ok {
			ch.setSubscribed(true)
		}
		c.logger.Debug("pusher: subscribed", "channel", msg.Channel)
	case eventSubscriptionError:
		data, _ := unwrapData(msg.Data)
		c.mu.Lock()
		ch, ok := c.channels[msg.Channel]
		c.mu.Unlock()
		if ok {
			c.reject(ch, errors.New(string(data)))
		}
	default:
		if msg.Channel == "" {
			c.logger.Debug("pusher: unhandled event", "event", msg.Event)
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) established(sess *session, msg message) {
	data, err := unwrapData(msg.Data)
	if err != nil {
		c.logger.Warn("pusher: malformed connection_established", "error", err)
		return
	}
	var ce connectionEstablished
	if err := json.Unmarshal(data, &ce); err != nil {
		c.logger.Warn("pusher: malformed connection_established", "error", err)
		return
	}
	if ce.ActivityTimeout > 0 {
		t := time.Duration(ce.ActivityTimeout) * time.Second
		if t < defaultActivityTimeout {
			sess.activityTimeout.Store(int64(t))
		}
	}

	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	sess.socketID = ce.SocketID
	channels := make([]*channel, 0, len(c.channels))
	for _, ch := range c.channels {
		channels = append(channels, ch)
	}
	headers := c.auth.Headers
	c.setStateLocked(realtime.Connected)
	c.mu.Unlock()
	c.queue.drain()

	for _, ch := range channels {
		go c.subscribe(sess, ch, headers)
	}
}

func (c *Client) subscribe(sess *session, ch *channel, headers map[string]string) {
	c.mu.Lock()
	socketID := sess.socketID
	c.mu.Unlock()
	if socketID == "" {
		// Not established yet; established() subscribes every channel.
		return
	}

	data := map[string]string{"channel": ch.name}
	if strings.HasPrefix(ch.name, privatePrefix) {
		ctx, cancel := context.WithTimeout(context.Background(), authTimeout)
		sig, err := authorize(ctx, c.http, c.cfg.AuthEndpoint, socketID, ch.name, headers)
		cancel()
		if err != nil {
			c.reject(ch, err)
			return
		}
		data["auth"] = sig
	}
	msg, err := newMessage(eventSubscribe, data)
	if err == nil {
		err = sess.write(msg)
	}
	if err != nil {
		c.logger.Warn("pusher: subscribe failed", "channel", ch.name, "error", err)
	}
}

// reject drops a channel the server or the auth endpoint refused, so that a later
// Subscribe for the same name starts over.
func (c *Client) reject(ch *channel, err error) {
	c.mu.Lock()
	if c.channels[ch.name] == ch {
		delete(c.channels, ch.name)
	}
	c.mu.Unlock()
	ch.setSubscribed(false)
	c.logger.Error("pusher: subscription rejected", "channel", ch.name, "error", err)
}

func (c *Client) dispatch(msg message) {
	c.mu.Lock()
	ch, ok := c.channels[msg.Channel]
	c.mu.Unlock()
	if !ok {
		return
	}
	data, err := unwrapData(msg.Data)
	if err != nil {
		c.logger.Warn("pusher: malformed event data", "channel", msg.Channel, "event", msg.Event, "error", err)
		return
	}
	handlers := ch.handlersFor(msg.Event)
	if len(handlers) == 0 {
		return
	}
	c.queue.enqueue(func() {
		for _, h := range handlers {
			h(data)
		}
	})
	c.queue.drain()
}

func (c *Client) keepalive(sess *session) {
	for {
		idle := time.Since(time.Unix(0, sess.lastActivity.Load()))
		wait := sess.timeout() - idle
		if wait <= 0 {
			ping, _ := newMessage(eventPing, struct{}{})
			if err := sess.write(ping); err != nil {
				return
			}
			wait = sess.timeout()
		}
		timer := time.NewTimer(wait)
		select {
		case <-sess.done:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *session) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *session) timeout() time.Duration {
	return time.Duration(s.activityTimeout.Load())
}

func (s *session) write(msg message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(msg)
}

func (s *session) close() {
	s.writeMu.Lock()
	select {
	case <-s.done:
		s.writeMu.Unlock()
		return
	default:
		close(s.done)
	}
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.writeMu.Unlock()
	_ = s.conn.Close()
}

func copyAuth(a realtime.AuthConfig) realtime.AuthConfig {
	headers := make(map[string]string, len(a.Headers))
	for k, v := range a.Headers {
		headers[k] = v
	}
	return realtime.AuthConfig{Headers: headers}
}
