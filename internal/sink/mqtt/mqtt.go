// Package mqtt publishes location events to an MQTT broker, one topic per
// location and category.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"scout-sdk/internal/logging"
	"scout-sdk/internal/sink"
)

// DefaultTopicPrefix is the first topic segment when Config.TopicPrefix is empty.
const DefaultTopicPrefix = "scout"

// Config configures the MQTT sink.
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883.
	Broker string
	// ClientID is generated when empty.
	ClientID    string
	TopicPrefix string
	// QoS defaults to 1.
	QoS      byte
	Retained bool
}

// client is the part of paho.Client the sink uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// Sink publishes records as JSON to <prefix>/<location>/<category>.
type Sink struct {
	client   client
	prefix   string
	qos      byte
	retained bool
	logger   *slog.Logger
}

var _ sink.Sink = (*Sink)(nil)

// New connects to cfg.Broker and returns a Sink.
func New(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker required")
	}
	logger = logging.OrDefault(logger)
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("scout-bridge-%d", time.Now().UnixNano())
	}
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts = opts.SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt: connection lost", "broker", cfg.Broker, "error", err)
		})

	c := paho.NewClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect %s: %w", cfg.Broker, token.Error())
	}
	logger.Info("mqtt: connected", "broker", cfg.Broker, "client_id", clientID)
	return newSink(c, cfg, logger), nil
}

func newSink(c client, cfg Config, logger *slog.Logger) *Sink {
	prefix := strings.Trim(cfg.TopicPrefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	qos := cfg.QoS
	if qos == 0 {
		qos = 1
	}
	return &Sink{client: c, prefix: prefix, qos: qos, retained: cfg.Retained, logger: logging.OrDefault(logger)}
}

// Topic returns the topic for a record.
func Topic(prefix string, r sink.Record) string {
	loc := r.LocationID
	if loc == "" {
		loc = "_"
	}
	return prefix + "/" + loc + "/" + string(r.Category)
}

func (s *Sink) Name() string { return "mqtt" }

// Publish sends r and waits for the broker acknowledgement or ctx.
func (s *Sink) Publish(ctx context.Context, r sink.Record) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	token := s.client.Publish(Topic(s.prefix, r), s.qos, s.retained, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects, giving in-flight messages 250ms.
func (s *Sink) Close() error {
	s.client.Disconnect(250)
	return nil
}
