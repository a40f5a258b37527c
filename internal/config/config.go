// Package config loads and validates SDK and bridge config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache drivers accepted by TOKEN_CACHE.
const (
	TokenCacheMemory = "memory"
	TokenCacheRedis  = "redis"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Email is the account email used to log in to the Scout API.
	Email string `mapstructure:"SCOUT_EMAIL"`
	// Password is the account password used to log in to the Scout API.
	Password string `mapstructure:"SCOUT_PASSWORD"`
	// APIURL is the Scout REST API base (login and channel authorization live under it).
	APIURL string `mapstructure:"SCOUT_API_URL"`
	// PusherKey is the application key of the real-time service.
	PusherKey string `mapstructure:"SCOUT_PUSHER_KEY"`
	// PusherHost is the websocket host of the real-time service (e.g. ws-mt1.pusher.com).
	PusherHost string `mapstructure:"SCOUT_PUSHER_HOST"`
	// Locations is a comma-separated list of location ids the bridge subscribes to.
	Locations string `mapstructure:"SCOUT_LOCATIONS"`

	// TokenTTLRaw is the authenticator cache lifetime (e.g. "24h").
	TokenTTLRaw string `mapstructure:"TOKEN_TTL"`
	// TokenCache selects the token cache backend: memory or redis.
	TokenCache string `mapstructure:"TOKEN_CACHE"`
	// RedisAddr is the redis address; required when TokenCache is redis.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional redis password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the redis logical database.
	RedisDB int `mapstructure:"REDIS_DB"`
	// RedisPrefix prefixes token cache keys.
	RedisPrefix string `mapstructure:"REDIS_PREFIX"`

	// MQTTBroker enables the MQTT sink when set (e.g. tcp://localhost:1883).
	MQTTBroker string `mapstructure:"MQTT_BROKER"`
	// MQTTTopicPrefix is the first topic segment for published events.
	MQTTTopicPrefix string `mapstructure:"MQTT_TOPIC_PREFIX"`
	// MQTTClientID is the MQTT client id; generated when empty.
	MQTTClientID string `mapstructure:"MQTT_CLIENT_ID"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses; enables the Kafka sink.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic events are written to.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the journal worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// SMSAPIKey enables SMS alarm alerts when set together with SMSAlertNumbers.
	SMSAPIKey string `mapstructure:"SMS_API_KEY"`
	// SMSBaseURL overrides the SMS provider endpoint.
	SMSBaseURL string `mapstructure:"SMS_BASE_URL"`
	// SMSSender is the optional sender id.
	SMSSender string `mapstructure:"SMS_SENDER"`
	// SMSAlertNumbers is a comma-separated list of phone numbers to alert.
	SMSAlertNumbers string `mapstructure:"SMS_ALERT_NUMBERS"`

	// DatabaseURL is the Postgres DSN of the event journal; the journal is disabled when empty.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// PolicyFile is an optional Rego module that decides which events the bridge forwards.
	PolicyFile string `mapstructure:"BRIDGE_POLICY_FILE"`
	// HealthAddr is the address of the gRPC health endpoint.
	HealthAddr string `mapstructure:"HEALTH_ADDR"`

	// OTLPEndpoint is the OTLP collector endpoint; telemetry is no-op when empty.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("SCOUT_EMAIL", "")
	v.SetDefault("SCOUT_PASSWORD", "")
	v.SetDefault("SCOUT_API_URL", "https://api.scoutalarm.com")
	v.SetDefault("SCOUT_PUSHER_KEY", "baf06f5a867d462e09d4")
	v.SetDefault("SCOUT_PUSHER_HOST", "ws-mt1.pusher.com")
	v.SetDefault("SCOUT_LOCATIONS", "")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("TOKEN_CACHE", TokenCacheMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "scout:token:")
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_TOPIC_PREFIX", "scout")
	v.SetDefault("MQTT_CLIENT_ID", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "scout-events")
	v.SetDefault("KAFKA_GROUP_ID", "scout-journal-worker")
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_BASE_URL", "")
	v.SetDefault("SMS_SENDER", "")
	v.SetDefault("SMS_ALERT_NUMBERS", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BRIDGE_POLICY_FILE", "")
	v.SetDefault("HEALTH_ADDR", ":8081")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, errors.New("config: SCOUT_API_URL must be set")
	}
	if cfg.PusherKey == "" || cfg.PusherHost == "" {
		return nil, errors.New("config: SCOUT_PUSHER_KEY and SCOUT_PUSHER_HOST must be set")
	}

	cfg.TokenCache = strings.ToLower(strings.TrimSpace(cfg.TokenCache))
	switch cfg.TokenCache {
	case "":
		cfg.TokenCache = TokenCacheMemory
	case TokenCacheMemory:
	case TokenCacheRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set when TOKEN_CACHE=redis")
		}
	default:
		return nil, errors.New("config: TOKEN_CACHE must be memory or redis")
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return nil, errors.New("config: LOG_LEVEL must be one of debug, info, warn, error")
	}

	return &cfg, nil
}

// RequireCredentials returns an error unless both SCOUT_EMAIL and SCOUT_PASSWORD are set.
func (c *Config) RequireCredentials() error {
	if c == nil || c.Email == "" || c.Password == "" {
		return errors.New("config: SCOUT_EMAIL and SCOUT_PASSWORD must be set")
	}
	return nil
}

// TokenTTL parses TokenTTLRaw as a time.Duration. Returns 24h if unset or invalid.
func (c *Config) TokenTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTLRaw)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// AuthEndpoint is the channel authorization URL under the API base.
func (c *Config) AuthEndpoint() string {
	return strings.TrimSuffix(c.APIURL, "/") + "/auth/pusher"
}

// LocationIDs returns the location ids from the comma-separated SCOUT_LOCATIONS.
func (c *Config) LocationIDs() []string {
	return splitList(c.Locations)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means the Kafka sink is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AlertNumbers returns the phone numbers from the comma-separated SMS_ALERT_NUMBERS.
func (c *Config) AlertNumbers() []string {
	return splitList(c.SMSAlertNumbers)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
