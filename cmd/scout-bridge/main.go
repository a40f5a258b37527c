// scout-bridge subscribes to Scout locations and forwards their events to MQTT, Kafka,
// the Postgres journal and OpenTelemetry logs. See internal/config for the environment.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"scout-sdk/internal/api"
	"scout-sdk/internal/auth"
	"scout-sdk/internal/bridge"
	"scout-sdk/internal/config"
	"scout-sdk/internal/db"
	"scout-sdk/internal/health"
	"scout-sdk/internal/journal"
	"scout-sdk/internal/listener"
	"scout-sdk/internal/logging"
	"scout-sdk/internal/policy"
	"scout-sdk/internal/realtime"
	"scout-sdk/internal/realtime/pusher"
	"scout-sdk/internal/sink"
	"scout-sdk/internal/sink/kafka"
	"scout-sdk/internal/sink/mqtt"
	"scout-sdk/internal/sink/sms"
	telemetryotel "scout-sdk/internal/telemetry/otel"
)

const (
	healthCheckInterval = 30 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", nil).Error("config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, nil)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("bridge: exited", "error", err)
		os.Exit(1)
	}
	logger.Info("bridge: stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	locations := cfg.LocationIDs()
	if len(locations) == 0 {
		return bridge.ErrNoLocations
	}

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: telemetryotel.DefaultServiceName,
		Insecure:    cfg.OTLPInsecure,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	store, err := newTokenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	client := api.NewClient(cfg.APIURL, &http.Client{Timeout: 15 * time.Second})
	authenticator := auth.NewFactory(client, auth.WithStore(store), auth.WithLogger(logger)).
		Create(api.Credentials{Email: cfg.Email, Password: cfg.Password}, cfg.TokenTTL())

	var pinger health.Pinger
	var sinks []sink.Sink
	if cfg.DatabaseURL != "" {
		database, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer database.Close()
		pinger = database
		sinks = append(sinks, journal.NewSink(journal.NewPostgresRepository(database), logger))
	}
	external, err := newSinks(cfg, logger)
	if err != nil {
		return err
	}
	sinks = append(sinks, external...)
	sinks = append(sinks, telemetryotel.NewLogSink(providers.LoggerProvider))
	out := sink.NewFanout(logger, sinks...)
	defer out.Close()

	filter, err := policy.LoadFilter(ctx, cfg.PolicyFile, logger)
	if err != nil {
		return err
	}

	l := listener.New(authenticator, pusher.NewFactory(pusher.WithLogger(logger)),
		listener.WithConfig(realtime.Config{
			Key:          cfg.PusherKey,
			Host:         cfg.PusherHost,
			AuthEndpoint: cfg.AuthEndpoint(),
		}),
		listener.WithLogger(logger),
	)

	reporter := health.NewReporter(pinger, filter, logger)
	b := bridge.New(l, out, locations,
		bridge.WithFilter(filter),
		bridge.WithTokens(authenticator),
		bridge.WithStateReporter(reporter),
		bridge.WithLogger(logger),
	)

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return health.Serve(gctx, lis, reporter) })
	g.Go(func() error {
		reporter.Run(gctx, healthCheckInterval)
		return nil
	})
	g.Go(func() error {
		logger.Info("bridge: starting", "locations", locations, "sinks", out.Len())
		err := b.Run(gctx)
		if err == nil && ctx.Err() == nil {
			err = errors.New("bridge: stopped unexpectedly")
		}
		return err
	})
	return g.Wait()
}

func newTokenStore(ctx context.Context, cfg *config.Config) (auth.Store, error) {
	sc := auth.StoreConfig{Driver: cfg.TokenCache}
	if cfg.TokenCache == config.TokenCacheRedis {
		sc.Redis = &auth.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}
	}
	return auth.NewStore(ctx, sc)
}

// newSinks builds the broker sinks enabled in cfg.
func newSinks(cfg *config.Config, logger *slog.Logger) ([]sink.Sink, error) {
	var sinks []sink.Sink
	if cfg.MQTTBroker != "" {
		s, err := mqtt.New(mqtt.Config{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if brokers := cfg.KafkaBrokersList(); len(brokers) > 0 {
		s, err := kafka.New(brokers, cfg.KafkaTopic)
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.SMSAPIKey != "" {
		s, err := sms.New(sms.Config{
			APIKey:  cfg.SMSAPIKey,
			BaseURL: cfg.SMSBaseURL,
			Sender:  cfg.SMSSender,
			Numbers: cfg.AlertNumbers(),
		})
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

func closeAll(sinks []sink.Sink) {
	for _, s := range sinks {
		_ = s.Close()
	}
}
