package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"scout-sdk/internal/sink"
)

const instrumentationName = "scout-sdk/bridge"

// emitter is the subset of otellog.Logger the sink uses.
type emitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// LogSink emits every record as an OTel log record: the event document is the body,
// location and category are attributes.
type LogSink struct {
	logger emitter
}

var _ sink.Sink = (*LogSink)(nil)

// NewLogSink returns a LogSink on provider. A nil provider yields a sink that drops records.
func NewLogSink(provider *sdklog.LoggerProvider) *LogSink {
	if provider == nil {
		return &LogSink{}
	}
	return &LogSink{logger: provider.Logger(instrumentationName)}
}

func (s *LogSink) Name() string { return "otel_log" }

func (s *LogSink) Publish(ctx context.Context, r sink.Record) error {
	if s.logger == nil {
		return nil
	}
	var rec otellog.Record
	ts := r.ReceivedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName("scout." + string(r.Category))
	if len(r.Payload) > 0 {
		rec.SetBody(otellog.StringValue(string(r.Payload)))
	}
	rec.AddAttributes(
		otellog.String("record_id", r.ID),
		otellog.String("category", string(r.Category)),
	)
	if r.LocationID != "" {
		rec.AddAttributes(otellog.String("location_id", r.LocationID))
	}
	s.logger.Emit(ctx, rec)
	return nil
}

// Close is a no-op; the provider is shut down through Providers.Shutdown.
func (s *LogSink) Close() error { return nil }
