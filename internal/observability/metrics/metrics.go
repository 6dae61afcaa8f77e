package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	oauthFlows    metric.Int64Counter
	tokenRefresh  metric.Int64Counter
	flowDuration  metric.Float64Histogram
	stateFailures metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "porter"
	}
	meter := provider.Meter(name)

	oauthFlows, err := meter.Int64Counter("porter_oauth_flows_total")
	if err != nil {
		return nil, err
	}
	tokenRefresh, err := meter.Int64Counter("porter_token_refresh_total")
	if err != nil {
		return nil, err
	}
	flowDuration, err := meter.Float64Histogram("porter_oauth_flow_duration_ms")
	if err != nil {
		return nil, err
	}
	stateFailures, err := meter.Int64Counter("porter_oauth_state_failures_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		oauthFlows:    oauthFlows,
		tokenRefresh:  tokenRefresh,
		flowDuration:  flowDuration,
		stateFailures: stateFailures,
	}, nil
}

// RecordFlow counts one OAuth flow operation by provider and outcome.
func (m *Metrics) RecordFlow(ctx context.Context, provider, operation string, success bool) {
	if m == nil {
		return
	}
	m.oauthFlows.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome(success)),
	))
}

// RecordRefresh counts one token refresh attempt by provider and outcome.
func (m *Metrics) RecordRefresh(ctx context.Context, provider string, success bool) {
	if m == nil {
		return
	}
	m.tokenRefresh.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome(success)),
	))
}

// ObserveFlowDuration records how long an orchestrator operation took.
func (m *Metrics) ObserveFlowDuration(ctx context.Context, provider, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.flowDuration.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("operation", operation),
	))
}

// RecordStateFailure counts a rejected CSRF state token.
func (m *Metrics) RecordStateFailure(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.stateFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported otlp protocol %q", protocol)
	}
}
