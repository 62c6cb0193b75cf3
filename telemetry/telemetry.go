// Package telemetry sets up the OpenTelemetry meter provider shared by the
// zone services and the grid caches.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const ServiceName = "terminus-realm-zoneserver"

// Config selects the metrics exporter.
type Config struct {
	Exporter string    // none, stdout or prometheus
	Version  string
	Writer   io.Writer // stdout exporter destination, os.Stdout if nil
}

// Telemetry owns the meter provider and, for prometheus, the registry served
// on /metrics.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter
	registry *prometheus.Registry
}

// Setup builds the meter provider for cfg.Exporter.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	if cfg.Exporter == "" || cfg.Exporter == "none" {
		return &Telemetry{meter: noop.NewMeterProvider().Meter(ServiceName)}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	t := &Telemetry{}
	reader, err := t.newReader(cfg)
	if err != nil {
		return nil, err
	}

	t.provider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(t.provider)
	t.meter = t.provider.Meter(ServiceName)
	return t, nil
}

func (t *Telemetry) newReader(cfg Config) (sdkmetric.Reader, error) {
	switch cfg.Exporter {
	case "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil

	case "prometheus":
		t.registry = prometheus.NewRegistry()
		exp, err := otelprom.New(otelprom.WithRegisterer(t.registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		return exp, nil

	default:
		return nil, fmt.Errorf("unknown metrics exporter: %q", cfg.Exporter)
	}
}

// Meter returns the meter for instrumenting server components.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Handler serves the prometheus registry. It is nil for other exporters.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter shutdown: %w", err)
	}
	return nil
}
