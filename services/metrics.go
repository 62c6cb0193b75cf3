package services

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Zone sources reported on the zones.resolved counter.
const (
	sourceCache     = "cache"
	sourceStorage   = "storage"
	sourceOverride  = "override"
	sourceGenerated = "procedural"
)

type zoneMetrics struct {
	resolved  metric.Int64Counter
	tileWrite metric.Int64Counter
	saveError metric.Int64Counter
}

func newZoneMetrics(meter metric.Meter) (*zoneMetrics, error) {
	resolved, err := meter.Int64Counter(
		"zones.resolved",
		metric.WithDescription("Zone lookups by the source that produced the zone"),
		metric.WithUnit("{zone}"),
	)
	if err != nil {
		return nil, err
	}

	tileWrite, err := meter.Int64Counter(
		"zones.tile_writes",
		metric.WithDescription("Tiles written through the zone service"),
		metric.WithUnit("{tile}"),
	)
	if err != nil {
		return nil, err
	}

	saveError, err := meter.Int64Counter(
		"zones.save_errors",
		metric.WithDescription("Zones that failed to persist"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &zoneMetrics{resolved: resolved, tileWrite: tileWrite, saveError: saveError}, nil
}

func (m *zoneMetrics) recordResolved(ctx context.Context, source, dimension string) {
	if m == nil {
		return
	}
	m.resolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("zone.source", source),
		attribute.String("zone.dimension", dimension),
	))
}

func (m *zoneMetrics) recordTileWrite(ctx context.Context, dimension string) {
	if m == nil {
		return
	}
	m.tileWrite.Add(ctx, 1, metric.WithAttributes(attribute.String("zone.dimension", dimension)))
}

func (m *zoneMetrics) recordSaveError(ctx context.Context) {
	if m == nil {
		return
	}
	m.saveError.Add(ctx, 1)
}
