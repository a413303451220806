package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/coinhunt/roomengine/internal/engine"

type metrics struct {
	generated   metric.Int64Counter
	grabbed     metric.Int64Counter
	misses      metric.Int64Counter
	indexErrors metric.Int64Counter
	expired     metric.Int64Counter
	rooms       metric.Int64ObservableGauge
	available   metric.Int64ObservableGauge
}

func newMetrics(e *Engine) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	var (
		out metrics
		err error
	)

	if out.generated, err = m.Int64Counter("engine.coins.generated",
		metric.WithDescription("Coins created by generation batches")); err != nil {
		return nil, fmt.Errorf("creating generated counter: %w", err)
	}
	if out.grabbed, err = m.Int64Counter("engine.coins.grabbed",
		metric.WithDescription("Successful grabs")); err != nil {
		return nil, fmt.Errorf("creating grabbed counter: %w", err)
	}
	if out.misses, err = m.Int64Counter("engine.grab.misses",
		metric.WithDescription("Grabs that found no coin")); err != nil {
		return nil, fmt.Errorf("creating misses counter: %w", err)
	}
	if out.indexErrors, err = m.Int64Counter("engine.index.errors",
		metric.WithDescription("Failed geospatial index calls")); err != nil {
		return nil, fmt.Errorf("creating index error counter: %w", err)
	}
	if out.expired, err = m.Int64Counter("engine.rooms.expired",
		metric.WithDescription("Rooms whose state lapsed")); err != nil {
		return nil, fmt.Errorf("creating expired counter: %w", err)
	}
	if out.rooms, err = m.Int64ObservableGauge("engine.rooms",
		metric.WithDescription("Known rooms")); err != nil {
		return nil, fmt.Errorf("creating rooms gauge: %w", err)
	}
	if out.available, err = m.Int64ObservableGauge("engine.coins.available",
		metric.WithDescription("Live coins per room")); err != nil {
		return nil, fmt.Errorf("creating available gauge: %w", err)
	}

	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		summaries := e.Rooms()
		o.ObserveInt64(out.rooms, int64(len(summaries)))
		for _, s := range summaries {
			o.ObserveInt64(out.available, int64(s.CoinsAvailable),
				metric.WithAttributes(attribute.String("room", s.Room)))
		}
		return nil
	}, out.rooms, out.available)
	if err != nil {
		return nil, fmt.Errorf("registering room callback: %w", err)
	}

	return &out, nil
}

func roomAttr(room string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("room", room))
}
