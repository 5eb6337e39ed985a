package sim

import (
	"context"

	"github.com/filecoin-project/go-chainsim/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("chainsim/sim")
var metrics = struct {
	dispatched metric.Int64Counter
	confirmed  metric.Int64Counter
	revealed   metric.Int64Counter
	reorgDepth metric.Int64Histogram
}{
	dispatched: must(meter.Int64Counter("chainsim_events_dispatched", metric.WithDescription("Number of events dispatched by kind."))),
	confirmed:  must(meter.Int64Counter("chainsim_blocks_confirmed", metric.WithDescription("Number of blocks mined."))),
	revealed:   must(meter.Int64Counter("chainsim_private_blocks_revealed", metric.WithDescription("Number of withheld blocks revealed by ring masters."))),
	reorgDepth: must(meter.Int64Histogram("chainsim_reorg_depth",
		metric.WithDescription("Histogram of the number of blocks rolled back by chain reorganisations."),
		metric.WithExplicitBucketBoundaries(1.0, 2.0, 3.0, 4.0, 5.0, 10.0, 20.0, 50.0),
		metric.WithUnit("{block}"),
	)),
}

func recordDispatched(ctx context.Context, kind event.Kind) {
	metrics.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind.String())))
}

func must[V any](v V, err error) V {
	if err != nil {
		panic(err)
	}
	return v
}
