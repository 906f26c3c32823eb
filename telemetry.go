package gotap

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/couchbaselabs/gotap")
var tracer = otel.Tracer("github.com/couchbaselabs/gotap")

type clientTelem struct {
	packetsMetric metric.Int64Counter
	eventsMetric  metric.Int64Counter
}

func newClientTelem() *clientTelem {
	packetsMetric, _ := meter.Int64Counter("tap.client.packets")
	eventsMetric, _ := meter.Int64Counter("tap.client.events")

	return &clientTelem{
		packetsMetric: packetsMetric,
		eventsMetric:  eventsMetric,
	}
}

func (t *clientTelem) RecordPacket(ctx context.Context, opCode string) {
	t.packetsMetric.Add(ctx, 1,
		metric.WithAttributes(attribute.String("opcode", opCode)))
}

func (t *clientTelem) RecordEvent(ctx context.Context, eventType string) {
	t.eventsMetric.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", eventType)))
}
