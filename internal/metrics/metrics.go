// Package metrics exposes the pipeline's OpenTelemetry counters. Exporter
// wiring is a deployment concern; counters record against the global meter
// provider.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Pipeline holds the counters recorded by the intake pipeline.
type Pipeline struct {
	received  metric.Int64Counter
	rejected  metric.Int64Counter
	ignored   metric.Int64Counter
	created   metric.Int64Counter
	delivered metric.Int64Counter
	failed    metric.Int64Counter
}

// NewPipeline registers the pipeline counters on the global meter.
func NewPipeline() (*Pipeline, error) {
	meter := otel.Meter("discubot/backend")

	var p Pipeline
	var err error
	if p.received, err = meter.Int64Counter("discubot.events.received"); err != nil {
		return nil, err
	}
	if p.rejected, err = meter.Int64Counter("discubot.events.rejected"); err != nil {
		return nil, err
	}
	if p.ignored, err = meter.Int64Counter("discubot.events.ignored"); err != nil {
		return nil, err
	}
	if p.created, err = meter.Int64Counter("discubot.tasks.created"); err != nil {
		return nil, err
	}
	if p.delivered, err = meter.Int64Counter("discubot.tasks.delivered"); err != nil {
		return nil, err
	}
	if p.failed, err = meter.Int64Counter("discubot.deliveries.failed"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pipeline) source(sourceType string) metric.AddOption {
	return metric.WithAttributes(attribute.String("source", sourceType))
}

// EventReceived records one inbound webhook event.
func (p *Pipeline) EventReceived(ctx context.Context, sourceType string) {
	p.received.Add(ctx, 1, p.source(sourceType))
}

// EventRejected records one event rejected before processing.
func (p *Pipeline) EventRejected(ctx context.Context, sourceType string) {
	p.rejected.Add(ctx, 1, p.source(sourceType))
}

// EventIgnored records one event that processed to a normal ignore outcome.
func (p *Pipeline) EventIgnored(ctx context.Context, sourceType string) {
	p.ignored.Add(ctx, 1, p.source(sourceType))
}

// TaskCreated records one task extracted from a discussion.
func (p *Pipeline) TaskCreated(ctx context.Context, sourceType string) {
	p.created.Add(ctx, 1, p.source(sourceType))
}

// TaskDelivered records one task created in the destination tool.
func (p *Pipeline) TaskDelivered(ctx context.Context, sourceType string) {
	p.delivered.Add(ctx, 1, p.source(sourceType))
}

// DeliveryFailed records one failed destination delivery.
func (p *Pipeline) DeliveryFailed(ctx context.Context, sourceType string) {
	p.failed.Add(ctx, 1, p.source(sourceType))
}
