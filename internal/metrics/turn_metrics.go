package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("context-engine-metrics")

// TurnMetrics collects conversation turn and model call metrics
type TurnMetrics struct {
	turnsStartedCounter    metric.Int64Counter
	turnsCompletedCounter  metric.Int64Counter
	turnsFailedCounter     metric.Int64Counter
	turnDurationHistogram  metric.Float64Histogram
	turnsActiveGauge       metric.Int64UpDownCounter
	modelCallsCounter      metric.Int64Counter
	modelCallDuration      metric.Float64Histogram
	fallbacksCounter       metric.Int64Counter
	fileExtractionsCounter metric.Int64Counter
}

// NewTurnMetrics creates a new turn metrics collector
func NewTurnMetrics() (*TurnMetrics, error) {
	turnsStartedCounter, err := meter.Int64Counter(
		"plc_copilot.turns.started",
		metric.WithDescription("Total number of conversation turns started"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnsCompletedCounter, err := meter.Int64Counter(
		"plc_copilot.turns.completed",
		metric.WithDescription("Total number of conversation turns answered, degraded ones included"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnsFailedCounter, err := meter.Int64Counter(
		"plc_copilot.turns.failed",
		metric.WithDescription("Total number of conversation turns surfaced as errors"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	turnDurationHistogram, err := meter.Float64Histogram(
		"plc_copilot.turn.duration",
		metric.WithDescription("Duration of a conversation turn in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	turnsActiveGauge, err := meter.Int64UpDownCounter(
		"plc_copilot.turns.active",
		metric.WithDescription("Number of turns currently being processed"),
		metric.WithUnit("{turn}"),
	)
	if err != nil {
		return nil, err
	}

	modelCallsCounter, err := meter.Int64Counter(
		"plc_copilot.model_calls",
		metric.WithDescription("Total number of model calls by model and outcome"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	modelCallDuration, err := meter.Float64Histogram(
		"plc_copilot.model_call.duration",
		metric.WithDescription("Duration of a single model call in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	fallbacksCounter, err := meter.Int64Counter(
		"plc_copilot.model_fallbacks",
		metric.WithDescription("Total number of rate-limit fallbacks between models"),
		metric.WithUnit("{fallback}"),
	)
	if err != nil {
		return nil, err
	}

	fileExtractionsCounter, err := meter.Int64Counter(
		"plc_copilot.file_extractions",
		metric.WithDescription("Total number of uploaded files processed"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	return &TurnMetrics{
		turnsStartedCounter:    turnsStartedCounter,
		turnsCompletedCounter:  turnsCompletedCounter,
		turnsFailedCounter:     turnsFailedCounter,
		turnDurationHistogram:  turnDurationHistogram,
		turnsActiveGauge:       turnsActiveGauge,
		modelCallsCounter:      modelCallsCounter,
		modelCallDuration:      modelCallDuration,
		fallbacksCounter:       fallbacksCounter,
		fileExtractionsCounter: fileExtractionsCounter,
	}, nil
}

// RecordTurnStarted records a turn entering processing
func (tm *TurnMetrics) RecordTurnStarted(ctx context.Context, stage string) {
	tm.turnsStartedCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
	tm.turnsActiveGauge.Add(ctx, 1)
}

// RecordTurnCompleted records an answered turn. degraded marks answers
// produced by a fallback path.
func (tm *TurnMetrics) RecordTurnCompleted(ctx context.Context, stage string, degraded bool, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", "completed"),
		attribute.Bool("degraded", degraded),
	)
	tm.turnsCompletedCounter.Add(ctx, 1, attrs)
	tm.turnDurationHistogram.Record(ctx, duration.Seconds(), attrs)
	tm.turnsActiveGauge.Add(ctx, -1)
}

// RecordTurnFailed records a turn that returned an error to the caller
func (tm *TurnMetrics) RecordTurnFailed(ctx context.Context, stage, errorType string, duration time.Duration) {
	tm.turnsFailedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", "failed"),
			attribute.String("error.type", errorType),
		),
	)
	tm.turnDurationHistogram.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("status", "failed"),
		),
	)
	tm.turnsActiveGauge.Add(ctx, -1)
}

// RecordModelCall records one backend call
func (tm *TurnMetrics) RecordModelCall(ctx context.Context, model, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	)
	tm.modelCallsCounter.Add(ctx, 1, attrs)
	tm.modelCallDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFallback records a switch from one model to another
func (tm *TurnMetrics) RecordFallback(ctx context.Context, from, to string) {
	tm.fallbacksCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("model.from", from),
			attribute.String("model.to", to),
		),
	)
}

// RecordFileExtraction records one processed upload
func (tm *TurnMetrics) RecordFileExtraction(ctx context.Context, degraded bool) {
	tm.fileExtractionsCounter.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("degraded", degraded)),
	)
}
