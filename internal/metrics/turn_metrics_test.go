package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnMetrics_Creation(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	assert.NotNil(t, metrics)
	assert.NotNil(t, metrics.turnsStartedCounter)
	assert.NotNil(t, metrics.turnsCompletedCounter)
	assert.NotNil(t, metrics.turnsFailedCounter)
	assert.NotNil(t, metrics.turnDurationHistogram)
	assert.NotNil(t, metrics.turnsActiveGauge)
	assert.NotNil(t, metrics.modelCallsCounter)
	assert.NotNil(t, metrics.modelCallDuration)
	assert.NotNil(t, metrics.fallbacksCounter)
	assert.NotNil(t, metrics.fileExtractionsCounter)
}

func TestTurnMetrics_TurnLifecycle(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("completed turn", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "gathering_requirements")
			metrics.RecordTurnCompleted(ctx, "gathering_requirements", false, 1200*time.Millisecond)
		})
	})

	t.Run("degraded turn", func(t *testing.T) {
		assert.NotPanics(t, func() {
			metrics.RecordTurnStarted(ctx, "code_generation")
			metrics.RecordTurnCompleted(ctx, "code_generation", true, 3*time.Second)
		})
	})

	t.Run("failed turns with various error types", func(t *testing.T) {
		for _, errorType := range []string{"rate_limited", "unsupported_parameter", "timeout"} {
			metrics.RecordTurnStarted(ctx, "refinement_testing")
			metrics.RecordTurnFailed(ctx, "refinement_testing", errorType, 500*time.Millisecond)
		}
	})
}

func TestTurnMetrics_ModelCalls(t *testing.T) {
	metrics, err := NewTurnMetrics()
	require.NoError(t, err)
	ctx := context.Background()

	durations := []time.Duration{
		50 * time.Millisecond,
		2 * time.Second,
		30 * time.Second,
	}
	for _, duration := range durations {
		assert.NotPanics(t, func() {
			metrics.RecordModelCall(ctx, "gpt-4o-mini", "success", duration)
		})
	}

	assert.NotPanics(t, func() {
		metrics.RecordModelCall(ctx, "gpt-4o-mini", "rate_limited", time.Second)
		metrics.RecordFallback(ctx, "gpt-4o-mini", "gpt-4o")
		metrics.RecordFileExtraction(ctx, false)
		metrics.RecordFileExtraction(ctx, true)
	})
}
