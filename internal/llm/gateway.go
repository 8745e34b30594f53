package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// IncidentNotifier is told once per reset window that a fallback happened
type IncidentNotifier interface {
	SendIncident(ctx context.Context, incident models.Incident) bool
}

// CallObserver receives per-call outcomes for metrics
type CallObserver interface {
	RecordModelCall(ctx context.Context, model, outcome string, duration time.Duration)
	RecordFallback(ctx context.Context, from, to string)
}

// Call outcomes reported to CallObserver
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeUnsupported = "unsupported_parameter"
	OutcomeTimeout     = "timeout"
	OutcomeError       = "error"
)

// Gateway issues completions through a backend, applying the selector's
// fallback policy on rate limits
type Gateway struct {
	backend  Backend
	selector *Selector
	notifier IncidentNotifier
	observer CallObserver
	timeout  time.Duration
	tracer   trace.Tracer
}

// NewGateway creates a completion gateway
func NewGateway(backend Backend, selector *Selector, notifier IncidentNotifier, timeout time.Duration) *Gateway {
	return &Gateway{
		backend:  backend,
		selector: selector,
		notifier: notifier,
		timeout:  timeout,
		tracer:   otel.Tracer("llm-gateway"),
	}
}

// SetObserver attaches a metrics observer
func (g *Gateway) SetObserver(observer CallObserver) {
	g.observer = observer
}

// Selector exposes the shared selection state
func (g *Gateway) Selector() *Selector {
	return g.selector
}

// Complete runs one completion. A rate-limited call is retried once on the
// next available cascade model; if that is rate limited too the original
// error is returned. Unsupported-parameter errors are never retried.
func (g *Gateway) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	ctx, span := g.tracer.Start(ctx, "llm_gateway.complete")
	defer span.End()

	model := g.selector.Select(req.Model)
	span.SetAttributes(
		attribute.String("model.requested", req.Model),
		attribute.String("model.selected", model),
		attribute.String("conversation.id", req.ConversationID),
	)

	completion, err := g.call(ctx, model, req)
	if err == nil {
		return completion, nil
	}
	if !IsRateLimited(err) {
		span.RecordError(err)
		return nil, err
	}

	g.selector.MarkRateLimited(model)
	next := g.selector.Select(req.Model)
	if next == model || g.selector.IsRateLimited(next) {
		span.RecordError(err)
		slog.Error("all cascade models rate limited", "requested", req.Model, "error", err)
		return nil, err
	}

	span.SetAttributes(attribute.String("model.fallback", next))
	slog.Warn("rate limit hit, falling back", "from", model, "to", next, "conversation_id", req.ConversationID)
	if g.observer != nil {
		g.observer.RecordFallback(ctx, model, next)
	}
	g.notify(ctx, model, next, err, req.ConversationID)

	completion, retryErr := g.call(ctx, next, req)
	if retryErr == nil {
		return completion, nil
	}
	span.RecordError(retryErr)
	if IsRateLimited(retryErr) {
		g.selector.MarkRateLimited(next)
		return nil, err
	}
	return nil, retryErr
}

func (g *Gateway) notify(ctx context.Context, primary, fallback string, cause error, conversationID string) {
	if g.notifier == nil || !g.selector.ClaimNotification() {
		return
	}
	incident := models.Incident{
		ID:             uuid.New().String(),
		PrimaryModel:   primary,
		FallbackModel:  fallback,
		ErrorText:      cause.Error(),
		ConversationID: conversationID,
		OccurredAt:     time.Now().UTC(),
	}
	if !g.notifier.SendIncident(ctx, incident) {
		slog.Warn("rate limit incident notification failed", "incident_id", incident.ID)
	}
}

// call performs one bounded backend request against a concrete model
func (g *Gateway) call(ctx context.Context, model string, req CompletionRequest) (*Completion, error) {
	callCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req.Model = model
	start := time.Now()
	completion, err := g.backend.Complete(callCtx, req)
	duration := time.Since(start)

	if err == nil && completion != nil && completion.Model == "" {
		completion.Model = model
	}
	if err == nil && completion == nil {
		err = ErrEmptyResponse
	}

	if err != nil {
		switch {
		case ctx.Err() != nil:
			err = &TimeoutError{Model: model, Cause: ctx.Err()}
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			err = &TimeoutError{Model: model, Timeout: g.timeout, Cause: callCtx.Err()}
		}
	}

	g.observe(ctx, model, err, duration)
	if err != nil {
		return nil, err
	}
	return completion, nil
}

func (g *Gateway) observe(ctx context.Context, model string, err error, duration time.Duration) {
	if g.observer == nil {
		return
	}
	g.observer.RecordModelCall(ctx, model, Outcome(err), duration)
}

// Outcome names the class of a call error for metrics and logs
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	var unsupported *UnsupportedParameterError
	var timeout *TimeoutError
	switch {
	case IsRateLimited(err):
		return OutcomeRateLimited
	case errors.As(err, &unsupported):
		return OutcomeUnsupported
	case errors.As(err, &timeout):
		return OutcomeTimeout
	}
	return OutcomeError
}

