package notify

import (
	"context"
	"log/slog"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

// Notifier delivers a rate-limit incident. It reports whether delivery
// succeeded and never returns an error to the caller.
type Notifier interface {
	SendIncident(ctx context.Context, incident models.Incident) bool
}

// LogNotifier writes incidents to the structured log
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by logger (slog.Default when nil)
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendIncident logs the incident at warn level
func (n *LogNotifier) SendIncident(ctx context.Context, incident models.Incident) bool {
	n.logger.WarnContext(ctx, "rate limit hit, fallback model in use",
		"incident_id", incident.ID,
		"primary_model", incident.PrimaryModel,
		"fallback_model", incident.FallbackModel,
		"conversation_id", incident.ConversationID,
		"occurred_at", incident.OccurredAt,
		"error", incident.ErrorText,
	)
	return true
}

// Fanout delivers to every notifier and succeeds if any one does
type Fanout []Notifier

// SendIncident implements Notifier
func (f Fanout) SendIncident(ctx context.Context, incident models.Incident) bool {
	delivered := false
	for _, n := range f {
		if n.SendIncident(ctx, incident) {
			delivered = true
		}
	}
	return delivered
}
