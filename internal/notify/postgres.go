package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const incidentSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_incidents (
	id              UUID PRIMARY KEY,
	primary_model   TEXT NOT NULL,
	fallback_model  TEXT NOT NULL,
	error_text      TEXT NOT NULL,
	conversation_id TEXT,
	occurred_at     TIMESTAMPTZ NOT NULL
)`

// Execer is the subset of pgxpool.Pool used for writes
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// PostgresNotifier appends incidents to the rate_limit_incidents table
type PostgresNotifier struct {
	db      Execer
	timeout time.Duration
	tracer  trace.Tracer
}

// NewPostgresNotifier creates a notifier writing through db
func NewPostgresNotifier(db Execer) *PostgresNotifier {
	return &PostgresNotifier{
		db:      db,
		timeout: 5 * time.Second,
		tracer:  otel.Tracer("incident-ledger"),
	}
}

// EnsureSchema creates the incident table when missing
func (n *PostgresNotifier) EnsureSchema(ctx context.Context) error {
	if _, err := n.db.Exec(ctx, incidentSchema); err != nil {
		return fmt.Errorf("failed to create rate_limit_incidents table: %w", err)
	}
	return nil
}

// SendIncident inserts the incident row
func (n *PostgresNotifier) SendIncident(ctx context.Context, incident models.Incident) bool {
	ctx, span := n.tracer.Start(ctx, "incident_ledger.insert")
	defer span.End()

	span.SetAttributes(
		attribute.String("incident.id", incident.ID),
		attribute.String("model.primary", incident.PrimaryModel),
		attribute.String("model.fallback", incident.FallbackModel),
	)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var conversationID *string
	if incident.ConversationID != "" {
		conversationID = &incident.ConversationID
	}

	_, err := n.db.Exec(ctx, `
		INSERT INTO rate_limit_incidents (id, primary_model, fallback_model, error_text, conversation_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, incident.ID, incident.PrimaryModel, incident.FallbackModel, incident.ErrorText, conversationID, incident.OccurredAt)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to record rate limit incident", "incident_id", incident.ID, "error", err)
		return false
	}
	return true
}
