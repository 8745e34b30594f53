package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/bizmatters/plc-copilot/context-engine/internal/models"
)

const sqliteIncidentSchema = `
CREATE TABLE IF NOT EXISTS rate_limit_incidents (
	id              TEXT PRIMARY KEY,
	primary_model   TEXT NOT NULL,
	fallback_model  TEXT NOT NULL,
	error_text      TEXT NOT NULL,
	conversation_id TEXT,
	occurred_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_incidents_occurred_at ON rate_limit_incidents(occurred_at);
`

// SQLiteNotifier keeps a local incident ledger for single-node deployments
// that run without Postgres
type SQLiteNotifier struct {
	db      *sql.DB
	insert  *sql.Stmt
	timeout time.Duration
	tracer  trace.Tracer
}

// OpenSQLiteNotifier opens (or creates) the ledger at path. Use ":memory:" in tests.
func OpenSQLiteNotifier(path string) (*SQLiteNotifier, error) {
	if path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(sqliteIncidentSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	insert, err := db.Prepare(`
		INSERT INTO rate_limit_incidents (id, primary_model, fallback_model, error_text, conversation_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	return &SQLiteNotifier{
		db:      db,
		insert:  insert,
		timeout: 5 * time.Second,
		tracer:  otel.Tracer("incident-ledger"),
	}, nil
}

// SendIncident inserts the incident row
func (n *SQLiteNotifier) SendIncident(ctx context.Context, incident models.Incident) bool {
	ctx, span := n.tracer.Start(ctx, "incident_ledger.sqlite_insert")
	defer span.End()
	span.SetAttributes(attribute.String("incident.id", incident.ID))

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	var conversationID sql.NullString
	if incident.ConversationID != "" {
		conversationID = sql.NullString{String: incident.ConversationID, Valid: true}
	}

	_, err := n.insert.ExecContext(ctx,
		incident.ID,
		incident.PrimaryModel,
		incident.FallbackModel,
		incident.ErrorText,
		conversationID,
		incident.OccurredAt.UTC().UnixMilli(),
	)
	if err != nil {
		span.RecordError(err)
		slog.Error("failed to record rate limit incident", "incident_id", incident.ID, "error", err)
		return false
	}
	return true
}

// Recent returns the newest incidents first
func (n *SQLiteNotifier) Recent(ctx context.Context, limit int) ([]models.Incident, error) {
	rows, err := n.db.QueryContext(ctx, `
		SELECT id, primary_model, fallback_model, error_text, conversation_id, occurred_at
		FROM rate_limit_incidents
		ORDER BY occurred_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []models.Incident
	for rows.Next() {
		var inc models.Incident
		var conversationID sql.NullString
		var occurredAt int64
		if err := rows.Scan(&inc.ID, &inc.PrimaryModel, &inc.FallbackModel, &inc.ErrorText, &conversationID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		inc.ConversationID = conversationID.String
		inc.OccurredAt = time.UnixMilli(occurredAt).UTC()
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// Close releases the database
func (n *SQLiteNotifier) Close() error {
	if err := n.insert.Close(); err != nil {
		slog.Warn("failed to close statement", "error", err)
	}
	return n.db.Close()
}
