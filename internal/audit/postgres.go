package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adriacb/enact/internal/model"
)

// PostgresSink writes each audit record as a row in the audit_records
// table. The schema is created by internal/registry/postgres's Migrate.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink builds a sink over an already-migrated pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// Name implements Sink.
func (s *PostgresSink) Name() string { return "postgres" }

// Log implements Sink.
func (s *PostgresSink) Log(record model.AuditRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("audit postgres sink: marshaling record: %w", err)
	}

	const insert = `
INSERT INTO audit_records
	(correlation_id, ts, agent_id, tool, function, allow, reason, decision_source, duration_ms, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(context.Background(), insert,
		record.CorrelationID, record.Timestamp, record.AgentID, record.Tool, record.Function,
		record.Allow, record.Reason, record.DecisionSource, record.DurationMs, payload,
	)
	if err != nil {
		return fmt.Errorf("audit postgres sink: inserting record: %w", err)
	}
	return nil
}
