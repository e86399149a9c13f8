package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/af-corp/aegis-ids/internal/types"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink inserts audit records into the audit_events table.
type PostgresSink struct {
	db execer
}

// NewPostgresSink uses an existing pool. The audit_events table is created
// by cmd/migrate.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: pool}
}

const insertAuditEvent = `
	INSERT INTO audit_events
		(occurred_at, level, source, worker, client_ip, payload, prediction, cache_hit, event, error, reason)
	VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''))
`

func (s *PostgresSink) Write(ctx context.Context, rec types.AuditRecord) error {
	occurred, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		occurred = time.Now().UTC()
	}

	_, err = s.db.Exec(ctx, insertAuditEvent,
		occurred,
		rec.Level,
		rec.Source,
		rec.Worker,
		rec.IP,
		rec.Payload,
		string(rec.Prediction),
		rec.CacheHit,
		rec.Event,
		rec.Error,
		rec.Reason,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}
