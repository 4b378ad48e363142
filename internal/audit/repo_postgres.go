package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to the audit_events table. The table carries no UPDATE/DELETE path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor, target_id, message, metadata, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.Type,
		e.Actor,
		e.TargetID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}
