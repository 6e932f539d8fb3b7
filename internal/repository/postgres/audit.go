package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaminskyi/eventbook/internal/domain"
)

type AuditRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *AuditRepo) With(db DB) *AuditRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *AuditRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert appends an audit record. The log is a side-effect trail: callers
// treat failures as best-effort and never roll back financial state over
// them.
func (r *AuditRepo) Insert(ctx context.Context, actorID string, action domain.AuditAction, details string) error {
	const op = "postgres.AuditRepo.Insert"

	db := r.handle()

	if _, err := db.Exec(ctx,
		`INSERT INTO audit_log(actor_id, action, details)
       	 VALUES ($1, $2, $3)`,
		actorID, action, details,
	); err != nil {
		return wrapDBErr(op, err)
	}

	return nil
}
