package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kaminskyi/eventbook/internal/domain"
)

type LoyaltyRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *LoyaltyRepo) With(db DB) *LoyaltyRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *LoyaltyRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Credit adds points to the customer's balance, creating the row on first
// credit, and returns the new balance. Concurrent credits for the same
// customer serialize on the row; callers crediting as part of a booking
// finalization must run inside that transaction via With.
func (r *LoyaltyRepo) Credit(ctx context.Context, customerID string, points int64) (int64, error) {
	const op = "postgres.LoyaltyRepo.Credit"

	db := r.handle()

	var balance int64
	err := db.QueryRow(ctx,
		`INSERT INTO loyalty_balances(customer_id, points, updated_at)
       	 VALUES ($1, $2, now())
     	 ON CONFLICT (customer_id)
     	 DO UPDATE SET points = loyalty_balances.points + EXCLUDED.points,
                   	   updated_at = now()
     	 RETURNING points`,
		customerID, points,
	).Scan(&balance)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return balance, nil
}

// Balance retrieves the customer's loyalty balance.
//
// Returns:
//   - error: repository.ErrNotFound if the customer has never been credited.
func (r *LoyaltyRepo) Balance(ctx context.Context, customerID string) (*domain.LoyaltyBalance, error) {
	const op = "postgres.LoyaltyRepo.Balance"

	db := r.handle()

	var lb domain.LoyaltyBalance
	err := db.QueryRow(ctx,
		`SELECT customer_id, points, updated_at
       	 FROM loyalty_balances
      	 WHERE customer_id = $1`,
		customerID,
	).Scan(&lb.CustomerID, &lb.Points, &lb.UpdatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &lb, nil
}
