package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Drift is one account whose cached balance disagrees with its ledger sum.
type Drift struct {
	AccountID     uuid.UUID
	CachedBalance int
	LedgerBalance int
}

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// DriftedAccounts returns every account whose credit_balance differs from the
// signed sum of its ledger entries. With settlement running correctly this
// returns nothing; a non-empty result means a past partial failure.
func (r *Repository) DriftedAccounts(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.credit_balance, COALESCE(l.ledger_sum, 0)
		FROM accounts a
		LEFT JOIN (
			SELECT account_id, SUM(CASE WHEN kind = 'EARNED' THEN amount ELSE -amount END) AS ledger_sum
			FROM credit_ledger GROUP BY account_id
		) l ON l.account_id = a.id
		WHERE a.credit_balance <> COALESCE(l.ledger_sum, 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.AccountID, &d.CachedBalance, &d.LedgerBalance); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}

// RepairBalance rewrites the cached balance from the ledger in one statement,
// so the sum is recomputed under the same row lock that in-flight settlements
// hold. Returns the repaired balance.
func (r *Repository) RepairBalance(ctx context.Context, accountID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = (
			SELECT COALESCE(SUM(CASE WHEN kind = 'EARNED' THEN amount ELSE -amount END), 0)
			FROM credit_ledger WHERE account_id = $1
		), updated_at = now()
		WHERE id = $1
		RETURNING credit_balance
	`, accountID).Scan(&balance)
	return balance, err
}
