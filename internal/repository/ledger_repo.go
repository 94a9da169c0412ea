package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursely/backend/internal/models"
)

// LedgerRepo persists credit movements. The table is append-only: this repo
// exposes no update or delete, and every balance mutation on accounts must be
// paired with an append inside the same transaction.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// AppendTx inserts a ledger entry inside the given transaction.
func (r *LedgerRepo) AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, account_id, kind, amount, description, related_purchase_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, e.ID, e.AccountID, e.Kind, e.Amount, e.Description, e.RelatedPurchaseID).Scan(&e.CreatedAt)
}

// ListByAccountID returns the account's entries newest-first.
func (r *LedgerRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, kind, amount, description, related_purchase_id, created_at
		FROM credit_ledger WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.Kind, &e.Amount, &e.Description, &e.RelatedPurchaseID, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}

// BalanceFromLedger recomputes the account balance from the ledger alone.
func (r *LedgerRepo) BalanceFromLedger(ctx context.Context, accountID uuid.UUID) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN kind = 'EARNED' THEN amount ELSE -amount END), 0)
		FROM credit_ledger WHERE account_id = $1
	`, accountID).Scan(&balance)
	return balance, err
}
