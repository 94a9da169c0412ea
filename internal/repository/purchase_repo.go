package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursely/backend/internal/models"
)

type PurchaseRepo struct {
	pool *pgxpool.Pool
}

func NewPurchaseRepo(pool *pgxpool.Pool) *PurchaseRepo {
	return &PurchaseRepo{pool: pool}
}

// ExistsByAccountAndCourse is a fast-path duplicate check only. The unique
// index on (account_id, course_id) is the actual correctness guarantee;
// CreateTx surfaces its violation.
func (r *PurchaseRepo) ExistsByAccountAndCourse(ctx context.Context, accountID, courseID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM purchases WHERE account_id = $1 AND course_id = $2)
	`, accountID, courseID).Scan(&exists)
	return exists, err
}

// CreateTx inserts the purchase record inside the given transaction. A
// concurrent duplicate surfaces as a unique violation (SQLSTATE 23505).
func (r *PurchaseRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PurchaseRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO purchases (id, account_id, course_id, price_paid, credits_applied, referral_reward_issued)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, p.ID, p.AccountID, p.CourseID, p.PricePaid, p.CreditsApplied, p.ReferralRewardIssued).Scan(&p.CreatedAt)
}

// MarkReferralRewardIssuedTx flips referral_reward_issued on a record created
// earlier in the same transaction.
func (r *PurchaseRepo) MarkReferralRewardIssuedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, err := tx.Exec(ctx, `
		UPDATE purchases SET referral_reward_issued = TRUE
		WHERE id = $1 AND referral_reward_issued = FALSE
	`, id)
	return err
}

func (r *PurchaseRepo) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.PurchaseRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, account_id, course_id, price_paid, credits_applied, referral_reward_issued, created_at
		FROM purchases WHERE account_id = $1 ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PurchaseRecord
	for rows.Next() {
		var p models.PurchaseRecord
		if err := rows.Scan(&p.ID, &p.AccountID, &p.CourseID, &p.PricePaid, &p.CreditsApplied, &p.ReferralRewardIssued, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
