package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursely/backend/internal/models"
)

type ReferralRepo struct {
	pool *pgxpool.Pool
}

func NewReferralRepo(pool *pgxpool.Pool) *ReferralRepo {
	return &ReferralRepo{pool: pool}
}

// Create inserts a pending link. The unique index on referred_id and the
// referrer <> referred check surface as pgconn errors for the caller to map.
func (r *ReferralRepo) Create(ctx context.Context, l *models.ReferralLink) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO referrals (id, referrer_id, referred_id, status, reward_issued)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, l.ID, l.ReferrerID, l.ReferredID, l.Status, l.RewardIssued).Scan(&l.CreatedAt)
}

// FindByReferred returns the link for which the given account is the referred
// party, or nil when none exists.
func (r *ReferralRepo) FindByReferred(ctx context.Context, referredID uuid.UUID) (*models.ReferralLink, error) {
	return scanReferral(r.pool.QueryRow(ctx, `
		SELECT id, referrer_id, referred_id, status, reward_issued, created_at
		FROM referrals WHERE referred_id = $1
	`, referredID))
}

// FindPendingByReferred returns the pending, unsettled link for the referred
// account, or nil when none exists.
func (r *ReferralRepo) FindPendingByReferred(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.ReferralLink, error) {
	return scanReferral(tx.QueryRow(ctx, `
		SELECT id, referrer_id, referred_id, status, reward_issued, created_at
		FROM referrals WHERE referred_id = $1 AND status = $2 AND reward_issued = FALSE
	`, referredID, models.ReferralStatusPending))
}

// Settle transitions the link pending→converted and flips reward_issued as a
// compare-and-set. A false return means the reward was already issued; callers
// treat that as a no-op, never a retry of the grant.
func (r *ReferralRepo) Settle(ctx context.Context, tx pgx.Tx, id uuid.UUID) (settled bool, err error) {
	result, err := tx.Exec(ctx, `
		UPDATE referrals SET status = $2, reward_issued = TRUE
		WHERE id = $1 AND reward_issued = FALSE
	`, id, models.ReferralStatusConverted)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

// CountByReferrer returns total and converted link counts for a referrer.
func (r *ReferralRepo) CountByReferrer(ctx context.Context, referrerID uuid.UUID) (total, converted int, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = $2)
		FROM referrals WHERE referrer_id = $1
	`, referrerID, models.ReferralStatusConverted).Scan(&total, &converted)
	return total, converted, err
}

func scanReferral(row pgx.Row) (*models.ReferralLink, error) {
	var l models.ReferralLink
	err := row.Scan(&l.ID, &l.ReferrerID, &l.ReferredID, &l.Status, &l.RewardIssued, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}
