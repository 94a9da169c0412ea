package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coursely/backend/internal/models"
)

const accountColumns = `id, email, name, password_hash, referral_code, referrer_id, credit_balance, has_received_first_purchase_bonus, created_at, updated_at`

type AccountRepo struct {
	pool *pgxpool.Pool
}

func NewAccountRepo(pool *pgxpool.Pool) *AccountRepo {
	return &AccountRepo{pool: pool}
}

func (r *AccountRepo) Create(ctx context.Context, a *models.Account) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, name, password_hash, referral_code, referrer_id, credit_balance, has_received_first_purchase_bonus)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.Email, a.Name, a.PasswordHash, a.ReferralCode, a.ReferrerID, a.CreditBalance, a.HasReceivedFirstPurchaseBonus).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1
	`, id))
}

func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE email = $1
	`, email))
}

func (r *AccountRepo) GetByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE referral_code = $1
	`, code))
}

// GetByIDForUpdate locks the account row for the duration of the caller's
// transaction, serializing settlements that touch the same account.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error) {
	return r.scanOne(tx.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE
	`, id))
}

// SetReferrer records the referring account on a freshly registered account.
// The conditional WHERE keeps the field write-once.
func (r *AccountRepo) SetReferrer(ctx context.Context, id, referrerID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE accounts SET referrer_id = $2, updated_at = now()
		WHERE id = $1 AND referrer_id IS NULL
	`, id, referrerID)
	return err
}

// DeductCredits atomically deducts amount if the balance covers it. Returns
// pgx.ErrNoRows when the conditional update matched nothing, i.e. the balance
// the caller read is stale.
func (r *AccountRepo) DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance - $1, updated_at = now()
		WHERE id = $2 AND credit_balance >= $1
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// AddCredits adds amount to the account and returns the new balance.
func (r *AccountRepo) AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE accounts SET credit_balance = credit_balance + $1, updated_at = now()
		WHERE id = $2
		RETURNING credit_balance
	`, amount, id).Scan(&newBalance)
	return newBalance, err
}

// MarkFirstPurchaseBonus flips has_received_first_purchase_bonus as a
// compare-and-set: the update only matches while the flag is false, and the
// return value reports whether this caller won the flip. A false return means
// the bonus was already granted elsewhere and must not be granted again.
func (r *AccountRepo) MarkFirstPurchaseBonus(ctx context.Context, tx pgx.Tx, id uuid.UUID) (granted bool, err error) {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET has_received_first_purchase_bonus = TRUE, updated_at = now()
		WHERE id = $1 AND has_received_first_purchase_bonus = FALSE
	`, id)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() == 1, nil
}

func (r *AccountRepo) scanOne(row pgx.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.PasswordHash, &a.ReferralCode, &a.ReferrerID, &a.CreditBalance, &a.HasReceivedFirstPurchaseBonus, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}
