package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coursely/backend/internal/models"
)

// Bonus amounts, in credits. Both the buyer's first-purchase bonus and the
// referrer's conversion reward are fixed at 200.
const (
	FirstPurchaseBonusCredits = 200
	ReferralBonusCredits      = 200
)

// maxSettleAttempts bounds internal retries on transient conflicts before
// ErrSettlementConflict is surfaced to the caller.
const maxSettleAttempts = 3

// Validation errors are terminal: no mutation has happened, callers must not retry.
var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrCourseNotFound    = errors.New("course not found")
	ErrDuplicatePurchase = errors.New("course already purchased")
)

// ErrSettlementConflict is returned after bounded internal retries when
// concurrent settlements on the same account keep interfering. The whole
// purchase may be retried by the caller.
var ErrSettlementConflict = errors.New("settlement conflict")

// errStaleBalance signals that a conditional balance update matched no row:
// the balance read at the start of the attempt no longer holds.
var errStaleBalance = errors.New("stale balance read")

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// SettlementAccountRepo is the minimal account repository interface for settlement.
type SettlementAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*models.Account, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	AddCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (newBalance int, err error)
	MarkFirstPurchaseBonus(ctx context.Context, tx pgx.Tx, id uuid.UUID) (granted bool, err error)
}

// SettlementLedgerRepo is the append-only ledger interface for settlement.
type SettlementLedgerRepo interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.LedgerEntry) error
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// SettlementReferralRepo looks up and settles referral links.
type SettlementReferralRepo interface {
	FindPendingByReferred(ctx context.Context, tx pgx.Tx, referredID uuid.UUID) (*models.ReferralLink, error)
	Settle(ctx context.Context, tx pgx.Tx, id uuid.UUID) (settled bool, err error)
}

// SettlementPurchaseRepo persists purchase records.
type SettlementPurchaseRepo interface {
	ExistsByAccountAndCourse(ctx context.Context, accountID, courseID uuid.UUID) (bool, error)
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PurchaseRecord) error
	MarkReferralRewardIssuedTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error
}

// CourseCatalog is the external collaborator the engine reads prices from.
// Not-found surfaces as pgx.ErrNoRows.
type CourseCatalog interface {
	PriceByID(ctx context.Context, id uuid.UUID) (int, error)
}

// PurchaseResult is what a successful settlement returns.
type PurchaseResult struct {
	Purchase             *models.PurchaseRecord `json:"purchase"`
	NewBalance           int                    `json:"new_balance"`
	ReferralRewardIssued bool                   `json:"referral_reward_issued"`
}

// SettlementEngine orchestrates a purchase: validates, applies credits,
// writes the purchase record, and settles first-purchase and referral
// bonuses — all inside one transaction per attempt.
type SettlementEngine struct {
	Pool      TxBeginner
	Accounts  SettlementAccountRepo
	Ledger    SettlementLedgerRepo
	Referrals SettlementReferralRepo
	Purchases SettlementPurchaseRepo
	Catalog   CourseCatalog
	Logger    *slog.Logger
}

// NewSettlementEngine returns a SettlementEngine.
func NewSettlementEngine(
	pool TxBeginner,
	accounts SettlementAccountRepo,
	ledger SettlementLedgerRepo,
	referrals SettlementReferralRepo,
	purchases SettlementPurchaseRepo,
	catalog CourseCatalog,
	logger *slog.Logger,
) *SettlementEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettlementEngine{
		Pool:      pool,
		Accounts:  accounts,
		Ledger:    ledger,
		Referrals: referrals,
		Purchases: purchases,
		Catalog:   catalog,
		Logger:    logger,
	}
}

// ExecutePurchase settles one course purchase for an account.
//
// requestedCredits is caller-supplied and untrusted: it is clamped to
// [0, min(balance, price)]. The duplicate check here is a fast path; the
// unique index on purchases(account_id, course_id) decides races. All
// mutations of one attempt commit atomically, and transient conflicts are
// retried up to maxSettleAttempts before ErrSettlementConflict surfaces.
func (e *SettlementEngine) ExecutePurchase(ctx context.Context, accountID, courseID uuid.UUID, requestedCredits int) (*PurchaseResult, error) {
	if _, err := e.Accounts.GetByID(ctx, accountID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	price, err := e.Catalog.PriceByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("look up course price: %w", err)
	}

	exists, err := e.Purchases.ExistsByAccountAndCourse(ctx, accountID, courseID)
	if err != nil {
		return nil, fmt.Errorf("check existing purchase: %w", err)
	}
	if exists {
		return nil, ErrDuplicatePurchase
	}

	for attempt := 1; attempt <= maxSettleAttempts; attempt++ {
		result, err := e.settleOnce(ctx, accountID, courseID, price, requestedCredits)
		if err == nil {
			return result, nil
		}
		if !isRetryableConflict(err) {
			return nil, err
		}
		e.Logger.Warn("settlement conflict, retrying",
			"account_id", accountID, "course_id", courseID, "attempt", attempt, "error", err)
	}
	return nil, ErrSettlementConflict
}

// settleOnce runs one settlement attempt in a single transaction. On any
// error the deferred rollback discards every mutation of the attempt.
func (e *SettlementEngine) settleOnce(ctx context.Context, accountID, courseID uuid.UUID, price, requestedCredits int) (*PurchaseResult, error) {
	tx, err := e.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settlement tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row lock serializes settlements for this account; the balance read
	// below cannot go stale while the lock is held.
	account, err := e.Accounts.GetByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lock account: %w", err)
	}

	credits := clampCredits(requestedCredits, account.CreditBalance, price)
	balance := account.CreditBalance

	if credits > 0 {
		balance, err = e.Accounts.DeductCredits(ctx, tx, accountID, credits)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, errStaleBalance
			}
			return nil, fmt.Errorf("deduct credits: %w", err)
		}
		spent := &models.LedgerEntry{
			ID:          uuid.New(),
			AccountID:   accountID,
			Kind:        models.LedgerKindSpent,
			Amount:      credits,
			Description: fmt.Sprintf("Used %d credits for course purchase", credits),
		}
		if err := e.Ledger.AppendTx(ctx, tx, spent); err != nil {
			return nil, fmt.Errorf("append spent entry: %w", err)
		}
	}

	purchase := &models.PurchaseRecord{
		ID:             uuid.New(),
		AccountID:      accountID,
		CourseID:       courseID,
		PricePaid:      price - credits,
		CreditsApplied: credits,
	}
	if err := e.Purchases.CreateTx(ctx, tx, purchase); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePurchase
		}
		return nil, fmt.Errorf("create purchase: %w", err)
	}

	balance, rewardIssued, err := e.settleBonuses(ctx, tx, account, purchase, balance)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settlement tx: %w", err)
	}
	return &PurchaseResult{
		Purchase:             purchase,
		NewBalance:           balance,
		ReferralRewardIssued: rewardIssued,
	}, nil
}

// settleBonuses grants the one-time first-purchase bonus and, when a pending
// referral link exists, the referrer's reward. Both grants are gated by
// storage-level compare-and-sets; losing a flip means the bonus was already
// granted and is skipped, never retried.
func (e *SettlementEngine) settleBonuses(ctx context.Context, tx pgx.Tx, account *models.Account, purchase *models.PurchaseRecord, balance int) (int, bool, error) {
	granted, err := e.Accounts.MarkFirstPurchaseBonus(ctx, tx, account.ID)
	if err != nil {
		return 0, false, fmt.Errorf("mark first purchase bonus: %w", err)
	}
	if !granted {
		return balance, false, nil
	}

	balance, err = e.Accounts.AddCredits(ctx, tx, account.ID, FirstPurchaseBonusCredits)
	if err != nil {
		return 0, false, fmt.Errorf("add first purchase bonus: %w", err)
	}
	earned := &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         account.ID,
		Kind:              models.LedgerKindEarned,
		Amount:            FirstPurchaseBonusCredits,
		Description:       fmt.Sprintf("Earned %d credits for first purchase", FirstPurchaseBonusCredits),
		RelatedPurchaseID: &purchase.ID,
	}
	if err := e.Ledger.AppendTx(ctx, tx, earned); err != nil {
		return 0, false, fmt.Errorf("append first purchase entry: %w", err)
	}

	link, err := e.Referrals.FindPendingByReferred(ctx, tx, account.ID)
	if err != nil {
		return 0, false, fmt.Errorf("find referral link: %w", err)
	}
	if link == nil {
		return balance, false, nil
	}

	settled, err := e.Referrals.Settle(ctx, tx, link.ID)
	if err != nil {
		return 0, false, fmt.Errorf("settle referral link: %w", err)
	}
	if !settled {
		return balance, false, nil
	}

	if _, err := e.Accounts.AddCredits(ctx, tx, link.ReferrerID, ReferralBonusCredits); err != nil {
		return 0, false, fmt.Errorf("add referral bonus: %w", err)
	}
	referrerEntry := &models.LedgerEntry{
		ID:                uuid.New(),
		AccountID:         link.ReferrerID,
		Kind:              models.LedgerKindEarned,
		Amount:            ReferralBonusCredits,
		Description:       fmt.Sprintf("Earned %d credits for referring %s", ReferralBonusCredits, referredName(account)),
		RelatedPurchaseID: &purchase.ID,
	}
	if err := e.Ledger.AppendTx(ctx, tx, referrerEntry); err != nil {
		return 0, false, fmt.Errorf("append referral bonus entry: %w", err)
	}
	if err := e.Purchases.MarkReferralRewardIssuedTx(ctx, tx, purchase.ID); err != nil {
		return 0, false, fmt.Errorf("mark referral reward issued: %w", err)
	}
	purchase.ReferralRewardIssued = true
	return balance, true, nil
}

// GetBalance returns the account's cached balance.
func (e *SettlementEngine) GetBalance(ctx context.Context, accountID uuid.UUID) (int, error) {
	account, err := e.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, fmt.Errorf("load account: %w", err)
	}
	return account.CreditBalance, nil
}

// GetLedgerHistory returns the account's credit movements, newest first.
func (e *SettlementEngine) GetLedgerHistory(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error) {
	return e.Ledger.ListByAccountID(ctx, accountID)
}

// clampCredits bounds the caller-supplied credit request: negative values are
// treated as zero, over-requests cap at the smaller of balance and price.
func clampCredits(requested, balance, price int) int {
	if requested < 0 {
		return 0
	}
	limit := balance
	if price < limit {
		limit = price
	}
	if requested > limit {
		return limit
	}
	return requested
}

func referredName(account *models.Account) string {
	if account.Name != "" {
		return account.Name
	}
	return "a friend"
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryableConflict reports whether err is worth retrying the whole
// settlement for: a serialization failure (40001), a deadlock (40P01), or a
// stale balance read.
func isRetryableConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return errors.Is(err, errStaleBalance)
}
