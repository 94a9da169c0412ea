package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coursely/backend/internal/models"
)

// ErrInvalidReferral is returned for self-referral or when the referred
// account already has a link.
var ErrInvalidReferral = errors.New("invalid referral")

// referralLinkBase is the public registration URL referral codes append to.
const referralLinkBase = "https://coursely.com/register?ref="

// ReferralAccountRepo resolves referral codes and referred accounts.
type ReferralAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByReferralCode(ctx context.Context, code string) (*models.Account, error)
	SetReferrer(ctx context.Context, id, referrerID uuid.UUID) error
}

// ReferralLinkRepo persists and counts referral links.
type ReferralLinkRepo interface {
	Create(ctx context.Context, l *models.ReferralLink) error
	CountByReferrer(ctx context.Context, referrerID uuid.UUID) (total, converted int, err error)
}

// ReferralStats is the referrer-facing dashboard summary.
type ReferralStats struct {
	Name               string `json:"name"`
	TotalReferrals     int    `json:"total_referrals"`
	ConvertedReferrals int    `json:"converted_referrals"`
	TotalCredits       int    `json:"total_credits"`
	ReferralLink       string `json:"referral_link"`
}

// ReferralService maintains the referrer→referred registry. Link creation
// happens once, at account registration; settlement of links belongs to the
// SettlementEngine.
type ReferralService struct {
	Accounts ReferralAccountRepo
	Links    ReferralLinkRepo
	Logger   *slog.Logger
}

func NewReferralService(accounts ReferralAccountRepo, links ReferralLinkRepo, logger *slog.Logger) *ReferralService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferralService{Accounts: accounts, Links: links, Logger: logger}
}

// RegisterReferral records a pending link from the owner of referrerCode to
// the newly registered account. An unknown code is a silent no-op: the
// registration flow proceeds without a link. Self-referral and a second link
// for the same referred account return ErrInvalidReferral; the latter is
// backed by the unique index on referrals.referred_id, not just this lookup.
func (s *ReferralService) RegisterReferral(ctx context.Context, referrerCode string, newAccountID uuid.UUID) error {
	referrer, err := s.Accounts.GetByReferralCode(ctx, referrerCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.Logger.Warn("referral code does not resolve, proceeding without link",
				"code", referrerCode, "account_id", newAccountID)
			return nil
		}
		return fmt.Errorf("resolve referral code: %w", err)
	}
	if referrer.ID == newAccountID {
		return ErrInvalidReferral
	}

	link := &models.ReferralLink{
		ID:         uuid.New(),
		ReferrerID: referrer.ID,
		ReferredID: newAccountID,
		Status:     models.ReferralStatusPending,
	}
	if err := s.Links.Create(ctx, link); err != nil {
		if isUniqueViolation(err) {
			return ErrInvalidReferral
		}
		return fmt.Errorf("create referral link: %w", err)
	}

	if err := s.Accounts.SetReferrer(ctx, newAccountID, referrer.ID); err != nil {
		return fmt.Errorf("set referrer on account: %w", err)
	}
	return nil
}

// Stats returns the account's referral dashboard data.
func (s *ReferralService) Stats(ctx context.Context, accountID uuid.UUID) (*ReferralStats, error) {
	account, err := s.Accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	total, converted, err := s.Links.CountByReferrer(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("count referrals: %w", err)
	}
	return &ReferralStats{
		Name:               account.Name,
		TotalReferrals:     total,
		ConvertedReferrals: converted,
		TotalCredits:       account.CreditBalance,
		ReferralLink:       referralLinkBase + account.ReferralCode,
	}, nil
}
