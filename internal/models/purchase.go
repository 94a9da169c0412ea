package models

import (
	"time"

	"github.com/google/uuid"
)

// PurchaseRecord is the durable fact of one course acquisition. At most one
// record exists per (AccountID, CourseID) pair, enforced by a unique index.
// ReferralRewardIssued flips false→true at most once, at settlement time.
type PurchaseRecord struct {
	ID                   uuid.UUID `json:"id"`
	AccountID            uuid.UUID `json:"account_id"`
	CourseID             uuid.UUID `json:"course_id"`
	PricePaid            int       `json:"price_paid"`
	CreditsApplied       int       `json:"credits_applied"`
	ReferralRewardIssued bool      `json:"referral_reward_issued"`
	CreatedAt            time.Time `json:"created_at"`
}
