package models

import (
	"time"

	"github.com/google/uuid"
)

// Referral link statuses.
const (
	ReferralStatusPending   = "pending"
	ReferralStatusConverted = "converted"
)

// ReferralLink relates one referrer to one referred account. An account is
// referred by at most one other account (unique index on ReferredID), and
// self-referral is rejected at creation, so the referral graph is a forest.
// RewardIssued flips false→true exactly once, on the referred account's
// first purchase.
type ReferralLink struct {
	ID           uuid.UUID `json:"id"`
	ReferrerID   uuid.UUID `json:"referrer_id"`
	ReferredID   uuid.UUID `json:"referred_id"`
	Status       string    `json:"status"`
	RewardIssued bool      `json:"reward_issued"`
	CreatedAt    time.Time `json:"created_at"`
}
