package models

import (
	"time"

	"github.com/google/uuid"
)

// Account is a marketplace user participating in the credit economy.
// CreditBalance is a cache of the signed sum of the account's ledger
// entries; the settlement engine is the only writer of CreditBalance
// and HasReceivedFirstPurchaseBonus.
type Account struct {
	ID                            uuid.UUID  `json:"id"`
	Email                         string     `json:"email"`
	Name                          string     `json:"name"`
	PasswordHash                  string     `json:"-"`
	ReferralCode                  string     `json:"referral_code"`
	ReferrerID                    *uuid.UUID `json:"referrer_id,omitempty"`
	CreditBalance                 int        `json:"credit_balance"`
	HasReceivedFirstPurchaseBonus bool       `json:"has_received_first_purchase_bonus"`
	CreatedAt                     time.Time  `json:"created_at"`
	UpdatedAt                     time.Time  `json:"updated_at"`
}
