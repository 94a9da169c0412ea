package models

import (
	"time"

	"github.com/google/uuid"
)

// Ledger entry kinds. EARNED increases the account balance, SPENT decreases it.
const (
	LedgerKindEarned = "EARNED"
	LedgerKindSpent  = "SPENT"
)

// LedgerEntry is one immutable credit movement. Entries are append-only:
// never updated, never deleted. Per-account history is ordered by
// CreatedAt descending.
type LedgerEntry struct {
	ID                uuid.UUID  `json:"id"`
	AccountID         uuid.UUID  `json:"account_id"`
	Kind              string     `json:"kind"`
	Amount            int        `json:"amount"`
	Description       string     `json:"description"`
	RelatedPurchaseID *uuid.UUID `json:"related_purchase_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Signed returns the entry's contribution to the account balance.
func (e *LedgerEntry) Signed() int {
	if e.Kind == LedgerKindSpent {
		return -e.Amount
	}
	return e.Amount
}
