package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coursely/backend/internal/middleware"
	"github.com/coursely/backend/internal/models"
	"github.com/coursely/backend/internal/services"
)

// CreditReader is the settlement engine's read surface.
type CreditReader interface {
	GetBalance(ctx context.Context, accountID uuid.UUID) (int, error)
	GetLedgerHistory(ctx context.Context, accountID uuid.UUID) ([]*models.LedgerEntry, error)
}

// ReferralStatter produces the referral dashboard summary.
type ReferralStatter interface {
	Stats(ctx context.Context, accountID uuid.UUID) (*services.ReferralStats, error)
}

// PurchaseLister returns an account's purchase records.
type PurchaseLister interface {
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.PurchaseRecord, error)
}

// Handler serves the authenticated read endpoints: balance, ledger history,
// referral stats, and purchased courses. It never mutates credit state.
type Handler struct {
	credits   CreditReader
	referrals ReferralStatter
	purchases PurchaseLister
	log       *slog.Logger
}

func NewHandler(credits CreditReader, referrals ReferralStatter, purchases PurchaseLister, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{credits: credits, referrals: referrals, purchases: purchases, log: log}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GET /api/v1/credits/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	balance, err := h.credits.GetBalance(r.Context(), acc.ID)
	if err != nil {
		if errors.Is(err, services.ErrAccountNotFound) {
			http.Error(w, "account not found", http.StatusNotFound)
			return
		}
		h.log.Error("get balance failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"credit_balance": balance})
}

// GET /api/v1/credits/history
func (h *Handler) ListCreditHistory(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	entries, err := h.credits.GetLedgerHistory(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list credit history failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/referrals
func (h *Handler) GetReferralStats(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	stats, err := h.referrals.Stats(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("referral stats failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GET /api/v1/purchases
func (h *Handler) ListPurchases(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	purchases, err := h.purchases.ListByAccountID(r.Context(), acc.ID)
	if err != nil {
		h.log.Error("list purchases failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if purchases == nil {
		purchases = []*models.PurchaseRecord{}
	}
	writeJSON(w, http.StatusOK, purchases)
}
