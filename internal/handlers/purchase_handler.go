package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/coursely/backend/internal/middleware"
	"github.com/coursely/backend/internal/models"
	"github.com/coursely/backend/internal/services"
)

// Settler is the settlement engine surface the handler needs.
type Settler interface {
	ExecutePurchase(ctx context.Context, accountID, courseID uuid.UUID, requestedCredits int) (*services.PurchaseResult, error)
}

// PurchaseHandler serves the /v1/courses/{id}/purchase endpoint.
type PurchaseHandler struct {
	Engine Settler
	Logger *slog.Logger
}

type purchaseRequest struct {
	UseCredits int `json:"use_credits"`
}

type purchaseResponse struct {
	Purchase             *models.PurchaseRecord `json:"purchase"`
	FinalAmountPaid      int                    `json:"final_amount_paid"`
	RemainingCredits     int                    `json:"remaining_credits"`
	ReferralRewardIssued bool                   `json:"referral_reward_issued"`
}

// Purchase handles POST /v1/courses/{id}/purchase.
func (h *PurchaseHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	courseID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid course id"}`, http.StatusBadRequest)
		return
	}

	// An empty body means "no credits".
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	result, err := h.Engine.ExecutePurchase(r.Context(), acc.ID, courseID, req.UseCredits)
	if err != nil {
		h.writeError(w, acc.ID, courseID, err)
		return
	}

	writeJSON(w, http.StatusCreated, purchaseResponse{
		Purchase:             result.Purchase,
		FinalAmountPaid:      result.Purchase.PricePaid,
		RemainingCredits:     result.NewBalance,
		ReferralRewardIssued: result.ReferralRewardIssued,
	})
}

func (h *PurchaseHandler) writeError(w http.ResponseWriter, accountID, courseID uuid.UUID, err error) {
	switch {
	case errors.Is(err, services.ErrAccountNotFound):
		http.Error(w, `{"error":"account not found"}`, http.StatusNotFound)
	case errors.Is(err, services.ErrCourseNotFound):
		http.Error(w, `{"error":"course not found"}`, http.StatusNotFound)
	case errors.Is(err, services.ErrDuplicatePurchase):
		http.Error(w, `{"error":"course already purchased"}`, http.StatusConflict)
	case errors.Is(err, services.ErrSettlementConflict):
		http.Error(w, `{"error":"purchase conflicted with a concurrent request, retry"}`, http.StatusConflict)
	default:
		h.Logger.Error("purchase settlement failed",
			"account_id", accountID, "course_id", courseID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
