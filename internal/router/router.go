package router

import (
	"net/http"

	"github.com/coursely/backend/internal/auth"
	"github.com/coursely/backend/internal/dashboard"
)

// New returns an http.Handler that serves the account-facing API under
// /api/v1. authMW wraps every route that requires a logged-in account.
func New(authHandler *auth.Handler, dashHandler *dashboard.Handler, authMW func(http.Handler) http.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.Handle(base+"/credits/balance", authMW(methodGET(dashHandler.GetBalance)))
	mux.Handle(base+"/credits/history", authMW(methodGET(dashHandler.ListCreditHistory)))
	mux.Handle(base+"/referrals", authMW(methodGET(dashHandler.GetReferralStats)))
	mux.Handle(base+"/purchases", authMW(methodGET(dashHandler.ListPurchases)))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
