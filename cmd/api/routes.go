package main

import (
	"log/slog"
	"net/http"

	"github.com/coursely/backend/internal/handlers"
	"github.com/coursely/backend/internal/services"
)

// RegisterV1Routes adds the settlement endpoints to the given mux.
// Middleware chain: TokenAuth -> handler.
func RegisterV1Routes(
	mux *http.ServeMux,
	engine *services.SettlementEngine,
	authMW func(http.Handler) http.Handler,
	logger *slog.Logger,
) {
	ph := &handlers.PurchaseHandler{
		Engine: engine,
		Logger: logger,
	}

	mux.Handle("POST /v1/courses/{id}/purchase", authMW(http.HandlerFunc(ph.Purchase)))
}
