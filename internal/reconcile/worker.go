// Package reconcile periodically re-derives account balances from the
// append-only ledger. The ledger is the source of truth; the balance column
// is a cache, and this job repairs any drift left behind by partial failures.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

type Args struct{}

func (Args) Kind() string { return "reconcile_balances" }

// Store is the persistence surface the worker needs.
type Store interface {
	DriftedAccounts(ctx context.Context) ([]Drift, error)
	RepairBalance(ctx context.Context, accountID uuid.UUID) (int, error)
}

type Worker struct {
	river.WorkerDefaults[Args]
	store  Store
	logger *slog.Logger
}

func NewWorker(store Store, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, logger: logger}
}

func (w *Worker) Work(ctx context.Context, job *river.Job[Args]) error {
	drifts, err := w.store.DriftedAccounts(ctx)
	if err != nil {
		return fmt.Errorf("find drifted accounts: %w", err)
	}
	for _, d := range drifts {
		repaired, err := w.store.RepairBalance(ctx, d.AccountID)
		if err != nil {
			return fmt.Errorf("repair balance for %s: %w", d.AccountID, err)
		}
		w.logger.Warn("balance drift repaired",
			"account_id", d.AccountID,
			"cached_balance", d.CachedBalance,
			"ledger_balance", d.LedgerBalance,
			"repaired_balance", repaired)
	}
	return nil
}
