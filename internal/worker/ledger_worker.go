package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"remesas/internal/amqp"
	"remesas/internal/core"
	"remesas/internal/ports"
	"remesas/internal/sheets"
)

// LedgerWorker mirrors paid remesas into the ledger spreadsheet and marks
// them as synced so each remesa is appended once.
type LedgerWorker struct {
	store     ports.RemesaStore
	ledger    sheets.LedgerWriter
	batchSize int
	now       func() time.Time

	// serializes appends between the consumer and the periodic pass
	mu sync.Mutex
}

func NewLedgerWorker(store ports.RemesaStore, ledger sheets.LedgerWriter, batchSize int) *LedgerWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &LedgerWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// HandleStatusEvent processes one status change from AMQP. Only changes to
// paid trigger an append; the remesa is reloaded so a stale message cannot
// append a remesa that has since changed.
func (w *LedgerWorker) HandleStatusEvent(ctx context.Context, msg *amqp.StatusChangedMessage) error {
	slog.InfoContext(ctx, "Processing status change",
		"component", "worker",
		"remesa_id", msg.RemesaID,
		"previous", msg.Previous,
		"status", msg.Status)

	if msg.Status != core.StatusPaid {
		return nil
	}
	synced, err := w.SyncRemesa(ctx, msg.RemesaID)
	if errors.Is(err, core.ErrNotFound) {
		slog.WarnContext(ctx, "Remesa no longer exists, dropping message",
			"component", "worker", "remesa_id", msg.RemesaID)
		return nil
	}
	if err != nil {
		return err
	}
	if !synced {
		slog.InfoContext(ctx, "Remesa not appended",
			"component", "worker", "remesa_id", msg.RemesaID, "reason", "not paid or already synced")
	}
	return nil
}

// SyncRemesa appends a paid, unsynced remesa to the ledger and marks it.
// It reports whether rows were written.
func (w *LedgerWorker) SyncRemesa(ctx context.Context, remesaID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	r, err := w.store.GetRemesa(ctx, remesaID)
	if err != nil {
		return false, fmt.Errorf("get remesa: %w", err)
	}
	if r.Status != core.StatusPaid || r.LedgerSyncedAt != nil {
		return false, nil
	}
	items, err := w.store.ListRemesaItems(ctx, remesaID)
	if err != nil {
		return false, fmt.Errorf("list remesa items: %w", err)
	}

	rows, err := w.ledger.AppendRemesa(ctx, r, items)
	if err != nil {
		return false, fmt.Errorf("append to ledger: %w", err)
	}
	if err := w.store.MarkLedgerSynced(ctx, remesaID, w.now().UTC()); err != nil {
		// rows are in the ledger; a retry would duplicate them
		slog.ErrorContext(ctx, "Failed to mark remesa as synced",
			"component", "worker", "remesa_id", remesaID, "error", err)
	}

	slog.InfoContext(ctx, "Remesa mirrored to ledger",
		"component", "worker",
		"remesa_id", remesaID,
		"remesa", r.Label(),
		"rows", rows,
		"total", r.Total.StringFixed(2))
	return true, nil
}

// ProcessPending syncs up to one batch of paid remesas missing from the
// ledger. It covers messages lost while the worker or broker was down.
func (w *LedgerWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processPending(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger pending pass when the worker starts.
func (w *LedgerWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if n == 0 {
		slog.InfoContext(ctx, "No pending remesas found on startup", "component", "worker")
	}
	return nil
}

func (w *LedgerWorker) processPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.ListUnsyncedPaidRemesas(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list pending remesas: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	slog.InfoContext(ctx, "Processing pending remesas", "component", "worker", "count", len(pending))

	synced, failed := 0, 0
	for _, r := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		ok, err := w.SyncRemesa(ctx, r.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to sync remesa",
				"component", "worker", "remesa_id", r.ID, "error", err)
			failed++
			continue
		}
		if ok {
			synced++
		}
	}
	slog.InfoContext(ctx, "Pending sync completed",
		"component", "worker",
		"total", len(pending),
		"synced", synced,
		"errors", failed)
	return synced, nil
}

// RunPeriodic calls ProcessPending every interval until ctx is done.
func (w *LedgerWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic sync failed", "component", "worker", "error", err)
			}
		}
	}
}
