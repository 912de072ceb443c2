package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remesas/internal/amqp"
	"remesas/internal/core"
	sheetsmem "remesas/internal/sheets/memory"
	"remesas/internal/storage/memory"
)

type failingLedger struct{ calls int }

func (f *failingLedger) AppendRemesa(context.Context, core.Remesa, []core.RemesaItem) (int, error) {
	f.calls++
	return 0, errors.New("quota exceeded")
}

func newRemesa(t *testing.T, store *memory.Store, projectID string, number int, status core.Status) core.Remesa {
	t.Helper()
	ctx := context.Background()
	r, err := store.CreateRemesa(ctx, core.Remesa{
		ProjectID: projectID,
		Number:    number,
		Date:      time.Date(2024, 6, number, 0, 0, 0, 0, time.UTC),
		Status:    status,
		CreatedAt: time.Date(2024, 6, 1, 0, 0, number, 0, time.UTC),
	})
	require.NoError(t, err)
	_, err = store.ReplaceRemesaItems(ctx, r.ID, []core.RemesaItem{
		{Section: core.SectionTransfer, LineNumber: 1, ContractorName: "Herrería Díaz",
			Amount: decimal.NewFromInt(100), Total: decimal.NewFromInt(100)},
		{Section: core.SectionTransfer, LineNumber: 2, ContractorName: "Eléctrica Norte",
			Amount: decimal.NewFromInt(300), Total: decimal.NewFromInt(300)},
	})
	require.NoError(t, err)
	return r
}

func setup(t *testing.T) (*memory.Store, string) {
	t.Helper()
	store := memory.New()
	p, err := store.CreateProject(context.Background(), core.Project{Name: "Casa Olivos"})
	require.NoError(t, err)
	return store, p.ID
}

func TestHandleStatusEventAppendsPaidRemesaOnce(t *testing.T) {
	ctx := context.Background()
	store, projectID := setup(t)
	ledger := sheetsmem.New()
	w := NewLedgerWorker(store, ledger, 10)
	r := newRemesa(t, store, projectID, 1, core.StatusPaid)

	msg := amqp.NewStatusChangedMessage(core.StatusChange{RemesaID: r.ID, Status: core.StatusPaid})
	require.NoError(t, w.HandleStatusEvent(ctx, msg))
	require.NoError(t, w.HandleStatusEvent(ctx, msg))

	assert.Equal(t, 1, ledger.Appends())
	assert.Equal(t, 3, ledger.Len(), "header plus two item rows")

	got, err := store.GetRemesa(ctx, r.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.LedgerSyncedAt)
}

func TestHandleStatusEventIgnoresOtherStatuses(t *testing.T) {
	ctx := context.Background()
	store, projectID := setup(t)
	ledger := sheetsmem.New()
	w := NewLedgerWorker(store, ledger, 10)
	r := newRemesa(t, store, projectID, 1, core.StatusPartiallyPaid)

	msg := amqp.NewStatusChangedMessage(core.StatusChange{RemesaID: r.ID, Status: core.StatusPartiallyPaid})
	require.NoError(t, w.HandleStatusEvent(ctx, msg))

	// a stale "paid" message for a remesa that is no longer paid
	stale := amqp.NewStatusChangedMessage(core.StatusChange{RemesaID: r.ID, Status: core.StatusPaid})
	require.NoError(t, w.HandleStatusEvent(ctx, stale))

	assert.Equal(t, 0, ledger.Appends())
}

func TestHandleStatusEventDropsDeletedRemesa(t *testing.T) {
	store, _ := setup(t)
	w := NewLedgerWorker(store, sheetsmem.New(), 10)

	msg := amqp.NewStatusChangedMessage(core.StatusChange{RemesaID: "gone", Status: core.StatusPaid})
	assert.NoError(t, w.HandleStatusEvent(context.Background(), msg))
}

func TestHandleStatusEventLedgerFailureIsRetryable(t *testing.T) {
	ctx := context.Background()
	store, projectID := setup(t)
	ledger := &failingLedger{}
	w := NewLedgerWorker(store, ledger, 10)
	r := newRemesa(t, store, projectID, 1, core.StatusPaid)

	err := w.HandleStatusEvent(ctx, amqp.NewStatusChangedMessage(core.StatusChange{RemesaID: r.ID, Status: core.StatusPaid}))
	require.Error(t, err)
	assert.Equal(t, 1, ledger.calls)

	got, err := store.GetRemesa(ctx, r.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LedgerSyncedAt, "a failed append must leave the remesa pending")
}

func TestProcessPendingSyncsInBatches(t *testing.T) {
	ctx := context.Background()
	store, projectID := setup(t)
	ledger := sheetsmem.New()
	w := NewLedgerWorker(store, ledger, 2)
	for n := 1; n <= 3; n++ {
		newRemesa(t, store, projectID, n, core.StatusPaid)
	}
	newRemesa(t, store, projectID, 4, core.StatusSent)

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 3, ledger.Appends())

	grid, err := ledger.ReadLedger(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", grid[1][1], "oldest remesa first")
}

func TestStartupSyncCheckUsesLargerBatch(t *testing.T) {
	ctx := context.Background()
	store, projectID := setup(t)
	ledger := sheetsmem.New()
	w := NewLedgerWorker(store, ledger, 1)
	for n := 1; n <= 4; n++ {
		newRemesa(t, store, projectID, n, core.StatusPaid)
	}

	require.NoError(t, w.StartupSyncCheck(ctx))
	assert.Equal(t, 4, ledger.Appends())

	pending, err := store.ListUnsyncedPaidRemesas(ctx, -1)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRunPeriodicStopsWithContext(t *testing.T) {
	store, projectID := setup(t)
	ledger := sheetsmem.New()
	w := NewLedgerWorker(store, ledger, 10)
	newRemesa(t, store, projectID, 1, core.StatusPaid)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.RunPeriodic(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return ledger.Appends() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
