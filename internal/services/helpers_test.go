package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"remesas/internal/cache"
	"remesas/internal/core"
	"remesas/internal/ports"
	"remesas/internal/storage/memory"
)

var errInjected = errors.New("injected failure")

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.StatusChange
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, ev core.StatusChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) statuses() []core.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.Status, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Status
	}
	return out
}

// flakyStore fails the nth call of selected operations.
type flakyStore struct {
	ports.Store

	mu             sync.Mutex
	approvals      int
	failApprovalAt int
	budgetCalls    int
	failBudgetAt   int
	replaceCalls   int
	failReplaceAt  int

	// onListApproved runs before approved items are read.
	onListApproved func()
}

func (f *flakyStore) SetItemApproval(ctx context.Context, id string, a core.Approval) error {
	f.mu.Lock()
	f.approvals++
	fail := f.failApprovalAt > 0 && f.approvals == f.failApprovalAt
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.SetItemApproval(ctx, id, a)
}

func (f *flakyStore) CreateBudgetItems(ctx context.Context, items []core.BudgetItem) ([]core.BudgetItem, error) {
	f.mu.Lock()
	f.budgetCalls++
	fail := f.failBudgetAt > 0 && f.budgetCalls == f.failBudgetAt
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.CreateBudgetItems(ctx, items)
}

func (f *flakyStore) ReplaceRemesaItems(ctx context.Context, remesaID string, items []core.RemesaItem) ([]core.RemesaItem, error) {
	f.mu.Lock()
	f.replaceCalls++
	fail := f.failReplaceAt > 0 && f.replaceCalls == f.failReplaceAt
	f.mu.Unlock()
	if fail {
		return nil, errInjected
	}
	return f.Store.ReplaceRemesaItems(ctx, remesaID, items)
}

func (f *flakyStore) ListApprovedItems(ctx context.Context, projectID string) ([]core.RemesaItem, error) {
	f.mu.Lock()
	hook := f.onListApproved
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return f.Store.ListApprovedItems(ctx, projectID)
}

type testEnv struct {
	store     *flakyStore
	publisher *recordingPublisher
	catalog   *CatalogService
	budget    *BudgetService
	remesas   *RemesaService
	project   core.Project
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := &flakyStore{Store: memory.New()}
	pub := &recordingPublisher{}
	env := &testEnv{
		store:     store,
		publisher: pub,
		catalog:   NewCatalogService(store),
		budget:    NewBudgetService(store, cache.NewLRUCache[*core.BudgetVsPaid](10, time.Minute)),
		remesas:   NewRemesaService(store, pub),
	}
	env.remesas.OnChange(env.budget.Invalidate)
	env.catalog.OnChange(env.budget.Invalidate)

	p, err := env.catalog.CreateProject(context.Background(), core.Project{Name: "Residencia Cumbres", OwnerName: "Lic. Ana Ruiz"})
	require.NoError(t, err)
	env.project = p
	return env
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func transfer(contractor, amount string) core.RemesaItem {
	return core.RemesaItem{Section: core.SectionTransfer, ContractorName: contractor, Amount: dec(amount), VATPct: dec("16")}
}

func check(contractor, amount string) core.RemesaItem {
	return core.RemesaItem{Section: core.SectionCheck, ContractorName: contractor, Amount: dec(amount)}
}

// newRemesaWithItems creates a draft and fills it through the service.
func (e *testEnv) newRemesaWithItems(t *testing.T, items ...core.RemesaItem) *RemesaDetail {
	t.Helper()
	ctx := context.Background()
	r, err := e.remesas.Create(ctx, NewRemesa{ProjectID: e.project.ID, CreatedBy: "Arq. Treviño"})
	require.NoError(t, err)
	d, err := e.remesas.ReplaceItems(ctx, r.ID, items)
	require.NoError(t, err)
	return d
}
