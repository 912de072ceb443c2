// Package storetest is a behaviour suite shared by every ports.Store
// adapter, so the SQLite and in-memory stores stay interchangeable.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remesas/internal/core"
	"remesas/internal/ports"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Run exercises newStore with every behaviour services rely on. newStore
// must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) ports.Store) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ports.Store)
	}{
		{"ProjectCRUD", testProjectCRUD},
		{"CategoryRenamePropagates", testCategoryRenamePropagates},
		{"ContractorValidation", testContractorValidation},
		{"BudgetItems", testBudgetItems},
		{"RemesaNumbering", testRemesaNumbering},
		{"RemesaItems", testRemesaItems},
		{"ApprovalAndLedgerSync", testApprovalAndLedgerSync},
		{"ExchangeRates", testExchangeRates},
		{"DeleteProjectCascades", testDeleteProjectCascades},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func project(t *testing.T, s ports.Store) core.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), core.Project{Name: "Casa Norte", OwnerName: "Ing. Soto"})
	require.NoError(t, err)
	return p
}

func testProjectCRUD(t *testing.T, s ports.Store) {
	ctx := context.Background()
	_, err := s.CreateProject(ctx, core.Project{Name: "  "})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)

	p := project(t, s)
	assert.NotEmpty(t, p.ID)
	assert.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Casa Norte", got.Name)

	p.Name = "Casa Norte II"
	require.NoError(t, s.UpdateProject(ctx, p))
	list, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Casa Norte II", list[0].Name)

	_, err = s.GetProject(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.UpdateProject(ctx, core.Project{ID: "missing", Name: "x"}), core.ErrNotFound)
}

func testCategoryRenamePropagates(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)

	_, err := s.CreateCategory(ctx, core.Category{ProjectID: "missing", Name: "Obra"})
	assert.ErrorIs(t, err, core.ErrNotFound)

	cat, err := s.CreateCategory(ctx, core.Category{ProjectID: p.ID, Name: "Obra negra"})
	require.NoError(t, err)
	con, err := s.CreateConcept(ctx, core.Concept{CategoryID: cat.ID, Name: "Muros"})
	require.NoError(t, err)

	_, err = s.CreateBudgetItems(ctx, []core.BudgetItem{{
		ProjectID: p.ID, CategoryID: cat.ID, CategoryName: cat.Name, ConceptID: con.ID, ConceptName: con.Name,
		Currency: core.MXN, Quantity: dec("1"), UnitPrice: dec("100"), TotalMXN: dec("100"),
	}})
	require.NoError(t, err)
	r, err := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 1})
	require.NoError(t, err)
	_, err = s.AddRemesaItem(ctx, core.RemesaItem{
		RemesaID: r.ID, Section: core.SectionTransfer, LineNumber: 1, CategoryID: cat.ID, CategoryName: cat.Name,
		ConceptID: con.ID, ConceptName: con.Name, ContractorName: "Aceros", Amount: dec("50"), Total: dec("50"),
	})
	require.NoError(t, err)

	require.NoError(t, s.RenameCategory(ctx, cat.ID, "Estructura"))
	require.NoError(t, s.RenameConcept(ctx, con.ID, "Muros de carga"))
	var verr *core.ValidationError
	assert.ErrorAs(t, s.RenameCategory(ctx, cat.ID, " "), &verr)

	budget, err := s.ListBudgetItems(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, budget, 1)
	assert.Equal(t, "Estructura", budget[0].CategoryName)
	assert.Equal(t, "Muros de carga", budget[0].ConceptName)

	items, err := s.ListRemesaItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Estructura", items[0].CategoryName)
	assert.Equal(t, "Muros de carga", items[0].ConceptName)

	concepts, err := s.ListConcepts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, concepts, 1)

	require.NoError(t, s.DeleteCategory(ctx, cat.ID))
	concepts, err = s.ListConcepts(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, concepts)
	items, err = s.ListRemesaItems(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, items[0].CategoryID)
	assert.Equal(t, "Estructura", items[0].CategoryName, "cached name survives the delete")
}

func testContractorValidation(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)

	_, err := s.CreateContractor(ctx, core.Contractor{ProjectID: p.ID, Name: "Aceros", CLABE: "123"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	list, err := s.ListContractors(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "a rejected create leaves nothing behind")

	c, err := s.CreateContractor(ctx, core.Contractor{ProjectID: p.ID, Name: "Aceros", CLABE: "012345678901234567"})
	require.NoError(t, err)
	c.Bank = "BBVA"
	require.NoError(t, s.UpdateContractor(ctx, c))
	got, err := s.GetContractor(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "BBVA", got.Bank)
	require.NoError(t, s.DeleteContractor(ctx, c.ID))
	_, err = s.GetContractor(ctx, c.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testBudgetItems(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)

	bad := []core.BudgetItem{
		{ProjectID: p.ID, Currency: core.MXN},
		{ProjectID: p.ID, Currency: "GBP"},
	}
	_, err := s.CreateBudgetItems(ctx, bad)
	require.Error(t, err)
	list, err := s.ListBudgetItems(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "batch is all or nothing")

	b := core.BudgetItem{ProjectID: p.ID, CategoryName: "Obra", Detail: "Zapatas", Currency: core.USD,
		Quantity: dec("10"), UnitPrice: dec("150"), SurchargePct: dec("0.1"), VATPct: dec("0.16"), ExchangeRate: dec("17.5")}
	b.Recompute()
	created, err := s.CreateBudgetItems(ctx, []core.BudgetItem{b})
	require.NoError(t, err)
	require.Len(t, created, 1)

	got, err := s.GetBudgetItem(ctx, created[0].ID)
	require.NoError(t, err)
	assert.True(t, dec("33495").Equal(got.TotalMXN))
	assert.True(t, dec("0.16").Equal(got.VATPct))
	assert.Equal(t, core.USD, got.Currency)
	assert.NoError(t, got.CheckConsistency())

	got.Notes = "revisado"
	require.NoError(t, s.UpdateBudgetItem(ctx, got))
	require.NoError(t, s.DeleteBudgetItem(ctx, got.ID))
	assert.ErrorIs(t, s.DeleteBudgetItem(ctx, got.ID), core.ErrNotFound)
}

func testRemesaNumbering(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)

	n, err := s.MaxRemesaNumber(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	r1, err := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 4, Date: time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Equal(t, core.StatusDraft, r1.Status)
	assert.Equal(t, core.DefaultSuffix, r1.Suffix)

	_, err = s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 4, Suffix: "MN"})
	assert.ErrorIs(t, err, core.ErrDuplicateRemesa)
	_, err = s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 4, Suffix: "MN-2"})
	require.NoError(t, err)

	n, err = s.MaxRemesaNumber(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	found, err := s.FindRemesa(ctx, p.ID, 4, "mn")
	require.NoError(t, err)
	assert.Equal(t, r1.ID, found.ID)
	_, err = s.FindRemesa(ctx, p.ID, 9, "MN")
	assert.ErrorIs(t, err, core.ErrNotFound)

	r1.WeekDescription = "Semana 41"
	r1.Total = dec("1660")
	r1.Status = core.StatusPaid
	require.NoError(t, s.UpdateRemesa(ctx, r1))
	got, err := s.GetRemesa(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Semana 41", got.WeekDescription)
	assert.True(t, dec("1660").Equal(got.Total))
	assert.Equal(t, core.StatusDraft, got.Status, "UpdateRemesa never writes the status")
	assert.True(t, got.Date.Equal(time.Date(2025, 10, 7, 0, 0, 0, 0, time.UTC)))

	list, err := s.ListRemesas(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteRemesa(ctx, r1.ID))
	_, err = s.GetRemesa(ctx, r1.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func sampleItems(n int) []core.RemesaItem {
	items := make([]core.RemesaItem, n)
	for i := range items {
		items[i] = core.RemesaItem{
			Section:        core.SectionTransfer,
			LineNumber:     i + 1,
			ContractorName: "Contratista",
			Amount:         dec("100"),
			VATPct:         dec("0.16"),
			VATAmount:      dec("16"),
			Total:          dec("116"),
			CLABE:          "012345678901234567",
		}
	}
	return items
}

func testRemesaItems(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)
	r, err := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 1})
	require.NoError(t, err)

	_, err = s.AddRemesaItem(ctx, core.RemesaItem{Section: core.SectionTransfer, ContractorName: "x"})
	assert.ErrorIs(t, err, core.ErrMissingRemesaRef)

	stored, err := s.ReplaceRemesaItems(ctx, r.ID, sampleItems(2))
	require.NoError(t, err)
	require.Len(t, stored, 2)

	bad := append(sampleItems(1), core.RemesaItem{Section: "Z", ContractorName: "x"})
	_, err = s.ReplaceRemesaItems(ctx, r.ID, bad)
	require.Error(t, err)
	items, err := s.ListRemesaItems(ctx, r.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2, "a rejected replace keeps the old items")

	check := core.RemesaItem{RemesaID: r.ID, Section: core.SectionCheck, LineNumber: 1, ContractorName: "Juan", Amount: dec("500"), Total: dec("500")}
	added, err := s.AddRemesaItem(ctx, check)
	require.NoError(t, err)

	items, err = s.ListRemesaItems(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, core.SectionTransfer, items[0].Section)
	assert.Equal(t, core.SectionCheck, items[2].Section)
	assert.Equal(t, "012345678901234567", items[0].CLABE)
	assert.True(t, dec("116").Equal(items[0].Total))

	added.Description = "Raya"
	added.Approved = true
	require.NoError(t, s.UpdateRemesaItem(ctx, added))
	got, err := s.GetRemesaItem(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, "Raya", got.Description)
	assert.False(t, got.Approved, "UpdateRemesaItem never changes the approval")

	require.NoError(t, s.DeleteRemesaItem(ctx, added.ID))
	_, err = s.GetRemesaItem(ctx, added.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testApprovalAndLedgerSync(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)
	r, err := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 1})
	require.NoError(t, err)
	stored, err := s.ReplaceRemesaItems(ctx, r.ID, sampleItems(2))
	require.NoError(t, err)

	at := time.Date(2025, 10, 9, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetItemApproval(ctx, stored[0].ID, core.Approval{Approved: true, ApprovedAt: &at, ApprovedBy: "Ing. Soto"}))
	got, err := s.GetRemesaItem(ctx, stored[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Approved)
	assert.Equal(t, "Ing. Soto", got.ApprovedBy)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, at.Equal(*got.ApprovedAt))

	approved, err := s.ListApprovedItems(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, stored[0].ID, approved[0].ID)

	require.NoError(t, s.SetItemApproval(ctx, stored[0].ID, core.Approval{}))
	approved, err = s.ListApprovedItems(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, approved)

	var verr *core.ValidationError
	assert.ErrorAs(t, s.SetRemesaStatus(ctx, r.ID, "archivada"), &verr)

	unsynced, err := s.ListUnsyncedPaidRemesas(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsynced)

	require.NoError(t, s.SetRemesaStatus(ctx, r.ID, core.StatusPaid))
	unsynced, err = s.ListUnsyncedPaidRemesas(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsynced, 1)
	assert.Equal(t, r.ID, unsynced[0].ID)

	require.NoError(t, s.MarkLedgerSynced(ctx, r.ID, at))
	unsynced, err = s.ListUnsyncedPaidRemesas(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsynced)
	got2, err := s.GetRemesa(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got2.LedgerSyncedAt)
	assert.Equal(t, core.StatusPaid, got2.Status)
}

func testExchangeRates(t *testing.T, s ports.Store) {
	ctx := context.Background()
	day := func(d int) time.Time { return time.Date(2025, 10, d, 0, 0, 0, 0, time.UTC) }

	_, err := s.CreateExchangeRate(ctx, core.ExchangeRate{Date: day(1), Currency: core.MXN, Rate: dec("1")})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)

	for _, r := range []core.ExchangeRate{
		{Date: day(1), Currency: core.USD, Rate: dec("18.10")},
		{Date: day(5), Currency: core.USD, Rate: dec("18.40")},
		{Date: day(9), Currency: core.USD, Rate: dec("18.90")},
		{Date: day(5), Currency: core.EUR, Rate: dec("21.00")},
	} {
		_, err := s.CreateExchangeRate(ctx, r)
		require.NoError(t, err)
	}

	got, err := s.LatestExchangeRate(ctx, core.USD, day(7))
	require.NoError(t, err)
	assert.True(t, dec("18.40").Equal(got.Rate))

	got, err = s.LatestExchangeRate(ctx, core.EUR, day(30))
	require.NoError(t, err)
	assert.True(t, dec("21").Equal(got.Rate))

	_, err = s.LatestExchangeRate(ctx, core.USD, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, core.ErrNotFound)

	all, err := s.ListExchangeRates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.NoError(t, s.DeleteExchangeRate(ctx, all[0].ID))
}

func testDeleteProjectCascades(t *testing.T, s ports.Store) {
	ctx := context.Background()
	p := project(t, s)
	cat, err := s.CreateCategory(ctx, core.Category{ProjectID: p.ID, Name: "Obra"})
	require.NoError(t, err)
	r, err := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 1})
	require.NoError(t, err)
	stored, err := s.ReplaceRemesaItems(ctx, r.ID, sampleItems(1))
	require.NoError(t, err)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	_, err = s.GetCategory(ctx, cat.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetRemesa(ctx, r.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetRemesaItem(ctx, stored[0].ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
