package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remesas/internal/core"
)

func budgetLine(projectID, currency string) core.BudgetItem {
	return core.BudgetItem{
		ProjectID: projectID,
		Detail:    "Block hueco",
		Quantity:  dec("2"),
		UnitPrice: dec("100"),
		VATPct:    dec("16"),
		Currency:  core.Currency(currency),
	}
}

func TestCreateBudgetItemRecomputes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b := budgetLine(env.project.ID, "mxn")
	b.Total = dec("999999") // ignored
	created, err := env.budget.CreateItem(ctx, b)
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.Equal(t, core.MXN, created.Currency)
	assert.True(t, created.Subtotal.Equal(dec("200")))
	assert.True(t, created.VATAmount.Equal(dec("32")))
	assert.True(t, created.Total.Equal(dec("232")))
	assert.True(t, created.ExchangeRate.Equal(dec("1")))
	assert.True(t, created.TotalMXN.Equal(dec("232")))
}

func TestCreateBudgetItemUsesLatestRate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.catalog.CreateExchangeRate(ctx, core.ExchangeRate{
		Date: time.Now().AddDate(0, 0, -10), Currency: core.USD, Rate: dec("18.10"),
	})
	require.NoError(t, err)
	_, err = env.catalog.CreateExchangeRate(ctx, core.ExchangeRate{
		Date: time.Now().AddDate(0, 0, -1), Currency: core.USD, Rate: dec("17.50"),
	})
	require.NoError(t, err)

	usd, err := env.budget.CreateItem(ctx, budgetLine(env.project.ID, "USD"))
	require.NoError(t, err)
	assert.True(t, usd.ExchangeRate.Equal(dec("17.50")), "rate = %s", usd.ExchangeRate)
	assert.True(t, usd.TotalMXN.Equal(dec("4060")), "total mxn = %s", usd.TotalMXN)

	explicit := budgetLine(env.project.ID, "USD")
	explicit.ExchangeRate = dec("20")
	usd, err = env.budget.CreateItem(ctx, explicit)
	require.NoError(t, err)
	assert.True(t, usd.TotalMXN.Equal(dec("4640")))

	// no EUR rate on record: falls back to 1
	eur, err := env.budget.CreateItem(ctx, budgetLine(env.project.ID, "EUR"))
	require.NoError(t, err)
	assert.True(t, eur.ExchangeRate.Equal(dec("1")))
	assert.True(t, eur.TotalMXN.Equal(dec("232")))
}

func TestCreateBudgetItemRejectsUnknownCurrency(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.budget.CreateItem(context.Background(), budgetLine(env.project.ID, "GBP"))

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "currency", ve.Field)
	assert.ErrorIs(t, err, core.ErrInvalidCurrency)
}

func TestUpdateAndDeleteBudgetItem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	created, err := env.budget.CreateItem(ctx, budgetLine(env.project.ID, "MXN"))
	require.NoError(t, err)

	created.Quantity = dec("3")
	created.ProjectID = "someone-else"
	updated, err := env.budget.UpdateItem(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, env.project.ID, updated.ProjectID, "project cannot be moved")
	assert.True(t, updated.Total.Equal(dec("348")))

	require.NoError(t, env.budget.DeleteItem(ctx, created.ID))
	_, err = env.budget.GetItem(ctx, created.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func importLines(n int) []core.BudgetItem {
	items := make([]core.BudgetItem, n)
	for i := range items {
		b := core.BudgetItem{
			CategoryName: fmt.Sprintf("Cat %d", i%3),
			ConceptName:  fmt.Sprintf("Con %d", i%2),
			Detail:       fmt.Sprintf("línea %d", i+1),
			Quantity:     dec("1"),
			UnitPrice:    dec("10"),
			Currency:     core.MXN,
		}
		b.Recompute()
		items[i] = b
	}
	return items
}

func TestImportItemsInBatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.catalog.CreateCategory(ctx, core.Category{ProjectID: env.project.ID, Name: "CAT 0"})
	require.NoError(t, err)

	items := importLines(120)
	items[3].Currency = "XYZ"
	items[5].Total = items[5].Total.Add(dec("10"))

	res, err := env.budget.ImportItems(ctx, env.project.ID, items)
	require.NoError(t, err)

	assert.Equal(t, 120, res.Imported)
	assert.Equal(t, 2, res.CategoriesCreated, "existing category matched ignoring case")
	assert.Equal(t, 6, res.ConceptsCreated)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "línea 4")
	assert.Contains(t, res.Warnings[1], "línea 6")
	assert.Equal(t, 3, env.store.budgetCalls, "120 lines go in batches of 50")

	stored, err := env.budget.ListItems(ctx, env.project.ID)
	require.NoError(t, err)
	require.Len(t, stored, 120)
	for _, b := range stored {
		assert.NotEmpty(t, b.CategoryID)
		assert.NotEmpty(t, b.ConceptID)
		assert.Equal(t, core.MXN, b.Currency)
	}

	var drifted core.BudgetItem
	for _, b := range stored {
		if b.Detail == "línea 6" {
			drifted = b
		}
	}
	assert.True(t, drifted.Total.Equal(dec("20")), "file figures are kept, got %s", drifted.Total)
}

func TestImportItemsPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.failBudgetAt = 2

	res, err := env.budget.ImportItems(ctx, env.project.ID, importLines(120))

	var pe *PartialError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 50, pe.Applied)
	assert.Equal(t, 120, pe.Total)
	assert.Equal(t, 50, res.Imported)

	stored, err := env.budget.ListItems(ctx, env.project.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 50)
}

func TestImportItemsUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.budget.ImportItems(context.Background(), "missing", importLines(1))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBudgetTreeTotals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.budget.ImportItems(ctx, env.project.ID, importLines(9))
	require.NoError(t, err)

	tree, err := env.budget.Tree(ctx, env.project.ID)
	require.NoError(t, err)
	require.Len(t, tree.Categories, 3)
	assert.True(t, tree.GrandTotal.Equal(dec("90")))
	assert.NoError(t, tree.Verify())
}

func TestBudgetVsPaidFollowsApprovals(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	cat, err := env.catalog.CreateCategory(ctx, core.Category{ProjectID: env.project.ID, Name: "Obra negra"})
	require.NoError(t, err)
	con, err := env.catalog.CreateConcept(ctx, core.Concept{CategoryID: cat.ID, Name: "Muros"})
	require.NoError(t, err)

	b := budgetLine(env.project.ID, "MXN")
	b.CategoryID, b.ConceptID = cat.ID, con.ID
	_, err = env.budget.CreateItem(ctx, b)
	require.NoError(t, err)

	it := transfer("Albañil", "100")
	it.CategoryID, it.ConceptID = cat.ID, con.ID
	d := env.newRemesaWithItems(t, it)

	before, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	assert.True(t, before.TotalBudget.Equal(dec("232")))
	assert.True(t, before.TotalPaid.IsZero())

	cached, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	assert.Same(t, before, cached, "second read comes from the cache")

	_, err = env.remesas.Approve(ctx, d.Items[0].ID, "caja")
	require.NoError(t, err)

	after, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	assert.True(t, after.TotalPaid.Equal(dec("116")), "paid = %s", after.TotalPaid)
	line, ok := after.Lookup(cat.ID, con.ID)
	require.True(t, ok)
	assert.True(t, line.Available.Equal(dec("116")))
}

func TestBudgetVsPaidSkipsCacheAfterConcurrentChange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.newRemesaWithItems(t, transfer("Albañil", "100"))
	_, err := env.remesas.Send(ctx, d.ID)
	require.NoError(t, err)

	// an approval lands while the summary is being computed
	env.store.onListApproved = func() {
		env.store.onListApproved = nil
		_, err := env.remesas.Approve(ctx, d.Items[0].ID, "caja")
		require.NoError(t, err)
	}
	during, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	require.NotNil(t, during)

	fresh, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	assert.NotSame(t, during, fresh, "a summary computed across an invalidation is not cached")
	assert.True(t, fresh.TotalPaid.Equal(dec("116")), "paid = %s", fresh.TotalPaid)

	cached, err := env.budget.BudgetVsPaid(ctx, env.project.ID)
	require.NoError(t, err)
	assert.Same(t, fresh, cached)
}

func TestPaidByContractor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	aceros, err := env.catalog.CreateContractor(ctx, core.Contractor{ProjectID: env.project.ID, Name: "Aceros del Norte"})
	require.NoError(t, err)

	a1 := transfer("ACEROS DEL NORTE", "1000")
	a1.ContractorID = aceros.ID
	a2 := transfer("Aceros", "500")
	a2.ContractorID = aceros.ID
	d := env.newRemesaWithItems(t, a1, a2, check("Juan López", "3000"), check("Plomería García", "800"))
	_, err = env.remesas.Send(ctx, d.ID)
	require.NoError(t, err)
	for _, it := range d.Items {
		if it.ContractorName != "Plomería García" {
			_, err := env.remesas.Approve(ctx, it.ID, "caja")
			require.NoError(t, err)
		}
	}

	aceros.Name = "Aceros del Norte Monterrey"
	require.NoError(t, env.catalog.UpdateContractor(ctx, aceros))

	totals, err := env.budget.PaidByContractor(ctx, env.project.ID)
	require.NoError(t, err)
	require.Len(t, totals, 2, "unapproved items are not paid")

	assert.Equal(t, "Juan López", totals[0].ContractorName)
	assert.True(t, totals[0].Total.Equal(dec("3000")))
	assert.Equal(t, 1, totals[0].Count)

	assert.Equal(t, aceros.ID, totals[1].ContractorID)
	assert.Equal(t, "Aceros del Norte Monterrey", totals[1].ContractorName, "catalog name wins")
	assert.Equal(t, 2, totals[1].Count)
	assert.True(t, totals[1].Amount.Equal(dec("1500")))
	assert.True(t, totals[1].VATAmount.Equal(dec("240")))
	assert.True(t, totals[1].Total.Equal(dec("1740")))

	_, err = env.budget.PaidByContractor(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBudgetVsPaidUnknownProject(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.budget.BudgetVsPaid(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
