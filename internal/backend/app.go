package backend

import (
	"time"

	"remesas/internal/cache"
	"remesas/internal/core"
	"remesas/internal/services"
	"remesas/internal/sheets"
	"remesas/internal/spreadsheet"
)

// AppOptions tune the services built over a backend.
type AppOptions struct {
	BudgetCacheTTL time.Duration
	BaseSuffix     string
	// Approver is stamped on items imported as already paid.
	Approver string
}

// App is the set of application services sharing one store.
type App struct {
	Catalog *services.CatalogService
	Budget  *services.BudgetService
	Remesas *services.RemesaService
	Import  *services.ImportService
	Export  *services.ExportService
	Caches  *cache.Manager
}

// NewApp wires the services over res. Any write that can change paid
// amounts drops the project's cached budget comparison.
func NewApp(res *Result, opts AppOptions) *App {
	if opts.BudgetCacheTTL <= 0 {
		opts.BudgetCacheTTL = 5 * time.Minute
	}
	if opts.Approver == "" {
		opts.Approver = "importacion"
	}

	budgetCache := cache.NewLRUCache[*core.BudgetVsPaid](100, opts.BudgetCacheTTL)
	manager := cache.NewManager()
	manager.Register(budgetCache)

	catalog := services.NewCatalogService(res.Store)
	budget := services.NewBudgetService(res.Store, budgetCache)
	remesas := services.NewRemesaService(res.Store, res.Publisher)
	remesas.OnChange(budget.Invalidate)
	catalog.OnChange(budget.Invalidate)

	var ledger sheets.LedgerReader
	if res.Ledger != nil {
		ledger = res.Ledger
	}

	return &App{
		Catalog: catalog,
		Budget:  budget,
		Remesas: remesas,
		Import: services.NewImportService(res.Store, budget, remesas, ledger, spreadsheet.Options{
			BaseSuffix: opts.BaseSuffix,
			Approver:   opts.Approver,
		}),
		Export: services.NewExportService(remesas, budget, catalog),
		Caches: manager,
	}
}
