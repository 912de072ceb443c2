// Package ports is the persistence boundary. Both the SQLite and the
// in-memory adapters implement Store; services depend only on these
// interfaces.
package ports

import (
	"context"
	"time"

	"remesas/internal/core"
)

type (
	ProjectStore interface {
		CreateProject(ctx context.Context, p core.Project) (core.Project, error)
		GetProject(ctx context.Context, id string) (core.Project, error)
		ListProjects(ctx context.Context) ([]core.Project, error)
		UpdateProject(ctx context.Context, p core.Project) error
		DeleteProject(ctx context.Context, id string) error
	}

	// CategoryStore keeps categories and concepts. Renames propagate the
	// cached name to budget and remesa items.
	CategoryStore interface {
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		GetCategory(ctx context.Context, id string) (core.Category, error)
		ListCategories(ctx context.Context, projectID string) ([]core.Category, error)
		RenameCategory(ctx context.Context, id, name string) error
		DeleteCategory(ctx context.Context, id string) error

		CreateConcept(ctx context.Context, c core.Concept) (core.Concept, error)
		GetConcept(ctx context.Context, id string) (core.Concept, error)
		ListConcepts(ctx context.Context, projectID string) ([]core.Concept, error)
		RenameConcept(ctx context.Context, id, name string) error
		DeleteConcept(ctx context.Context, id string) error
	}

	ContractorStore interface {
		CreateContractor(ctx context.Context, c core.Contractor) (core.Contractor, error)
		GetContractor(ctx context.Context, id string) (core.Contractor, error)
		ListContractors(ctx context.Context, projectID string) ([]core.Contractor, error)
		UpdateContractor(ctx context.Context, c core.Contractor) error
		DeleteContractor(ctx context.Context, id string) error
	}

	BudgetStore interface {
		CreateBudgetItems(ctx context.Context, items []core.BudgetItem) ([]core.BudgetItem, error)
		GetBudgetItem(ctx context.Context, id string) (core.BudgetItem, error)
		ListBudgetItems(ctx context.Context, projectID string) ([]core.BudgetItem, error)
		UpdateBudgetItem(ctx context.Context, b core.BudgetItem) error
		DeleteBudgetItem(ctx context.Context, id string) error
	}

	// RemesaStore keeps remesas and their items. Status is only written
	// through SetRemesaStatus, with a value from core.DeriveStatus.
	RemesaStore interface {
		CreateRemesa(ctx context.Context, r core.Remesa) (core.Remesa, error)
		GetRemesa(ctx context.Context, id string) (core.Remesa, error)
		FindRemesa(ctx context.Context, projectID string, number int, suffix string) (core.Remesa, error)
		ListRemesas(ctx context.Context, projectID string) ([]core.Remesa, error)
		// UpdateRemesa writes the header fields and the total; it never
		// touches the status.
		UpdateRemesa(ctx context.Context, r core.Remesa) error
		DeleteRemesa(ctx context.Context, id string) error
		MaxRemesaNumber(ctx context.Context, projectID string) (int, error)
		SetRemesaStatus(ctx context.Context, id string, status core.Status) error
		ListUnsyncedPaidRemesas(ctx context.Context, limit int) ([]core.Remesa, error)
		MarkLedgerSynced(ctx context.Context, id string, at time.Time) error

		ListRemesaItems(ctx context.Context, remesaID string) ([]core.RemesaItem, error)
		GetRemesaItem(ctx context.Context, id string) (core.RemesaItem, error)
		ReplaceRemesaItems(ctx context.Context, remesaID string, items []core.RemesaItem) ([]core.RemesaItem, error)
		AddRemesaItem(ctx context.Context, item core.RemesaItem) (core.RemesaItem, error)
		UpdateRemesaItem(ctx context.Context, item core.RemesaItem) error
		DeleteRemesaItem(ctx context.Context, id string) error
		SetItemApproval(ctx context.Context, id string, a core.Approval) error
		ListApprovedItems(ctx context.Context, projectID string) ([]core.RemesaItem, error)
	}

	ExchangeRateStore interface {
		CreateExchangeRate(ctx context.Context, r core.ExchangeRate) (core.ExchangeRate, error)
		ListExchangeRates(ctx context.Context) ([]core.ExchangeRate, error)
		DeleteExchangeRate(ctx context.Context, id string) error
		// LatestExchangeRate returns the most recent rate for currency dated on
		// or before the given day.
		LatestExchangeRate(ctx context.Context, currency core.Currency, onOrBefore time.Time) (core.ExchangeRate, error)
	}

	// Store is the whole persistence boundary.
	Store interface {
		ProjectStore
		CategoryStore
		ContractorStore
		BudgetStore
		RemesaStore
		ExchangeRateStore
		Close() error
	}
)
