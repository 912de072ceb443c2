package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"remesas/internal/cache"
	"remesas/internal/core"
	"remesas/internal/ports"
)

// importBatchSize is how many budget lines go to the store per call.
const importBatchSize = 50

// BudgetService owns budget lines and the derived budget views.
type BudgetService struct {
	store ports.Store
	cache cache.Cache[*core.BudgetVsPaid]
	now   func() time.Time

	// generations counts invalidations per project. A summary computed
	// across an invalidation is returned but not cached.
	mu          sync.Mutex
	generations map[string]uint64
}

// NewBudgetService builds the service. summaries may be nil to disable
// caching of budget-vs-paid.
func NewBudgetService(store ports.Store, summaries cache.Cache[*core.BudgetVsPaid]) *BudgetService {
	return &BudgetService{store: store, cache: summaries, now: time.Now, generations: map[string]uint64{}}
}

// Invalidate drops the cached budget-vs-paid of a project.
func (s *BudgetService) Invalidate(projectID string) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[projectID]++
	s.cache.Delete(projectID)
}

func (s *BudgetService) generation(projectID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[projectID]
}

// remember caches v unless the project was invalidated since gen was read.
func (s *BudgetService) remember(projectID string, gen uint64, v *core.BudgetVsPaid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[projectID] != gen {
		return
	}
	s.cache.Set(projectID, v)
}

func (s *BudgetService) ListItems(ctx context.Context, projectID string) ([]core.BudgetItem, error) {
	return s.store.ListBudgetItems(ctx, projectID)
}

func (s *BudgetService) GetItem(ctx context.Context, id string) (core.BudgetItem, error) {
	return s.store.GetBudgetItem(ctx, id)
}

// resolveRate fills the exchange rate of a foreign-currency line that came
// without one from the latest stored rate. It returns a warning when no
// rate exists and the line falls back to 1.
func (s *BudgetService) resolveRate(ctx context.Context, b *core.BudgetItem) string {
	if b.Currency == "" || b.Currency == core.BaseCurrency || !b.ExchangeRate.IsZero() {
		return ""
	}
	rate, err := s.store.LatestExchangeRate(ctx, b.Currency, s.now())
	if err != nil {
		slog.WarnContext(ctx, "No exchange rate on record, using 1",
			"component", "budget", "currency", b.Currency, "error", err)
		return fmt.Sprintf("sin tipo de cambio para %s, se usa 1", b.Currency)
	}
	b.ExchangeRate = rate.Rate
	return ""
}

// CreateItem recomputes the derived fields and stores the line.
func (s *BudgetService) CreateItem(ctx context.Context, b core.BudgetItem) (core.BudgetItem, error) {
	currency, err := core.ParseCurrency(string(b.Currency))
	if err != nil {
		return core.BudgetItem{}, &core.ValidationError{Field: "currency", Err: err}
	}
	b.Currency = currency
	s.resolveRate(ctx, &b)
	b.Recompute()
	created, err := s.store.CreateBudgetItems(ctx, []core.BudgetItem{b})
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("create budget item: %w", err)
	}
	s.Invalidate(b.ProjectID)
	return created[0], nil
}

func (s *BudgetService) UpdateItem(ctx context.Context, b core.BudgetItem) (core.BudgetItem, error) {
	current, err := s.store.GetBudgetItem(ctx, b.ID)
	if err != nil {
		return core.BudgetItem{}, fmt.Errorf("update budget item: %w", err)
	}
	currency, err := core.ParseCurrency(string(b.Currency))
	if err != nil {
		return core.BudgetItem{}, &core.ValidationError{Field: "currency", Err: err}
	}
	b.ProjectID = current.ProjectID
	b.Currency = currency
	s.resolveRate(ctx, &b)
	b.Recompute()
	if err := s.store.UpdateBudgetItem(ctx, b); err != nil {
		return core.BudgetItem{}, fmt.Errorf("update budget item: %w", err)
	}
	s.Invalidate(b.ProjectID)
	return b, nil
}

func (s *BudgetService) DeleteItem(ctx context.Context, id string) error {
	current, err := s.store.GetBudgetItem(ctx, id)
	if err != nil {
		return fmt.Errorf("delete budget item: %w", err)
	}
	if err := s.store.DeleteBudgetItem(ctx, id); err != nil {
		return fmt.Errorf("delete budget item: %w", err)
	}
	s.Invalidate(current.ProjectID)
	return nil
}

// ImportResult summarizes a committed budget import.
type ImportResult struct {
	Imported          int      `json:"imported"`
	CategoriesCreated int      `json:"categories_created"`
	ConceptsCreated   int      `json:"concepts_created"`
	Warnings          []string `json:"warnings,omitempty"`
}

// catalogIndex resolves category and concept names of a project to ids,
// creating what is missing.
type catalogIndex struct {
	store      ports.Store
	projectID  string
	categories map[string]core.Category
	concepts   map[string]core.Concept
	created    struct{ categories, concepts int }
}

func loadCatalogIndex(ctx context.Context, store ports.Store, projectID string) (*catalogIndex, error) {
	idx := &catalogIndex{
		store:      store,
		projectID:  projectID,
		categories: map[string]core.Category{},
		concepts:   map[string]core.Concept{},
	}
	cats, err := store.ListCategories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	for _, c := range cats {
		idx.categories[core.Fold(c.Name)] = c
	}
	cons, err := store.ListConcepts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	for _, c := range cons {
		idx.concepts[c.CategoryID+"\x00"+core.Fold(c.Name)] = c
	}
	return idx, nil
}

func (idx *catalogIndex) category(ctx context.Context, name string) (core.Category, error) {
	key := core.Fold(name)
	if key == "" {
		return core.Category{}, nil
	}
	if c, ok := idx.categories[key]; ok {
		return c, nil
	}
	c, err := idx.store.CreateCategory(ctx, core.Category{ProjectID: idx.projectID, Name: strings.TrimSpace(name)})
	if err != nil {
		return core.Category{}, fmt.Errorf("create category %q: %w", name, err)
	}
	idx.categories[key] = c
	idx.created.categories++
	return c, nil
}

func (idx *catalogIndex) concept(ctx context.Context, categoryID, name string) (core.Concept, error) {
	key := core.Fold(name)
	if key == "" || categoryID == "" {
		return core.Concept{}, nil
	}
	if c, ok := idx.concepts[categoryID+"\x00"+key]; ok {
		return c, nil
	}
	c, err := idx.store.CreateConcept(ctx, core.Concept{CategoryID: categoryID, Name: strings.TrimSpace(name)})
	if err != nil {
		return core.Concept{}, fmt.Errorf("create concept %q: %w", name, err)
	}
	idx.concepts[categoryID+"\x00"+key] = c
	idx.created.concepts++
	return c, nil
}

// ImportItems commits parsed budget lines: categories and concepts are
// looked up by name and created when missing, unknown currencies become
// MXN, and lines are stored in batches. Derived figures are kept as the file
// states them; drift is reported as warnings. A failing batch stops the
// import with a PartialError counting the lines already stored.
func (s *BudgetService) ImportItems(ctx context.Context, projectID string, items []core.BudgetItem) (*ImportResult, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("import budget: %w", err)
	}
	idx, err := loadCatalogIndex(ctx, s.store, projectID)
	if err != nil {
		return nil, fmt.Errorf("import budget: %w", err)
	}

	res := &ImportResult{}
	prepared := make([]core.BudgetItem, 0, len(items))
	for i, b := range items {
		b.ID = ""
		b.ProjectID = projectID
		currency, err := core.ParseCurrency(string(b.Currency))
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("línea %d: moneda %q desconocida, se usa MXN", i+1, b.Currency))
			currency = core.MXN
		}
		b.Currency = currency
		if b.ExchangeRate.IsZero() {
			b.ExchangeRate = core.Amount("1")
		}

		cat, err := idx.category(ctx, b.CategoryName)
		if err != nil {
			return nil, &PartialError{Op: "import budget", Applied: 0, Total: len(items), Err: err}
		}
		b.CategoryID = cat.ID
		con, err := idx.concept(ctx, cat.ID, b.ConceptName)
		if err != nil {
			return nil, &PartialError{Op: "import budget", Applied: 0, Total: len(items), Err: err}
		}
		b.ConceptID = con.ID

		if err := b.CheckConsistency(); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("línea %d: %v", i+1, err))
		}
		prepared = append(prepared, b)
	}
	res.CategoriesCreated = idx.created.categories
	res.ConceptsCreated = idx.created.concepts

	for start := 0; start < len(prepared); start += importBatchSize {
		end := min(start+importBatchSize, len(prepared))
		if _, err := s.store.CreateBudgetItems(ctx, prepared[start:end]); err != nil {
			s.Invalidate(projectID)
			return res, &PartialError{Op: "import budget", Applied: res.Imported, Total: len(prepared), Err: err}
		}
		res.Imported = end
	}
	s.Invalidate(projectID)

	slog.InfoContext(ctx, "Budget imported",
		"component", "budget",
		"project_id", projectID,
		"items", res.Imported,
		"categories_created", res.CategoriesCreated,
		"concepts_created", res.ConceptsCreated,
		"warnings", len(res.Warnings))
	return res, nil
}

// Tree returns the category -> concept -> item view of the budget.
func (s *BudgetService) Tree(ctx context.Context, projectID string) (*core.BudgetTree, error) {
	items, err := s.store.ListBudgetItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget tree: %w", err)
	}
	tree := core.BuildBudgetTree(items)
	if err := tree.Verify(); err != nil {
		slog.ErrorContext(ctx, "Budget tree totals disagree", "component", "budget", "project_id", projectID, "error", err)
	}
	return tree, nil
}

// BudgetVsPaid compares budget against approved payments for a project.
func (s *BudgetService) BudgetVsPaid(ctx context.Context, projectID string) (*core.BudgetVsPaid, error) {
	var gen uint64
	if s.cache != nil {
		if v, ok := s.cache.Get(projectID); ok {
			return v, nil
		}
		gen = s.generation(projectID)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("budget vs paid: %w", err)
	}
	cats, err := s.store.ListCategories(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget vs paid: %w", err)
	}
	cons, err := s.store.ListConcepts(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget vs paid: %w", err)
	}
	budget, err := s.store.ListBudgetItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget vs paid: %w", err)
	}
	paid, err := s.store.ListApprovedItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("budget vs paid: %w", err)
	}
	v := core.ComputeBudgetVsPaid(cats, cons, budget, paid)
	if s.cache != nil {
		s.remember(projectID, gen, v)
	}
	return v, nil
}

// PaidByContractor totals approved payments of a project per contractor.
// Contractors still in the catalog are reported under their current name.
func (s *BudgetService) PaidByContractor(ctx context.Context, projectID string) ([]core.ContractorTotal, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, fmt.Errorf("paid by contractor: %w", err)
	}
	paid, err := s.store.ListApprovedItems(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("paid by contractor: %w", err)
	}
	contractors, err := s.store.ListContractors(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("paid by contractor: %w", err)
	}
	names := make(map[string]string, len(contractors))
	for _, c := range contractors {
		names[c.ID] = c.Name
	}
	totals := core.PaidByContractor(paid)
	for i := range totals {
		if name, ok := names[totals[i].ContractorID]; ok {
			totals[i].ContractorName = name
		}
	}
	return totals, nil
}
