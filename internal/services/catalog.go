package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"remesas/internal/core"
	"remesas/internal/ports"
)

// CatalogService manages projects and the reference data remesas point at:
// categories, concepts, contractors and exchange rates.
type CatalogService struct {
	store       ports.Store
	invalidator func(projectID string)
}

func NewCatalogService(store ports.Store) *CatalogService {
	return &CatalogService{store: store, invalidator: func(string) {}}
}

// OnChange registers fn to run after writes that alter budget-vs-paid.
func (s *CatalogService) OnChange(fn func(projectID string)) {
	if fn != nil {
		s.invalidator = fn
	}
}

func (s *CatalogService) CreateProject(ctx context.Context, p core.Project) (core.Project, error) {
	p.Name = strings.TrimSpace(p.Name)
	created, err := s.store.CreateProject(ctx, p)
	if err != nil {
		return core.Project{}, fmt.Errorf("create project: %w", err)
	}
	slog.InfoContext(ctx, "Project created", "component", "catalog", "project_id", created.ID)
	return created, nil
}

func (s *CatalogService) GetProject(ctx context.Context, id string) (core.Project, error) {
	return s.store.GetProject(ctx, id)
}

func (s *CatalogService) ListProjects(ctx context.Context) ([]core.Project, error) {
	return s.store.ListProjects(ctx)
}

func (s *CatalogService) UpdateProject(ctx context.Context, p core.Project) error {
	if err := s.store.UpdateProject(ctx, p); err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	return nil
}

func (s *CatalogService) DeleteProject(ctx context.Context, id string) error {
	if err := s.store.DeleteProject(ctx, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	s.invalidator(id)
	slog.InfoContext(ctx, "Project deleted", "component", "catalog", "project_id", id)
	return nil
}

// Categories and concepts

func (s *CatalogService) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	created, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidator(c.ProjectID)
	return created, nil
}

func (s *CatalogService) ListCategories(ctx context.Context, projectID string) ([]core.Category, error) {
	return s.store.ListCategories(ctx, projectID)
}

// RenameCategory renames the category; the store carries the new name onto
// every budget and remesa item that points at it.
func (s *CatalogService) RenameCategory(ctx context.Context, id, name string) error {
	cat, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	if err := s.store.RenameCategory(ctx, id, name); err != nil {
		return fmt.Errorf("rename category: %w", err)
	}
	s.invalidator(cat.ProjectID)
	slog.InfoContext(ctx, "Category renamed", "component", "catalog", "category_id", id, "from", cat.Name, "to", name)
	return nil
}

func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	cat, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.invalidator(cat.ProjectID)
	return nil
}

func (s *CatalogService) CreateConcept(ctx context.Context, c core.Concept) (core.Concept, error) {
	cat, err := s.store.GetCategory(ctx, c.CategoryID)
	if err != nil {
		return core.Concept{}, fmt.Errorf("create concept: %w", err)
	}
	created, err := s.store.CreateConcept(ctx, c)
	if err != nil {
		return core.Concept{}, fmt.Errorf("create concept: %w", err)
	}
	s.invalidator(cat.ProjectID)
	return created, nil
}

func (s *CatalogService) ListConcepts(ctx context.Context, projectID string) ([]core.Concept, error) {
	return s.store.ListConcepts(ctx, projectID)
}

func (s *CatalogService) RenameConcept(ctx context.Context, id, name string) error {
	con, err := s.store.GetConcept(ctx, id)
	if err != nil {
		return fmt.Errorf("rename concept: %w", err)
	}
	if err := s.store.RenameConcept(ctx, id, name); err != nil {
		return fmt.Errorf("rename concept: %w", err)
	}
	if cat, err := s.store.GetCategory(ctx, con.CategoryID); err == nil {
		s.invalidator(cat.ProjectID)
	}
	return nil
}

func (s *CatalogService) DeleteConcept(ctx context.Context, id string) error {
	con, err := s.store.GetConcept(ctx, id)
	if err != nil {
		return fmt.Errorf("delete concept: %w", err)
	}
	if err := s.store.DeleteConcept(ctx, id); err != nil {
		return fmt.Errorf("delete concept: %w", err)
	}
	if cat, err := s.store.GetCategory(ctx, con.CategoryID); err == nil {
		s.invalidator(cat.ProjectID)
	}
	return nil
}

// Contractors

func (s *CatalogService) CreateContractor(ctx context.Context, c core.Contractor) (core.Contractor, error) {
	c.CLABE = strings.ReplaceAll(strings.TrimSpace(c.CLABE), " ", "")
	created, err := s.store.CreateContractor(ctx, c)
	if err != nil {
		return core.Contractor{}, fmt.Errorf("create contractor: %w", err)
	}
	return created, nil
}

func (s *CatalogService) GetContractor(ctx context.Context, id string) (core.Contractor, error) {
	return s.store.GetContractor(ctx, id)
}

func (s *CatalogService) ListContractors(ctx context.Context, projectID string) ([]core.Contractor, error) {
	return s.store.ListContractors(ctx, projectID)
}

// UpdateContractor changes the contractor record only. Items already
// composed keep the bank details they were created with.
func (s *CatalogService) UpdateContractor(ctx context.Context, c core.Contractor) error {
	c.CLABE = strings.ReplaceAll(strings.TrimSpace(c.CLABE), " ", "")
	if err := s.store.UpdateContractor(ctx, c); err != nil {
		return fmt.Errorf("update contractor: %w", err)
	}
	return nil
}

func (s *CatalogService) DeleteContractor(ctx context.Context, id string) error {
	if err := s.store.DeleteContractor(ctx, id); err != nil {
		return fmt.Errorf("delete contractor: %w", err)
	}
	return nil
}

// Exchange rates

func (s *CatalogService) CreateExchangeRate(ctx context.Context, r core.ExchangeRate) (core.ExchangeRate, error) {
	created, err := s.store.CreateExchangeRate(ctx, r)
	if err != nil {
		return core.ExchangeRate{}, fmt.Errorf("create exchange rate: %w", err)
	}
	return created, nil
}

func (s *CatalogService) ListExchangeRates(ctx context.Context) ([]core.ExchangeRate, error) {
	return s.store.ListExchangeRates(ctx)
}

func (s *CatalogService) DeleteExchangeRate(ctx context.Context, id string) error {
	if err := s.store.DeleteExchangeRate(ctx, id); err != nil {
		return fmt.Errorf("delete exchange rate: %w", err)
	}
	return nil
}

// LatestExchangeRate returns the rate in force for currency on day.
func (s *CatalogService) LatestExchangeRate(ctx context.Context, currency core.Currency, day time.Time) (core.ExchangeRate, error) {
	return s.store.LatestExchangeRate(ctx, currency, day)
}
