// Package memory is the in-memory persistence adapter used for demos,
// offline work and tests. Every mutation validates its input and checks its
// references before changing anything, so a failed call leaves the store as
// it was.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"remesas/internal/core"
	"remesas/internal/ports"
)

var _ ports.Store = (*Store)(nil)

type Store struct {
	mu          sync.RWMutex
	projects    []core.Project
	categories  []core.Category
	concepts    []core.Concept
	contractors []core.Contractor
	budget      []core.BudgetItem
	remesas     []core.Remesa
	items       []core.RemesaItem
	rates       []core.ExchangeRate
	now         func() time.Time
}

func New() *Store {
	return &Store{now: time.Now}
}

func (s *Store) Close() error { return nil }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
}

func indexOf[T any](list []T, match func(T) bool) int {
	for i, v := range list {
		if match(v) {
			return i
		}
	}
	return -1
}

func ensureID(id string) string {
	if id == "" {
		return core.NewID()
	}
	return id
}

// Projects

func (s *Store) CreateProject(_ context.Context, p core.Project) (core.Project, error) {
	if err := p.Validate(); err != nil {
		return core.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = ensureID(p.ID)
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	s.projects = append(s.projects, p)
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.projects, func(p core.Project) bool { return p.ID == id })
	if i < 0 {
		return core.Project{}, notFound("project", id)
	}
	return s.projects[i], nil
}

func (s *Store) ListProjects(_ context.Context) ([]core.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]core.Project(nil), s.projects...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (s *Store) UpdateProject(_ context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.projects, func(x core.Project) bool { return x.ID == p.ID })
	if i < 0 {
		return notFound("project", p.ID)
	}
	p.CreatedAt = s.projects[i].CreatedAt
	s.projects[i] = p
	return nil
}

// DeleteProject removes the project and everything that belongs to it.
func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.projects, func(p core.Project) bool { return p.ID == id })
	if i < 0 {
		return notFound("project", id)
	}
	s.projects = append(s.projects[:i], s.projects[i+1:]...)

	cats := map[string]bool{}
	for _, c := range s.categories {
		if c.ProjectID == id {
			cats[c.ID] = true
		}
	}
	remesas := map[string]bool{}
	for _, r := range s.remesas {
		if r.ProjectID == id {
			remesas[r.ID] = true
		}
	}
	s.categories = filter(s.categories, func(c core.Category) bool { return c.ProjectID != id })
	s.concepts = filter(s.concepts, func(c core.Concept) bool { return !cats[c.CategoryID] })
	s.contractors = filter(s.contractors, func(c core.Contractor) bool { return c.ProjectID != id })
	s.budget = filter(s.budget, func(b core.BudgetItem) bool { return b.ProjectID != id })
	s.remesas = filter(s.remesas, func(r core.Remesa) bool { return r.ProjectID != id })
	s.items = filter(s.items, func(it core.RemesaItem) bool { return !remesas[it.RemesaID] })
	return nil
}

func filter[T any](list []T, keep func(T) bool) []T {
	out := list[:0]
	for _, v := range list {
		if keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (s *Store) hasProject(id string) bool {
	return indexOf(s.projects, func(p core.Project) bool { return p.ID == id }) >= 0
}

// Categories and concepts

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProject(c.ProjectID) {
		return core.Category{}, notFound("project", c.ProjectID)
	}
	c.ID = ensureID(c.ID)
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.categories, func(c core.Category) bool { return c.ID == id })
	if i < 0 {
		return core.Category{}, notFound("category", id)
	}
	return s.categories[i], nil
}

func (s *Store) ListCategories(_ context.Context, projectID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := filter(append([]core.Category(nil), s.categories...), func(c core.Category) bool { return c.ProjectID == projectID })
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (s *Store) RenameCategory(_ context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.categories, func(c core.Category) bool { return c.ID == id })
	if i < 0 {
		return notFound("category", id)
	}
	s.categories[i].Name = name
	for j := range s.budget {
		if s.budget[j].CategoryID == id {
			s.budget[j].CategoryName = name
		}
	}
	for j := range s.items {
		if s.items[j].CategoryID == id {
			s.items[j].CategoryName = name
		}
	}
	return nil
}

// DeleteCategory removes the category and its concepts. Items that pointed
// at them keep their cached names.
func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.categories, func(c core.Category) bool { return c.ID == id })
	if i < 0 {
		return notFound("category", id)
	}
	s.categories = append(s.categories[:i], s.categories[i+1:]...)
	concepts := map[string]bool{}
	for _, c := range s.concepts {
		if c.CategoryID == id {
			concepts[c.ID] = true
		}
	}
	s.concepts = filter(s.concepts, func(c core.Concept) bool { return c.CategoryID != id })
	for j := range s.budget {
		if s.budget[j].CategoryID == id {
			s.budget[j].CategoryID, s.budget[j].ConceptID = "", ""
		}
	}
	for j := range s.items {
		if s.items[j].CategoryID == id || concepts[s.items[j].ConceptID] {
			s.items[j].CategoryID, s.items[j].ConceptID = "", ""
		}
	}
	return nil
}

func (s *Store) CreateConcept(_ context.Context, c core.Concept) (core.Concept, error) {
	if err := c.Validate(); err != nil {
		return core.Concept{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if indexOf(s.categories, func(x core.Category) bool { return x.ID == c.CategoryID }) < 0 {
		return core.Concept{}, notFound("category", c.CategoryID)
	}
	c.ID = ensureID(c.ID)
	s.concepts = append(s.concepts, c)
	return c, nil
}

func (s *Store) GetConcept(_ context.Context, id string) (core.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.concepts, func(c core.Concept) bool { return c.ID == id })
	if i < 0 {
		return core.Concept{}, notFound("concept", id)
	}
	return s.concepts[i], nil
}

func (s *Store) ListConcepts(_ context.Context, projectID string) ([]core.Concept, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cats := map[string]bool{}
	for _, c := range s.categories {
		if c.ProjectID == projectID {
			cats[c.ID] = true
		}
	}
	out := filter(append([]core.Concept(nil), s.concepts...), func(c core.Concept) bool { return cats[c.CategoryID] })
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (s *Store) RenameConcept(_ context.Context, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.concepts, func(c core.Concept) bool { return c.ID == id })
	if i < 0 {
		return notFound("concept", id)
	}
	s.concepts[i].Name = name
	for j := range s.budget {
		if s.budget[j].ConceptID == id {
			s.budget[j].ConceptName = name
		}
	}
	for j := range s.items {
		if s.items[j].ConceptID == id {
			s.items[j].ConceptName = name
		}
	}
	return nil
}

func (s *Store) DeleteConcept(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.concepts, func(c core.Concept) bool { return c.ID == id })
	if i < 0 {
		return notFound("concept", id)
	}
	s.concepts = append(s.concepts[:i], s.concepts[i+1:]...)
	for j := range s.budget {
		if s.budget[j].ConceptID == id {
			s.budget[j].ConceptID = ""
		}
	}
	for j := range s.items {
		if s.items[j].ConceptID == id {
			s.items[j].ConceptID = ""
		}
	}
	return nil
}

// Contractors

func (s *Store) CreateContractor(_ context.Context, c core.Contractor) (core.Contractor, error) {
	if err := c.Validate(); err != nil {
		return core.Contractor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProject(c.ProjectID) {
		return core.Contractor{}, notFound("project", c.ProjectID)
	}
	c.ID = ensureID(c.ID)
	s.contractors = append(s.contractors, c)
	return c, nil
}

func (s *Store) GetContractor(_ context.Context, id string) (core.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.contractors, func(c core.Contractor) bool { return c.ID == id })
	if i < 0 {
		return core.Contractor{}, notFound("contractor", id)
	}
	return s.contractors[i], nil
}

func (s *Store) ListContractors(_ context.Context, projectID string) ([]core.Contractor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := filter(append([]core.Contractor(nil), s.contractors...), func(c core.Contractor) bool { return c.ProjectID == projectID })
	sort.SliceStable(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out, nil
}

func (s *Store) UpdateContractor(_ context.Context, c core.Contractor) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.contractors, func(x core.Contractor) bool { return x.ID == c.ID })
	if i < 0 {
		return notFound("contractor", c.ID)
	}
	s.contractors[i] = c
	return nil
}

func (s *Store) DeleteContractor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.contractors, func(c core.Contractor) bool { return c.ID == id })
	if i < 0 {
		return notFound("contractor", id)
	}
	s.contractors = append(s.contractors[:i], s.contractors[i+1:]...)
	for j := range s.items {
		if s.items[j].ContractorID == id {
			s.items[j].ContractorID = ""
		}
	}
	return nil
}

// Budget

// CreateBudgetItems stores all items or none.
func (s *Store) CreateBudgetItems(_ context.Context, items []core.BudgetItem) ([]core.BudgetItem, error) {
	for i, b := range items {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("budget item %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range items {
		if !s.hasProject(b.ProjectID) {
			return nil, notFound("project", b.ProjectID)
		}
	}
	out := make([]core.BudgetItem, len(items))
	for i, b := range items {
		b.ID = ensureID(b.ID)
		out[i] = b
	}
	s.budget = append(s.budget, out...)
	return out, nil
}

func (s *Store) GetBudgetItem(_ context.Context, id string) (core.BudgetItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.budget, func(b core.BudgetItem) bool { return b.ID == id })
	if i < 0 {
		return core.BudgetItem{}, notFound("budget item", id)
	}
	return s.budget[i], nil
}

func (s *Store) ListBudgetItems(_ context.Context, projectID string) ([]core.BudgetItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filter(append([]core.BudgetItem(nil), s.budget...), func(b core.BudgetItem) bool { return b.ProjectID == projectID }), nil
}

func (s *Store) UpdateBudgetItem(_ context.Context, b core.BudgetItem) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.budget, func(x core.BudgetItem) bool { return x.ID == b.ID })
	if i < 0 {
		return notFound("budget item", b.ID)
	}
	s.budget[i] = b
	return nil
}

func (s *Store) DeleteBudgetItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.budget, func(b core.BudgetItem) bool { return b.ID == id })
	if i < 0 {
		return notFound("budget item", id)
	}
	s.budget = append(s.budget[:i], s.budget[i+1:]...)
	return nil
}

// Exchange rates

func (s *Store) CreateExchangeRate(_ context.Context, r core.ExchangeRate) (core.ExchangeRate, error) {
	if err := r.Validate(); err != nil {
		return core.ExchangeRate{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = ensureID(r.ID)
	r.Date = core.DateOnly(r.Date)
	s.rates = append(s.rates, r)
	return r, nil
}

func (s *Store) ListExchangeRates(_ context.Context) ([]core.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]core.ExchangeRate(nil), s.rates...)
	sort.SliceStable(out, func(a, b int) bool { return out[a].Date.After(out[b].Date) })
	return out, nil
}

func (s *Store) DeleteExchangeRate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.rates, func(r core.ExchangeRate) bool { return r.ID == id })
	if i < 0 {
		return notFound("exchange rate", id)
	}
	s.rates = append(s.rates[:i], s.rates[i+1:]...)
	return nil
}

func (s *Store) LatestExchangeRate(_ context.Context, currency core.Currency, onOrBefore time.Time) (core.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := core.DateOnly(onOrBefore)
	var best *core.ExchangeRate
	for i := range s.rates {
		r := &s.rates[i]
		if r.Currency != currency || r.Date.After(day) {
			continue
		}
		if best == nil || r.Date.After(best.Date) {
			best = r
		}
	}
	if best == nil {
		return core.ExchangeRate{}, notFound("exchange rate", string(currency))
	}
	return *best, nil
}
