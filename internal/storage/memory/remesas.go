package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"remesas/internal/core"
)

func (s *Store) remesaIndex(id string) int {
	return indexOf(s.remesas, func(r core.Remesa) bool { return r.ID == id })
}

func (s *Store) numberTaken(projectID string, number int, suffix, exceptID string) bool {
	return indexOf(s.remesas, func(r core.Remesa) bool {
		return r.ProjectID == projectID && r.Number == number && strings.EqualFold(r.Suffix, suffix) && r.ID != exceptID
	}) >= 0
}

func (s *Store) CreateRemesa(_ context.Context, r core.Remesa) (core.Remesa, error) {
	if r.Status == "" {
		r.Status = core.StatusDraft
	}
	if r.Suffix == "" {
		r.Suffix = core.DefaultSuffix
	}
	if err := r.Validate(); err != nil {
		return core.Remesa{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasProject(r.ProjectID) {
		return core.Remesa{}, notFound("project", r.ProjectID)
	}
	if s.numberTaken(r.ProjectID, r.Number, r.Suffix, "") {
		return core.Remesa{}, fmt.Errorf("%s: %w", r.Label(), core.ErrDuplicateRemesa)
	}
	r.ID = ensureID(r.ID)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now().UTC()
	}
	s.remesas = append(s.remesas, r)
	return r, nil
}

func (s *Store) GetRemesa(_ context.Context, id string) (core.Remesa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.remesaIndex(id)
	if i < 0 {
		return core.Remesa{}, notFound("remesa", id)
	}
	return s.remesas[i], nil
}

func (s *Store) FindRemesa(_ context.Context, projectID string, number int, suffix string) (core.Remesa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.remesas, func(r core.Remesa) bool {
		return r.ProjectID == projectID && r.Number == number && strings.EqualFold(r.Suffix, suffix)
	})
	if i < 0 {
		return core.Remesa{}, notFound("remesa", fmt.Sprintf("%02d %s", number, suffix))
	}
	return s.remesas[i], nil
}

// ListRemesas returns the project's remesas, newest number first.
func (s *Store) ListRemesas(_ context.Context, projectID string) ([]core.Remesa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := filter(append([]core.Remesa(nil), s.remesas...), func(r core.Remesa) bool { return r.ProjectID == projectID })
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Number != out[b].Number {
			return out[a].Number > out[b].Number
		}
		return out[a].Suffix < out[b].Suffix
	})
	return out, nil
}

func (s *Store) UpdateRemesa(_ context.Context, r core.Remesa) error {
	if r.Suffix == "" {
		r.Suffix = core.DefaultSuffix
	}
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.remesaIndex(r.ID)
	if i < 0 {
		return notFound("remesa", r.ID)
	}
	cur := s.remesas[i]
	if s.numberTaken(cur.ProjectID, r.Number, r.Suffix, r.ID) {
		return fmt.Errorf("%s: %w", r.Label(), core.ErrDuplicateRemesa)
	}
	cur.Number = r.Number
	cur.Suffix = r.Suffix
	cur.Date = r.Date
	cur.WeekDescription = r.WeekDescription
	cur.CreatedBy = r.CreatedBy
	cur.Total = r.Total
	s.remesas[i] = cur
	return nil
}

func (s *Store) DeleteRemesa(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.remesaIndex(id)
	if i < 0 {
		return notFound("remesa", id)
	}
	s.remesas = append(s.remesas[:i], s.remesas[i+1:]...)
	s.items = filter(s.items, func(it core.RemesaItem) bool { return it.RemesaID != id })
	return nil
}

func (s *Store) MaxRemesaNumber(_ context.Context, projectID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.remesas {
		if r.ProjectID == projectID && r.Number > n {
			n = r.Number
		}
	}
	return n, nil
}

func (s *Store) SetRemesaStatus(_ context.Context, id string, status core.Status) error {
	if !status.IsValid() {
		return &core.ValidationError{Field: "status", Err: fmt.Errorf("unknown status %q", status)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.remesaIndex(id)
	if i < 0 {
		return notFound("remesa", id)
	}
	s.remesas[i].Status = status
	return nil
}

// ListUnsyncedPaidRemesas returns paid remesas not yet written to the
// ledger, oldest first.
func (s *Store) ListUnsyncedPaidRemesas(_ context.Context, limit int) ([]core.Remesa, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := filter(append([]core.Remesa(nil), s.remesas...), func(r core.Remesa) bool {
		return r.Status == core.StatusPaid && r.LedgerSyncedAt == nil
	})
	sort.SliceStable(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkLedgerSynced(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.remesaIndex(id)
	if i < 0 {
		return notFound("remesa", id)
	}
	at = at.UTC()
	s.remesas[i].LedgerSyncedAt = &at
	return nil
}

// Items

func sortItems(items []core.RemesaItem) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Section != items[b].Section {
			return items[a].Section < items[b].Section
		}
		return items[a].LineNumber < items[b].LineNumber
	})
}

func (s *Store) ListRemesaItems(_ context.Context, remesaID string) ([]core.RemesaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.remesaIndex(remesaID) < 0 {
		return nil, notFound("remesa", remesaID)
	}
	out := filter(append([]core.RemesaItem(nil), s.items...), func(it core.RemesaItem) bool { return it.RemesaID == remesaID })
	sortItems(out)
	return out, nil
}

func (s *Store) GetRemesaItem(_ context.Context, id string) (core.RemesaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOf(s.items, func(it core.RemesaItem) bool { return it.ID == id })
	if i < 0 {
		return core.RemesaItem{}, notFound("remesa item", id)
	}
	return s.items[i], nil
}

// ReplaceRemesaItems swaps the whole item set of a remesa.
func (s *Store) ReplaceRemesaItems(_ context.Context, remesaID string, items []core.RemesaItem) ([]core.RemesaItem, error) {
	for i, it := range items {
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remesaIndex(remesaID) < 0 {
		return nil, notFound("remesa", remesaID)
	}
	out := make([]core.RemesaItem, len(items))
	for i, it := range items {
		it.ID = core.NewID()
		it.RemesaID = remesaID
		out[i] = it
	}
	s.items = filter(s.items, func(it core.RemesaItem) bool { return it.RemesaID != remesaID })
	s.items = append(s.items, out...)
	return out, nil
}

func (s *Store) AddRemesaItem(_ context.Context, item core.RemesaItem) (core.RemesaItem, error) {
	if item.RemesaID == "" {
		return core.RemesaItem{}, &core.ValidationError{Field: "remesa_id", Err: core.ErrMissingRemesaRef}
	}
	if err := item.Validate(); err != nil {
		return core.RemesaItem{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remesaIndex(item.RemesaID) < 0 {
		return core.RemesaItem{}, notFound("remesa", item.RemesaID)
	}
	item.ID = ensureID(item.ID)
	s.items = append(s.items, item)
	return item, nil
}

func (s *Store) UpdateRemesaItem(_ context.Context, item core.RemesaItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.items, func(it core.RemesaItem) bool { return it.ID == item.ID })
	if i < 0 {
		return notFound("remesa item", item.ID)
	}
	item.RemesaID = s.items[i].RemesaID
	item.Approval = s.items[i].Approval
	s.items[i] = item
	return nil
}

func (s *Store) DeleteRemesaItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.items, func(it core.RemesaItem) bool { return it.ID == id })
	if i < 0 {
		return notFound("remesa item", id)
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return nil
}

func (s *Store) SetItemApproval(_ context.Context, id string, a core.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := indexOf(s.items, func(it core.RemesaItem) bool { return it.ID == id })
	if i < 0 {
		return notFound("remesa item", id)
	}
	if a.ApprovedAt != nil {
		at := a.ApprovedAt.UTC()
		a.ApprovedAt = &at
	}
	s.items[i].Approval = a
	return nil
}

// ListApprovedItems returns approved items across every remesa of the project.
func (s *Store) ListApprovedItems(_ context.Context, projectID string) ([]core.RemesaItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	remesas := map[string]bool{}
	for _, r := range s.remesas {
		if r.ProjectID == projectID {
			remesas[r.ID] = true
		}
	}
	return filter(append([]core.RemesaItem(nil), s.items...), func(it core.RemesaItem) bool {
		return it.Approved && remesas[it.RemesaID]
	}), nil
}
