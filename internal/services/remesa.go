package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"remesas/internal/core"
	"remesas/internal/ports"
)

// EventPublisher delivers status changes to whoever mirrors paid remesas.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, ev core.StatusChange) error
}

// RemesaService composes remesas and tracks their payment state. Every write
// that can move the status goes through settle, which runs under a per
// remesa lock and derives the status from the freshly read items.
type RemesaService struct {
	store     ports.Store
	publisher EventPublisher
	locks     *keyedMutex
	onChange  func(projectID string)
	now       func() time.Time
}

// NewRemesaService builds the service. publisher may be nil.
func NewRemesaService(store ports.Store, publisher EventPublisher) *RemesaService {
	return &RemesaService{
		store:     store,
		publisher: publisher,
		locks:     newKeyedMutex(),
		onChange:  func(string) {},
		now:       time.Now,
	}
}

// OnChange registers fn to run after writes that alter what was paid.
func (s *RemesaService) OnChange(fn func(projectID string)) {
	if fn != nil {
		s.onChange = fn
	}
}

// NewRemesa is the header of a remesa to create. A Number of 0 takes the
// next free number of the project.
type NewRemesa struct {
	ProjectID       string    `json:"project_id"`
	Number          int       `json:"remesa_number"`
	Suffix          string    `json:"remesa_suffix"`
	Date            time.Time `json:"date"`
	WeekDescription string    `json:"week_description"`
	CreatedBy       string    `json:"created_by"`
}

// RemesaDetail is a remesa with its items in section and line order.
type RemesaDetail struct {
	core.Remesa
	Items     []core.RemesaItem `json:"items"`
	Transfers core.Subtotals    `json:"transfers"`
	Checks    core.Subtotals    `json:"checks"`
	Grand     core.Subtotals    `json:"grand_total"`
}

// NextNumber is one past the highest remesa number of the project.
func (s *RemesaService) NextNumber(ctx context.Context, projectID string) (int, error) {
	n, err := s.store.MaxRemesaNumber(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("next remesa number: %w", err)
	}
	return n + 1, nil
}

// Create stores a new draft remesa.
func (s *RemesaService) Create(ctx context.Context, in NewRemesa) (core.Remesa, error) {
	if _, err := s.store.GetProject(ctx, in.ProjectID); err != nil {
		return core.Remesa{}, fmt.Errorf("create remesa: %w", err)
	}
	number := in.Number
	if number <= 0 {
		next, err := s.NextNumber(ctx, in.ProjectID)
		if err != nil {
			return core.Remesa{}, err
		}
		number = next
	}
	date := in.Date
	if date.IsZero() {
		date = s.now()
	}
	r, err := s.store.CreateRemesa(ctx, core.Remesa{
		ProjectID:       in.ProjectID,
		Number:          number,
		Suffix:          strings.TrimSpace(in.Suffix),
		Date:            core.DateOnly(date),
		WeekDescription: strings.TrimSpace(in.WeekDescription),
		CreatedBy:       strings.TrimSpace(in.CreatedBy),
		Status:          core.StatusDraft,
	})
	if err != nil {
		return core.Remesa{}, fmt.Errorf("create remesa: %w", err)
	}
	slog.InfoContext(ctx, "Remesa created",
		"component", "remesa", "project_id", r.ProjectID, "remesa_id", r.ID, "remesa", r.Label())
	return r, nil
}

func (s *RemesaService) Get(ctx context.Context, id string) (core.Remesa, error) {
	return s.store.GetRemesa(ctx, id)
}

func (s *RemesaService) List(ctx context.Context, projectID string) ([]core.Remesa, error) {
	return s.store.ListRemesas(ctx, projectID)
}

// Detail loads a remesa, its items and the section subtotals.
func (s *RemesaService) Detail(ctx context.Context, id string) (*RemesaDetail, error) {
	r, err := s.store.GetRemesa(ctx, id)
	if err != nil {
		return nil, err
	}
	items, err := s.store.ListRemesaItems(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("remesa items: %w", err)
	}
	return &RemesaDetail{
		Remesa:    r,
		Items:     items,
		Transfers: core.SumSection(items, core.SectionTransfer),
		Checks:    core.SumSection(items, core.SectionCheck),
		Grand:     core.SumAll(items),
	}, nil
}

// UpdateHeader changes number, suffix, date, week and author. A zero number,
// an empty suffix or a zero date keep the stored value. The total and the
// status are derived and cannot be set here.
func (s *RemesaService) UpdateHeader(ctx context.Context, r core.Remesa) (core.Remesa, error) {
	unlock := s.locks.Lock(r.ID)
	defer unlock()

	current, err := s.store.GetRemesa(ctx, r.ID)
	if err != nil {
		return core.Remesa{}, fmt.Errorf("update remesa: %w", err)
	}
	if r.Number > 0 {
		current.Number = r.Number
	}
	if suffix := strings.TrimSpace(r.Suffix); suffix != "" {
		current.Suffix = suffix
	}
	if !r.Date.IsZero() {
		current.Date = core.DateOnly(r.Date)
	}
	current.WeekDescription = strings.TrimSpace(r.WeekDescription)
	current.CreatedBy = strings.TrimSpace(r.CreatedBy)
	if err := s.store.UpdateRemesa(ctx, current); err != nil {
		return core.Remesa{}, fmt.Errorf("update remesa: %w", err)
	}
	return s.store.GetRemesa(ctx, r.ID)
}

func (s *RemesaService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	r, err := s.store.GetRemesa(ctx, id)
	if err != nil {
		return fmt.Errorf("delete remesa: %w", err)
	}
	if err := s.store.DeleteRemesa(ctx, id); err != nil {
		return fmt.Errorf("delete remesa: %w", err)
	}
	s.onChange(r.ProjectID)
	slog.InfoContext(ctx, "Remesa deleted", "component", "remesa", "remesa_id", id, "remesa", r.Label())
	return nil
}

// prepareItems recomputes every item and numbers them per section, keeping
// the caller's order inside a section.
func prepareItems(items []core.RemesaItem) []core.RemesaItem {
	out := make([]core.RemesaItem, len(items))
	copy(out, items)
	for i := range out {
		if out[i].Section == "" {
			out[i].Section = core.SectionTransfer
		}
		out[i].Recompute()
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Section < out[b].Section })
	core.Renumber(out)
	return out
}

// ReplaceItems swaps the whole item set, renumbering lines and recomputing
// VAT, totals and the remesa total. Approvals are never taken from items: an
// item whose ID names a stored item of this remesa keeps that item's
// approval, every other item starts unapproved. All items get new IDs.
func (s *RemesaService) ReplaceItems(ctx context.Context, remesaID string, items []core.RemesaItem) (*RemesaDetail, error) {
	unlock := s.locks.Lock(remesaID)
	defer unlock()

	stored, err := s.store.ListRemesaItems(ctx, remesaID)
	if err != nil {
		return nil, fmt.Errorf("replace items: %w", err)
	}
	approvals := make(map[string]core.Approval, len(stored))
	for _, it := range stored {
		approvals[it.ID] = it.Approval
	}
	next := prepareItems(items)
	for i := range next {
		next[i].Approval = approvals[next[i].ID]
		next[i].ID = ""
		next[i].RemesaID = remesaID
	}

	if _, err := s.store.ReplaceRemesaItems(ctx, remesaID, next); err != nil {
		return nil, fmt.Errorf("replace items: %w", err)
	}
	if err := s.settle(ctx, remesaID); err != nil {
		return nil, err
	}
	return s.Detail(ctx, remesaID)
}

// AddItem appends one item at the end of its section.
func (s *RemesaService) AddItem(ctx context.Context, item core.RemesaItem) (core.RemesaItem, error) {
	if item.RemesaID == "" {
		return core.RemesaItem{}, &core.ValidationError{Field: "remesa_id", Err: core.ErrMissingRemesaRef}
	}
	unlock := s.locks.Lock(item.RemesaID)
	defer unlock()

	existing, err := s.store.ListRemesaItems(ctx, item.RemesaID)
	if err != nil {
		return core.RemesaItem{}, fmt.Errorf("add item: %w", err)
	}
	if item.Section == "" {
		item.Section = core.SectionTransfer
	}
	item.LineNumber = core.NextLineNumber(existing, item.Section)
	item.Approval = core.Approval{}
	item.Recompute()
	created, err := s.store.AddRemesaItem(ctx, item)
	if err != nil {
		return core.RemesaItem{}, fmt.Errorf("add item: %w", err)
	}
	if err := s.settle(ctx, item.RemesaID); err != nil {
		return core.RemesaItem{}, err
	}
	return created, nil
}

// UpdateItem rewrites an item's content. Its approval is untouched.
func (s *RemesaService) UpdateItem(ctx context.Context, item core.RemesaItem) (core.RemesaItem, error) {
	current, err := s.store.GetRemesaItem(ctx, item.ID)
	if err != nil {
		return core.RemesaItem{}, fmt.Errorf("update item: %w", err)
	}
	unlock := s.locks.Lock(current.RemesaID)
	defer unlock()

	item.RemesaID = current.RemesaID
	if item.Section == "" {
		item.Section = current.Section
	}
	if item.LineNumber == 0 {
		item.LineNumber = current.LineNumber
	}
	item.Recompute()
	if err := s.store.UpdateRemesaItem(ctx, item); err != nil {
		return core.RemesaItem{}, fmt.Errorf("update item: %w", err)
	}
	if err := s.settle(ctx, current.RemesaID); err != nil {
		return core.RemesaItem{}, err
	}
	return s.store.GetRemesaItem(ctx, item.ID)
}

// DeleteItem removes an item and closes the gap in its section numbering.
func (s *RemesaService) DeleteItem(ctx context.Context, id string) error {
	current, err := s.store.GetRemesaItem(ctx, id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	unlock := s.locks.Lock(current.RemesaID)
	defer unlock()

	if err := s.store.DeleteRemesaItem(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	rest, err := s.store.ListRemesaItems(ctx, current.RemesaID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	for i, it := range core.SectionItems(rest, current.Section) {
		if it.LineNumber != i+1 {
			it.LineNumber = i + 1
			if err := s.store.UpdateRemesaItem(ctx, it); err != nil {
				return fmt.Errorf("renumber items: %w", err)
			}
		}
	}
	return s.settle(ctx, current.RemesaID)
}

// Send moves a draft to the sent family of statuses. Items approved while
// still a draft count straight away.
func (s *RemesaService) Send(ctx context.Context, remesaID string) (core.Remesa, error) {
	unlock := s.locks.Lock(remesaID)
	defer unlock()

	r, err := s.store.GetRemesa(ctx, remesaID)
	if err != nil {
		return core.Remesa{}, fmt.Errorf("send remesa: %w", err)
	}
	if r.Status != core.StatusDraft {
		return core.Remesa{}, fmt.Errorf("send remesa %s: %w", r.Label(), core.ErrRemesaNotDraft)
	}
	items, err := s.store.ListRemesaItems(ctx, remesaID)
	if err != nil {
		return core.Remesa{}, fmt.Errorf("send remesa: %w", err)
	}
	if len(items) == 0 {
		return core.Remesa{}, fmt.Errorf("send remesa %s: %w", r.Label(), core.ErrNoItems)
	}
	if err := s.transition(ctx, r, core.DeriveStatus(items, core.StatusSent)); err != nil {
		return core.Remesa{}, err
	}
	return s.store.GetRemesa(ctx, remesaID)
}

// Approve stamps an item as paid by approver today.
func (s *RemesaService) Approve(ctx context.Context, itemID, approver string) (core.RemesaItem, error) {
	return s.ApproveOn(ctx, itemID, approver, time.Time{})
}

// ApproveOn stamps an item as paid by approver on paidOn. A zero paidOn
// means now.
func (s *RemesaService) ApproveOn(ctx context.Context, itemID, approver string, paidOn time.Time) (core.RemesaItem, error) {
	return s.setApproval(ctx, itemID, s.stamp(true, approver, paidOn))
}

// Unapprove clears the payment stamp of an item.
func (s *RemesaService) Unapprove(ctx context.Context, itemID string) (core.RemesaItem, error) {
	return s.setApproval(ctx, itemID, core.Approval{})
}

func (s *RemesaService) setApproval(ctx context.Context, itemID string, a core.Approval) (core.RemesaItem, error) {
	item, err := s.store.GetRemesaItem(ctx, itemID)
	if err != nil {
		return core.RemesaItem{}, fmt.Errorf("approve item: %w", err)
	}
	unlock := s.locks.Lock(item.RemesaID)
	defer unlock()

	if err := s.store.SetItemApproval(ctx, itemID, a); err != nil {
		return core.RemesaItem{}, fmt.Errorf("approve item: %w", err)
	}
	if err := s.settle(ctx, item.RemesaID); err != nil {
		return core.RemesaItem{}, err
	}
	slog.InfoContext(ctx, "Item approval changed",
		"component", "remesa", "remesa_id", item.RemesaID, "item_id", itemID, "approved", a.Approved, "by", a.ApprovedBy)
	return s.store.GetRemesaItem(ctx, itemID)
}

// stamp builds an approval. A chosen payment date is kept as a date; without
// one the current instant is used.
func (s *RemesaService) stamp(approved bool, approver string, paidOn time.Time) core.Approval {
	if !approved {
		return core.Approval{}
	}
	at := s.now().UTC()
	if !paidOn.IsZero() {
		at = core.DateOnly(paidOn)
	}
	return core.Approval{Approved: true, ApprovedAt: &at, ApprovedBy: strings.TrimSpace(approver)}
}

// ApproveAll approves every pending item today. See ApproveAllOn.
func (s *RemesaService) ApproveAll(ctx context.Context, remesaID, approver string) (*RemesaDetail, error) {
	return s.ApproveAllOn(ctx, remesaID, approver, time.Time{})
}

// ApproveAllOn approves every pending item in line order, stamped with
// paidOn (zero means now). It stops at the first failure and returns a
// PartialError naming how many were approved; the status is derived from
// whatever was applied either way.
func (s *RemesaService) ApproveAllOn(ctx context.Context, remesaID, approver string, paidOn time.Time) (*RemesaDetail, error) {
	unlock := s.locks.Lock(remesaID)
	defer unlock()

	items, err := s.store.ListRemesaItems(ctx, remesaID)
	if err != nil {
		return nil, fmt.Errorf("approve all: %w", err)
	}
	var pending []core.RemesaItem
	for _, it := range items {
		if !it.Approved {
			pending = append(pending, it)
		}
	}

	var stepErr error
	applied := 0
	for _, it := range pending {
		if err := ctx.Err(); err != nil {
			stepErr = err
			break
		}
		if err := s.store.SetItemApproval(ctx, it.ID, s.stamp(true, approver, paidOn)); err != nil {
			stepErr = fmt.Errorf("item %s: %w", it.ID, err)
			break
		}
		applied++
	}

	if err := s.settle(ctx, remesaID); err != nil && stepErr == nil {
		stepErr = err
	}
	if stepErr != nil {
		slog.ErrorContext(ctx, "Approve all stopped",
			"component", "remesa", "remesa_id", remesaID, "applied", applied, "total", len(pending), "error", stepErr)
		return nil, &PartialError{Op: "approve all", Applied: applied, Total: len(pending), Err: stepErr}
	}
	return s.Detail(ctx, remesaID)
}

// settle recomputes the remesa total and status from the stored items. The
// caller holds the remesa lock.
func (s *RemesaService) settle(ctx context.Context, remesaID string) error {
	r, err := s.store.GetRemesa(ctx, remesaID)
	if err != nil {
		return fmt.Errorf("settle remesa: %w", err)
	}
	items, err := s.store.ListRemesaItems(ctx, remesaID)
	if err != nil {
		return fmt.Errorf("settle remesa: %w", err)
	}
	if total := core.TotalOf(items); !total.Equal(r.Total) {
		r.Total = total
		if err := s.store.UpdateRemesa(ctx, r); err != nil {
			return fmt.Errorf("update remesa total: %w", err)
		}
	}
	s.onChange(r.ProjectID)
	return s.transition(ctx, r, core.DeriveStatus(items, r.Status))
}

// transition stores next when it differs from the current status and
// announces the change.
func (s *RemesaService) transition(ctx context.Context, r core.Remesa, next core.Status) error {
	if next == r.Status {
		return nil
	}
	if err := s.store.SetRemesaStatus(ctx, r.ID, next); err != nil {
		return fmt.Errorf("set remesa status: %w", err)
	}
	slog.InfoContext(ctx, "Remesa status changed",
		"component", "remesa", "remesa_id", r.ID, "remesa", r.Label(), "from", r.Status, "to", next)
	s.publish(ctx, core.StatusChange{
		RemesaID:  r.ID,
		ProjectID: r.ProjectID,
		Number:    r.Number,
		Suffix:    r.Suffix,
		Previous:  r.Status,
		Status:    next,
		At:        s.now().UTC(),
	})
	return nil
}

func (s *RemesaService) publish(ctx context.Context, ev core.StatusChange) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Event publisher not available, skipping status event", "remesa_id", ev.RemesaID)
		return
	}
	// The status is already stored; a lost event is recovered by the
	// worker's periodic pass.
	if err := s.publisher.PublishStatusChanged(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish status event", "remesa_id", ev.RemesaID, "error", err)
	}
}
