package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Synthetic buckets for budget lines and payments without a usable reference.
const (
	UncategorizedID   = "uncategorized"
	UncategorizedName = "Sin categoría"
	NoConceptID       = "no-concept"
	NoConceptName     = "Sin concepto"
	ExtrasID          = "extras"
	ExtrasName        = "Extras"
	NoContractorID    = "no-contractor"
	NoContractorName  = "Sin proveedor"
)

// ConceptNode is the second level of the budget tree.
type ConceptNode struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Total decimal.Decimal `json:"total"`
	Items []BudgetItem    `json:"items"`
}

// CategoryNode groups concept nodes and keeps their first-seen order.
type CategoryNode struct {
	ID       string                  `json:"id"`
	Name     string                  `json:"name"`
	Total    decimal.Decimal         `json:"total"`
	Concepts map[string]*ConceptNode `json:"concepts"`
	order    []string
}

// ConceptList returns the concept nodes in first-seen order.
func (c *CategoryNode) ConceptList() []*ConceptNode {
	out := make([]*ConceptNode, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.Concepts[id])
	}
	return out
}

// BudgetTree is the category -> concept -> item view of a project budget,
// totalled in the base currency.
type BudgetTree struct {
	Categories []*CategoryNode `json:"categories"`
	GrandTotal decimal.Decimal `json:"grand_total"`
	itemsTotal decimal.Decimal
}

func groupKey(id, name, fallbackID string) (string, string) {
	switch {
	case id != "":
		return id, name
	case Fold(name) != "":
		return "name:" + Fold(name), name
	default:
		return fallbackID, ""
	}
}

// BuildBudgetTree groups items by category and concept. Items without a
// category land in the "Sin categoría" bucket and items without a concept in
// "Sin concepto", so no amount is ever dropped.
func BuildBudgetTree(items []BudgetItem) *BudgetTree {
	tree := &BudgetTree{GrandTotal: decimal.Zero, itemsTotal: decimal.Zero}
	index := map[string]*CategoryNode{}

	for _, it := range items {
		catKey, catName := groupKey(it.CategoryID, it.CategoryName, UncategorizedID)
		if catKey == UncategorizedID {
			catName = UncategorizedName
		}
		cat, ok := index[catKey]
		if !ok {
			cat = &CategoryNode{ID: catKey, Name: catName, Total: decimal.Zero, Concepts: map[string]*ConceptNode{}}
			index[catKey] = cat
			tree.Categories = append(tree.Categories, cat)
		}

		conKey, conName := groupKey(it.ConceptID, it.ConceptName, NoConceptID)
		if conKey == NoConceptID {
			conName = NoConceptName
		}
		con, ok := cat.Concepts[conKey]
		if !ok {
			con = &ConceptNode{ID: conKey, Name: conName, Total: decimal.Zero}
			cat.Concepts[conKey] = con
			cat.order = append(cat.order, conKey)
		}

		con.Items = append(con.Items, it)
		con.Total = con.Total.Add(it.TotalMXN)
		cat.Total = cat.Total.Add(it.TotalMXN)
		tree.GrandTotal = tree.GrandTotal.Add(it.TotalMXN)
		tree.itemsTotal = tree.itemsTotal.Add(it.TotalMXN)
	}
	return tree
}

// Verify checks that the grand total equals the sum of category totals,
// each category total equals the sum of its concepts, and everything equals
// the sum of the grouped items.
func (t *BudgetTree) Verify() error {
	sumCats := decimal.Zero
	for _, cat := range t.Categories {
		sumCons := decimal.Zero
		for _, con := range cat.ConceptList() {
			sumItems := decimal.Zero
			for _, it := range con.Items {
				sumItems = sumItems.Add(it.TotalMXN)
			}
			if !sumItems.Equal(con.Total) {
				return fmt.Errorf("concept %q total %s != items %s", con.Name, con.Total, sumItems)
			}
			sumCons = sumCons.Add(con.Total)
		}
		if !sumCons.Equal(cat.Total) {
			return fmt.Errorf("category %q total %s != concepts %s", cat.Name, cat.Total, sumCons)
		}
		sumCats = sumCats.Add(cat.Total)
	}
	if !sumCats.Equal(t.GrandTotal) {
		return fmt.Errorf("grand total %s != categories %s", t.GrandTotal, sumCats)
	}
	if !t.itemsTotal.Equal(t.GrandTotal) {
		return fmt.Errorf("grand total %s != items %s", t.GrandTotal, t.itemsTotal)
	}
	return nil
}

// BudgetLine is the budget, paid and available figures for one category or
// one concept.
type BudgetLine struct {
	CategoryID   string          `json:"category_id"`
	CategoryName string          `json:"category_name"`
	ConceptID    string          `json:"concept_id,omitempty"`
	ConceptName  string          `json:"concept_name,omitempty"`
	Budget       decimal.Decimal `json:"budget"`
	Paid         decimal.Decimal `json:"paid"`
	Available    decimal.Decimal `json:"available"`
}

// OverBudget is true when more was paid than budgeted.
func (l BudgetLine) OverBudget() bool {
	return l.Available.IsNegative()
}

// BudgetVsPaid compares the budget of each category and concept against
// the approved remesa items charged to it.
type BudgetVsPaid struct {
	Categories     []BudgetLine    `json:"categories"`
	Concepts       []BudgetLine    `json:"concepts"`
	Extras         BudgetLine      `json:"extras"`
	TotalBudget    decimal.Decimal `json:"total_budget"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	TotalAvailable decimal.Decimal `json:"total_available"`

	byCategory   map[string]int
	byConcept    map[string]int
	categoryName map[string]string
	conceptName  map[string]string
}

func newLine(catID, catName string) BudgetLine {
	return BudgetLine{CategoryID: catID, CategoryName: catName, Budget: decimal.Zero, Paid: decimal.Zero, Available: decimal.Zero}
}

// ComputeBudgetVsPaid builds the comparison. Matching is by identifier; an
// item that carries only a category or concept name (rows written before
// identifiers existed) is matched by folded name as a fallback. Approved items
// that match no category are collected under Extras, which has no budget.
// Items that are not approved are ignored.
func ComputeBudgetVsPaid(categories []Category, concepts []Concept, budget []BudgetItem, items []RemesaItem) *BudgetVsPaid {
	v := &BudgetVsPaid{
		Extras:       newLine(ExtrasID, ExtrasName),
		byCategory:   map[string]int{},
		byConcept:    map[string]int{},
		categoryName: map[string]string{},
		conceptName:  map[string]string{},
	}
	catNames := map[string]string{}
	for _, c := range categories {
		v.byCategory[c.ID] = len(v.Categories)
		v.categoryName[Fold(c.Name)] = c.ID
		catNames[c.ID] = c.Name
		v.Categories = append(v.Categories, newLine(c.ID, c.Name))
	}
	for _, c := range concepts {
		v.byConcept[c.ID] = len(v.Concepts)
		v.conceptName[c.CategoryID+"\x00"+Fold(c.Name)] = c.ID
		line := newLine(c.CategoryID, catNames[c.CategoryID])
		line.ConceptID, line.ConceptName = c.ID, c.Name
		v.Concepts = append(v.Concepts, line)
	}

	for _, b := range budget {
		catIdx, ok := v.resolveCategory(b.CategoryID, b.CategoryName)
		if !ok {
			key, name := groupKey(b.CategoryID, b.CategoryName, UncategorizedID)
			if key == UncategorizedID {
				name = UncategorizedName
			}
			if _, seen := v.byCategory[key]; !seen {
				v.byCategory[key] = len(v.Categories)
				v.Categories = append(v.Categories, newLine(key, name))
			}
			catIdx = v.byCategory[key]
		}
		v.Categories[catIdx].Budget = v.Categories[catIdx].Budget.Add(b.TotalMXN)
		if conIdx, ok := v.resolveConcept(v.Categories[catIdx].CategoryID, b.ConceptID, b.ConceptName); ok {
			v.Concepts[conIdx].Budget = v.Concepts[conIdx].Budget.Add(b.TotalMXN)
		}
	}

	for _, it := range items {
		if !it.Approved {
			continue
		}
		catIdx, ok := v.resolveCategory(it.CategoryID, it.CategoryName)
		if !ok {
			v.Extras.Paid = v.Extras.Paid.Add(it.Total)
			continue
		}
		v.Categories[catIdx].Paid = v.Categories[catIdx].Paid.Add(it.Total)
		if conIdx, ok := v.resolveConcept(v.Categories[catIdx].CategoryID, it.ConceptID, it.ConceptName); ok {
			v.Concepts[conIdx].Paid = v.Concepts[conIdx].Paid.Add(it.Total)
		}
	}

	v.TotalBudget, v.TotalPaid = decimal.Zero, v.Extras.Paid
	for i := range v.Categories {
		l := &v.Categories[i]
		l.Available = Round2(l.Budget.Sub(l.Paid))
		v.TotalBudget = v.TotalBudget.Add(l.Budget)
		v.TotalPaid = v.TotalPaid.Add(l.Paid)
	}
	for i := range v.Concepts {
		v.Concepts[i].Available = Round2(v.Concepts[i].Budget.Sub(v.Concepts[i].Paid))
	}
	v.Extras.Available = v.Extras.Paid.Neg()
	v.TotalAvailable = Round2(v.TotalBudget.Sub(v.TotalPaid))
	return v
}

func (v *BudgetVsPaid) resolveCategory(id, name string) (int, bool) {
	if id != "" {
		idx, ok := v.byCategory[id]
		return idx, ok
	}
	if catID, ok := v.categoryName[Fold(name)]; ok && Fold(name) != "" {
		return v.byCategory[catID], true
	}
	if idx, ok := v.byCategory["name:"+Fold(name)]; ok && Fold(name) != "" {
		return idx, true
	}
	return 0, false
}

func (v *BudgetVsPaid) resolveConcept(categoryID, id, name string) (int, bool) {
	if id != "" {
		idx, ok := v.byConcept[id]
		return idx, ok
	}
	if conID, ok := v.conceptName[categoryID+"\x00"+Fold(name)]; ok && Fold(name) != "" {
		return v.byConcept[conID], true
	}
	return 0, false
}

// Lookup returns the concept line when the concept is known, otherwise the
// category line.
func (v *BudgetVsPaid) Lookup(categoryID, conceptID string) (BudgetLine, bool) {
	if v == nil {
		return BudgetLine{}, false
	}
	if conceptID != "" {
		if idx, ok := v.byConcept[conceptID]; ok {
			return v.Concepts[idx], true
		}
	}
	if categoryID != "" {
		if idx, ok := v.byCategory[categoryID]; ok {
			return v.Categories[idx], true
		}
	}
	return BudgetLine{}, false
}

// Category returns the line of one category.
func (v *BudgetVsPaid) Category(categoryID string) (BudgetLine, bool) {
	idx, ok := v.byCategory[categoryID]
	if !ok {
		return BudgetLine{}, false
	}
	return v.Categories[idx], true
}

// ContractorTotal is what a project has paid one contractor.
type ContractorTotal struct {
	ContractorID   string          `json:"contractor_id"`
	ContractorName string          `json:"contractor_name"`
	Amount         decimal.Decimal `json:"amount"`
	VATAmount      decimal.Decimal `json:"vat_amount"`
	Total          decimal.Decimal `json:"total"`
	Count          int             `json:"count"`
}

// PaidByContractor totals approved items per contractor, largest total
// first. Items without a contractor id are grouped by folded name, and items
// with neither land under NoContractorName.
func PaidByContractor(items []RemesaItem) []ContractorTotal {
	index := map[string]int{}
	var out []ContractorTotal
	for _, it := range items {
		if !it.Approved {
			continue
		}
		key, name := groupKey(it.ContractorID, it.ContractorName, NoContractorID)
		if key == NoContractorID {
			name = NoContractorName
		}
		i, seen := index[key]
		if !seen {
			i = len(out)
			index[key] = i
			out = append(out, ContractorTotal{ContractorName: name, Amount: decimal.Zero, VATAmount: decimal.Zero, Total: decimal.Zero})
			if it.ContractorID != "" || key == NoContractorID {
				out[i].ContractorID = key
			}
		}
		t := &out[i]
		t.Amount = t.Amount.Add(it.Amount)
		t.VATAmount = t.VATAmount.Add(it.VATAmount)
		t.Total = t.Total.Add(it.Total)
		t.Count++
	}
	sort.SliceStable(out, func(a, b int) bool {
		if c := out[a].Total.Cmp(out[b].Total); c != 0 {
			return c > 0
		}
		return Fold(out[a].ContractorName) < Fold(out[b].ContractorName)
	})
	return out
}
