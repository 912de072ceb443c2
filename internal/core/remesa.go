package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Recompute derives the VAT amount from the VAT percentage, when one is set,
// and the total as amount plus VAT.
func (i *RemesaItem) Recompute() {
	if i.VATPct.GreaterThan(one) {
		i.VATPct = NormalizePct(i.VATPct)
	}
	if !i.VATPct.IsZero() {
		i.VATAmount = Round2(i.Amount.Mul(i.VATPct))
	}
	i.Total = i.Amount.Add(i.VATAmount)
	if i.PaymentType == "" {
		i.PaymentType = i.Section.PaymentType()
	}
}

// DeriveStatus is the only place a remesa status is computed. A draft stays a
// draft until it is sent; afterwards the status follows the approvals:
// all approved is paid, some approved is partially paid, none is sent.
func DeriveStatus(items []RemesaItem, previous Status) Status {
	if previous == StatusDraft || previous == "" {
		return StatusDraft
	}
	if len(items) == 0 {
		return StatusSent
	}
	approved := 0
	for _, it := range items {
		if it.Approved {
			approved++
		}
	}
	switch {
	case approved == len(items):
		return StatusPaid
	case approved > 0:
		return StatusPartiallyPaid
	default:
		return StatusSent
	}
}

// Renumber assigns 1-based line numbers per section, keeping the existing
// relative order of the items inside each section. Items with an unset
// section are placed in section A.
func Renumber(items []RemesaItem) {
	counters := map[Section]int{}
	for i := range items {
		if items[i].Section == "" {
			items[i].Section = SectionTransfer
		}
		counters[items[i].Section]++
		items[i].LineNumber = counters[items[i].Section]
	}
}

// NextLineNumber is the line number a new item appended to section gets.
func NextLineNumber(items []RemesaItem, section Section) int {
	n := 0
	for _, it := range items {
		if it.Section == section {
			n++
		}
	}
	return n + 1
}

// TotalOf sums item totals.
func TotalOf(items []RemesaItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Total)
	}
	return total
}

// Subtotals are the amount, VAT and total columns summed over one section.
type Subtotals struct {
	Amount decimal.Decimal `json:"amount"`
	VAT    decimal.Decimal `json:"vat"`
	Total  decimal.Decimal `json:"total"`
}

func (s Subtotals) add(o Subtotals) Subtotals {
	return Subtotals{Amount: s.Amount.Add(o.Amount), VAT: s.VAT.Add(o.VAT), Total: s.Total.Add(o.Total)}
}

// SectionItems returns the items of one section ordered by line number.
// Ties keep their input order.
func SectionItems(items []RemesaItem, section Section) []RemesaItem {
	var out []RemesaItem
	for _, it := range items {
		if it.Section == section {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].LineNumber < out[b].LineNumber })
	return out
}

// SumSection totals one section of a remesa.
func SumSection(items []RemesaItem, section Section) Subtotals {
	s := Subtotals{Amount: decimal.Zero, VAT: decimal.Zero, Total: decimal.Zero}
	for _, it := range items {
		if it.Section != section {
			continue
		}
		s = s.add(Subtotals{Amount: it.Amount, VAT: it.VATAmount, Total: it.Total})
	}
	return s
}

// SumAll totals both sections.
func SumAll(items []RemesaItem) Subtotals {
	return SumSection(items, SectionTransfer).add(SumSection(items, SectionCheck))
}
