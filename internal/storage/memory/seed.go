package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// DemoProjectID is the id of the seeded sample project.
const DemoProjectID = "demo-casa-lomas"

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// NewDemo returns a store with the fixed sample project used in demo mode.
func NewDemo(ctx context.Context) (*Store, error) {
	s := New()
	if err := Seed(ctx, s, time.Date(2025, time.October, 6, 0, 0, 0, 0, time.UTC)); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed loads a sample project: categories and concepts, contractors, a small
// budget with one USD line, an exchange rate and one sent remesa with one
// approved item.
func Seed(ctx context.Context, s *Store, day time.Time) error {
	p, err := s.CreateProject(ctx, core.Project{
		ID:        DemoProjectID,
		Name:      "Casa Lomas del Valle",
		OwnerName: "Ing. Roberto Garza",
		Address:   "Av. Lomas 120, San Pedro Garza García, N.L.",
		CreatedAt: day,
	})
	if err != nil {
		return fmt.Errorf("seed project: %w", err)
	}

	catalog := []struct {
		category string
		concepts []string
	}{
		{"Obra negra", []string{"Cimentación", "Muros"}},
		{"Instalaciones", []string{"Eléctrica", "Hidráulica"}},
		{"Acabados", []string{"Pisos"}},
	}
	cats := map[string]core.Category{}
	cons := map[string]core.Concept{}
	for _, entry := range catalog {
		c, err := s.CreateCategory(ctx, core.Category{ProjectID: p.ID, Name: entry.category})
		if err != nil {
			return fmt.Errorf("seed category: %w", err)
		}
		cats[entry.category] = c
		for _, name := range entry.concepts {
			con, err := s.CreateConcept(ctx, core.Concept{CategoryID: c.ID, Name: name})
			if err != nil {
				return fmt.Errorf("seed concept: %w", err)
			}
			cons[name] = con
		}
	}

	contractors := []core.Contractor{
		{ProjectID: p.ID, Name: "Aceros del Norte, S.A. de C.V.", Bank: "BBVA", AccountNumber: "0123456789", CLABE: "012580001234567891"},
		{ProjectID: p.ID, Name: "Instalaciones Garza", Bank: "Banorte", AccountNumber: "0987654321", CLABE: "072580009876543210"},
		{ProjectID: p.ID, Name: "Juan Pérez (albañilería)"},
	}
	for i := range contractors {
		c, err := s.CreateContractor(ctx, contractors[i])
		if err != nil {
			return fmt.Errorf("seed contractor: %w", err)
		}
		contractors[i] = c
	}

	if _, err := s.CreateExchangeRate(ctx, core.ExchangeRate{Date: day, Currency: core.USD, Rate: d("17.50")}); err != nil {
		return fmt.Errorf("seed exchange rate: %w", err)
	}

	budgetLine := func(cat, con, detail string, qty, price string, currency core.Currency) core.BudgetItem {
		b := core.BudgetItem{
			ProjectID:    p.ID,
			CategoryID:   cats[cat].ID,
			CategoryName: cat,
			ConceptID:    cons[con].ID,
			ConceptName:  con,
			Detail:       detail,
			Quantity:     d(qty),
			UnitPrice:    d(price),
			Currency:     currency,
			VATPct:       d("0.16"),
		}
		if currency == core.USD {
			b.ExchangeRate = d("17.50")
		}
		b.Recompute()
		return b
	}
	if _, err := s.CreateBudgetItems(ctx, []core.BudgetItem{
		budgetLine("Obra negra", "Cimentación", "Zapatas corridas", "12", "4500", core.MXN),
		budgetLine("Obra negra", "Muros", "Block 15x20x40", "850", "38", core.MXN),
		budgetLine("Instalaciones", "Eléctrica", "Cableado y centros de carga", "1", "65000", core.MXN),
		budgetLine("Instalaciones", "Hidráulica", "Tubería PPR", "1", "42000", core.MXN),
		budgetLine("Acabados", "Pisos", "Porcelanato importado", "180", "32", core.USD),
	}); err != nil {
		return fmt.Errorf("seed budget: %w", err)
	}

	r, err := s.CreateRemesa(ctx, core.Remesa{
		ProjectID:       p.ID,
		Number:          1,
		Suffix:          core.DefaultSuffix,
		Date:            day,
		WeekDescription: "Semana 41",
		CreatedBy:       "Arq. Laura Treviño",
		CreatedAt:       day,
	})
	if err != nil {
		return fmt.Errorf("seed remesa: %w", err)
	}
	item := func(section core.Section, c core.Contractor, cat, con, desc, amount string) core.RemesaItem {
		it := core.RemesaItem{
			Section:        section,
			CategoryID:     cats[cat].ID,
			CategoryName:   cat,
			ConceptID:      cons[con].ID,
			ConceptName:    con,
			ContractorID:   c.ID,
			ContractorName: c.Name,
			Description:    desc,
			Amount:         d(amount),
			Bank:           c.Bank,
			AccountNumber:  c.AccountNumber,
			CLABE:          c.CLABE,
		}
		if section == core.SectionTransfer {
			it.VATPct = d("0.16")
		}
		it.Recompute()
		return it
	}
	items := []core.RemesaItem{
		item(core.SectionTransfer, contractors[0], "Obra negra", "Cimentación", "Varilla 3/8 para zapatas", "18500"),
		item(core.SectionTransfer, contractors[1], "Instalaciones", "Eléctrica", "Anticipo instalación eléctrica", "20000"),
		item(core.SectionCheck, contractors[2], "Obra negra", "Muros", "Raya semana 41", "9800"),
	}
	core.Renumber(items)
	stored, err := s.ReplaceRemesaItems(ctx, r.ID, items)
	if err != nil {
		return fmt.Errorf("seed remesa items: %w", err)
	}
	r.Total = core.TotalOf(stored)
	if err := s.UpdateRemesa(ctx, r); err != nil {
		return fmt.Errorf("seed remesa total: %w", err)
	}

	at := day.Add(48 * time.Hour)
	if err := s.SetItemApproval(ctx, stored[0].ID, core.Approval{Approved: true, ApprovedAt: &at, ApprovedBy: "Ing. Roberto Garza"}); err != nil {
		return fmt.Errorf("seed approval: %w", err)
	}
	stored[0].Approved = true
	if err := s.SetRemesaStatus(ctx, r.ID, core.DeriveStatus(stored, core.StatusSent)); err != nil {
		return fmt.Errorf("seed status: %w", err)
	}
	return nil
}
