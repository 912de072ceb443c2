package memory

import (
	"context"
	"testing"

	"remesas/internal/core"
	"remesas/internal/ports"
	"remesas/internal/storage/storetest"
)

func TestStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store { return New() })
}

func TestDemoSeed(t *testing.T) {
	ctx := context.Background()
	s, err := NewDemo(ctx)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	p, err := s.GetProject(ctx, DemoProjectID)
	if err != nil {
		t.Fatalf("demo project: %v", err)
	}
	cats, _ := s.ListCategories(ctx, p.ID)
	if len(cats) != 3 {
		t.Fatalf("categories = %d, want 3", len(cats))
	}
	budget, _ := s.ListBudgetItems(ctx, p.ID)
	for _, b := range budget {
		if err := b.CheckConsistency(); err != nil {
			t.Errorf("seeded budget line drifts: %v", err)
		}
	}

	remesas, _ := s.ListRemesas(ctx, p.ID)
	if len(remesas) != 1 {
		t.Fatalf("remesas = %d, want 1", len(remesas))
	}
	r := remesas[0]
	if r.Status != core.StatusPartiallyPaid {
		t.Fatalf("status = %s, want %s", r.Status, core.StatusPartiallyPaid)
	}
	items, _ := s.ListRemesaItems(ctx, r.ID)
	if !core.TotalOf(items).Equal(r.Total) {
		t.Fatalf("remesa total %s != items %s", r.Total, core.TotalOf(items))
	}
	for _, it := range items {
		if !it.Amount.Add(it.VATAmount).Equal(it.Total) {
			t.Errorf("item %s total %s != amount + VAT", it.ID, it.Total)
		}
	}
}

func TestFailedMutationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New()
	p, _ := s.CreateProject(ctx, core.Project{Name: "P"})
	r, _ := s.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 1})

	_, err := s.AddRemesaItem(ctx, core.RemesaItem{RemesaID: r.ID, Section: "C", ContractorName: "x"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	items, _ := s.ListRemesaItems(ctx, r.ID)
	if len(items) != 0 {
		t.Fatalf("items = %d after rejected add", len(items))
	}
}
