package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"remesas/internal/core"
	"remesas/internal/ports"
	"remesas/internal/storage/storetest"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "remesas.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	return repo
}

func TestSQLiteStoreBehaviour(t *testing.T) {
	storetest.Run(t, func(t *testing.T) ports.Store { return newTestRepository(t) })
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "remesas.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	if _, err := repo.ListProjects(context.Background()); err != nil {
		t.Fatalf("list after reopen: %v", err)
	}
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "remesas.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	p, err := repo.CreateProject(ctx, core.Project{Name: "Casa Sur"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := repo.CreateRemesa(ctx, core.Remesa{ProjectID: p.ID, Number: 7, Date: time.Date(2025, 10, 27, 0, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatal(err)
	}
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()
	got, err := repo.GetRemesa(ctx, r.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Label() != "07 MN" {
		t.Errorf("label = %q, want 07 MN", got.Label())
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, r.CreatedAt)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	repo := newTestRepository(t)
	defer repo.Close()
	_, err := repo.CreateContractor(context.Background(), core.Contractor{ProjectID: "nope", Name: "Aceros"})
	if err == nil {
		t.Fatal("expected an error for an unknown project")
	}
}
