package http

import (
	"net/http"

	"remesas/internal/core"
)

func cleanBudgetItem(b *core.BudgetItem) {
	b.CategoryName = sanitizeInput(b.CategoryName)
	b.ConceptName = sanitizeInput(b.ConceptName)
	b.Detail = sanitizeInput(b.Detail)
	b.Supplier = sanitizeInput(b.Supplier)
	b.Unit = sanitizeInput(b.Unit)
	b.Notes = sanitizeInput(b.Notes)
}

func (s *Server) handleListBudget(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "list budget", err)
		return
	}
	items, err := s.svc.Budget.ListItems(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "list budget", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateBudgetItem(w http.ResponseWriter, r *http.Request) {
	var b core.BudgetItem
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, "create budget item", err)
		return
	}
	cleanBudgetItem(&b)
	b.ID = ""
	b.ProjectID = r.PathValue("id")
	created, err := s.svc.Budget.CreateItem(r.Context(), b)
	if err != nil {
		writeError(w, r, "create budget item", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetBudgetItem(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Budget.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get budget item", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleUpdateBudgetItem(w http.ResponseWriter, r *http.Request) {
	var b core.BudgetItem
	if err := decodeJSON(w, r, &b); err != nil {
		writeError(w, r, "update budget item", err)
		return
	}
	cleanBudgetItem(&b)
	b.ID = r.PathValue("id")
	updated, err := s.svc.Budget.UpdateItem(r.Context(), b)
	if err != nil {
		writeError(w, r, "update budget item", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteBudgetItem(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Budget.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete budget item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportBudget takes a budget workbook as the "file" part. With
// ?dry_run=true the parsed lines are returned and nothing is stored.
func (s *Server) handleImportBudget(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "import budget", err)
		return
	}
	file, _, err := uploadedFile(w, r, s.maxUpload)
	if err != nil {
		writeError(w, r, "import budget", err)
		return
	}
	if queryBool(r, "dry_run") {
		preview, err := s.svc.Import.PreviewBudget(file)
		if err != nil {
			writeError(w, r, "preview budget", err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
		return
	}
	res, err := s.svc.Import.CommitBudget(r.Context(), p.ID, file)
	if err != nil {
		writeError(w, r, "import budget", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleBudgetTree(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "budget tree", err)
		return
	}
	tree, err := s.svc.Budget.Tree(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "budget tree", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleBudgetVsPaid(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Budget.BudgetVsPaid(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "budget vs paid", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handlePaidByContractor lists what each contractor has been paid, largest
// first.
func (s *Server) handlePaidByContractor(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.Budget.PaidByContractor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "paid by contractor", err)
		return
	}
	if totals == nil {
		totals = []core.ContractorTotal{}
	}
	writeJSON(w, http.StatusOK, totals)
}
