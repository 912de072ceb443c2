package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"remesas/internal/core"
)

// projectFromPath loads the project named by the {id} path segment.
func (s *Server) projectFromPath(r *http.Request) (core.Project, error) {
	return s.svc.Catalog.GetProject(r.Context(), r.PathValue("id"))
}

// Projects

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.svc.Catalog.ListProjects(r.Context())
	if err != nil {
		writeError(w, r, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

type projectRequest struct {
	Name      string `json:"name"`
	OwnerName string `json:"owner_name"`
	Address   string `json:"address"`
}

func (p projectRequest) project() core.Project {
	return core.Project{
		Name:      sanitizeInput(p.Name),
		OwnerName: sanitizeInput(p.OwnerName),
		Address:   sanitizeInput(p.Address),
	}
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create project", err)
		return
	}
	p, err := s.svc.Catalog.CreateProject(r.Context(), req.project())
	if err != nil {
		writeError(w, r, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update project", err)
		return
	}
	p := req.project()
	p.ID = r.PathValue("id")
	if err := s.svc.Catalog.UpdateProject(r.Context(), p); err != nil {
		writeError(w, r, "update project", err)
		return
	}
	s.handleGetProject(w, r)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteProject(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Categories and concepts

type nameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "list categories", err)
		return
	}
	cats, err := s.svc.Catalog.ListCategories(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "list categories", err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create category", err)
		return
	}
	c, err := s.svc.Catalog.CreateCategory(r.Context(), core.Category{
		ProjectID: r.PathValue("id"),
		Name:      sanitizeInput(req.Name),
	})
	if err != nil {
		writeError(w, r, "create category", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "rename category", err)
		return
	}
	if err := s.svc.Catalog.RenameCategory(r.Context(), r.PathValue("id"), sanitizeInput(req.Name)); err != nil {
		writeError(w, r, "rename category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListConcepts(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "list concepts", err)
		return
	}
	concepts, err := s.svc.Catalog.ListConcepts(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "list concepts", err)
		return
	}
	writeJSON(w, http.StatusOK, concepts)
}

func (s *Server) handleCreateConcept(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create concept", err)
		return
	}
	c, err := s.svc.Catalog.CreateConcept(r.Context(), core.Concept{
		CategoryID: r.PathValue("id"),
		Name:       sanitizeInput(req.Name),
	})
	if err != nil {
		writeError(w, r, "create concept", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) handleRenameConcept(w http.ResponseWriter, r *http.Request) {
	var req nameRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "rename concept", err)
		return
	}
	if err := s.svc.Catalog.RenameConcept(r.Context(), r.PathValue("id"), sanitizeInput(req.Name)); err != nil {
		writeError(w, r, "rename concept", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteConcept(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteConcept(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete concept", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Contractors

type contractorRequest struct {
	Name          string `json:"name"`
	Bank          string `json:"bank"`
	AccountNumber string `json:"account_number"`
	CLABE         string `json:"clabe"`
	Notes         string `json:"notes"`
}

func (c contractorRequest) contractor() core.Contractor {
	return core.Contractor{
		Name:          sanitizeInput(c.Name),
		Bank:          sanitizeInput(c.Bank),
		AccountNumber: sanitizeInput(c.AccountNumber),
		CLABE:         sanitizeInput(c.CLABE),
		Notes:         sanitizeInput(c.Notes),
	}
}

func (s *Server) handleListContractors(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "list contractors", err)
		return
	}
	list, err := s.svc.Catalog.ListContractors(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "list contractors", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleCreateContractor(w http.ResponseWriter, r *http.Request) {
	var req contractorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create contractor", err)
		return
	}
	c := req.contractor()
	c.ProjectID = r.PathValue("id")
	created, err := s.svc.Catalog.CreateContractor(r.Context(), c)
	if err != nil {
		writeError(w, r, "create contractor", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetContractor(w http.ResponseWriter, r *http.Request) {
	c, err := s.svc.Catalog.GetContractor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get contractor", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleUpdateContractor(w http.ResponseWriter, r *http.Request) {
	var req contractorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update contractor", err)
		return
	}
	current, err := s.svc.Catalog.GetContractor(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "update contractor", err)
		return
	}
	c := req.contractor()
	c.ID, c.ProjectID = current.ID, current.ProjectID
	if err := s.svc.Catalog.UpdateContractor(r.Context(), c); err != nil {
		writeError(w, r, "update contractor", err)
		return
	}
	s.handleGetContractor(w, r)
}

func (s *Server) handleDeleteContractor(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteContractor(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete contractor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Exchange rates

type exchangeRateRequest struct {
	Date     string          `json:"date"`
	Currency string          `json:"currency"`
	Rate     decimal.Decimal `json:"rate"`
}

func (s *Server) handleListExchangeRates(w http.ResponseWriter, r *http.Request) {
	rates, err := s.svc.Catalog.ListExchangeRates(r.Context())
	if err != nil {
		writeError(w, r, "list exchange rates", err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

func (s *Server) handleCreateExchangeRate(w http.ResponseWriter, r *http.Request) {
	var req exchangeRateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create exchange rate", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, "create exchange rate", err)
		return
	}
	if date.IsZero() {
		date = core.DateOnly(time.Now())
	}
	currency, err := core.ParseCurrency(req.Currency)
	if err != nil {
		writeError(w, r, "create exchange rate", &core.ValidationError{Field: "currency", Err: err})
		return
	}
	created, err := s.svc.Catalog.CreateExchangeRate(r.Context(), core.ExchangeRate{Date: date, Currency: currency, Rate: req.Rate})
	if err != nil {
		writeError(w, r, "create exchange rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handleLatestExchangeRate answers ?currency=USD&date=2025-01-31; the date
// defaults to today.
func (s *Server) handleLatestExchangeRate(w http.ResponseWriter, r *http.Request) {
	currency, err := core.ParseCurrency(r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, r, "latest exchange rate", &core.ValidationError{Field: "currency", Err: err})
		return
	}
	day, err := parseDate("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, "latest exchange rate", err)
		return
	}
	if day.IsZero() {
		day = core.DateOnly(time.Now())
	}
	rate, err := s.svc.Catalog.LatestExchangeRate(r.Context(), currency, day)
	if err != nil {
		writeError(w, r, "latest exchange rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleDeleteExchangeRate(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Catalog.DeleteExchangeRate(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete exchange rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
