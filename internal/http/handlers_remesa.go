package http

import (
	"net/http"

	"remesas/internal/core"
	"remesas/internal/services"
)

type remesaRequest struct {
	Number          int    `json:"remesa_number"`
	Suffix          string `json:"remesa_suffix"`
	Date            string `json:"date"`
	WeekDescription string `json:"week_description"`
	CreatedBy       string `json:"created_by"`
}

func cleanRemesaItem(it *core.RemesaItem) {
	it.CategoryName = sanitizeInput(it.CategoryName)
	it.ConceptName = sanitizeInput(it.ConceptName)
	it.ContractorName = sanitizeInput(it.ContractorName)
	it.Description = sanitizeInput(it.Description)
	it.PaymentType = sanitizeInput(it.PaymentType)
	it.Bank = sanitizeInput(it.Bank)
	it.AccountNumber = sanitizeInput(it.AccountNumber)
	it.CLABE = sanitizeInput(it.CLABE)
	it.Notes = sanitizeInput(it.Notes)
}

func (s *Server) handleListRemesas(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "list remesas", err)
		return
	}
	list, err := s.svc.Remesas.List(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "list remesas", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleNextNumber(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "next remesa number", err)
		return
	}
	n, err := s.svc.Remesas.NextNumber(r.Context(), p.ID)
	if err != nil {
		writeError(w, r, "next remesa number", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"remesa_number": n})
}

// handleCreateRemesa creates a draft. A missing number takes the next one;
// created_by defaults to the X-User header.
func (s *Server) handleCreateRemesa(w http.ResponseWriter, r *http.Request) {
	var req remesaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "create remesa", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, "create remesa", err)
		return
	}
	createdBy := sanitizeInput(req.CreatedBy)
	if createdBy == "" {
		createdBy = sanitizeInput(r.Header.Get("X-User"))
	}
	created, err := s.svc.Remesas.Create(r.Context(), services.NewRemesa{
		ProjectID:       r.PathValue("id"),
		Number:          req.Number,
		Suffix:          sanitizeInput(req.Suffix),
		Date:            date,
		WeekDescription: sanitizeInput(req.WeekDescription),
		CreatedBy:       createdBy,
	})
	if err != nil {
		writeError(w, r, "create remesa", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetRemesa(w http.ResponseWriter, r *http.Request) {
	d, err := s.svc.Remesas.Detail(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "get remesa", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleUpdateRemesa(w http.ResponseWriter, r *http.Request) {
	var req remesaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, "update remesa", err)
		return
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		writeError(w, r, "update remesa", err)
		return
	}
	updated, err := s.svc.Remesas.UpdateHeader(r.Context(), core.Remesa{
		ID:              r.PathValue("id"),
		Number:          req.Number,
		Suffix:          sanitizeInput(req.Suffix),
		Date:            date,
		WeekDescription: sanitizeInput(req.WeekDescription),
		CreatedBy:       sanitizeInput(req.CreatedBy),
	})
	if err != nil {
		writeError(w, r, "update remesa", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteRemesa(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Remesas.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete remesa", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReplaceItems swaps the whole item list. Lines are renumbered per
// section and VAT and totals recomputed. Approvals in the body are ignored;
// items sent back with their id keep the stored approval.
func (s *Server) handleReplaceItems(w http.ResponseWriter, r *http.Request) {
	var items []core.RemesaItem
	if err := decodeJSON(w, r, &items); err != nil {
		writeError(w, r, "replace items", err)
		return
	}
	id := r.PathValue("id")
	if _, err := s.svc.Remesas.Get(r.Context(), id); err != nil {
		writeError(w, r, "replace items", err)
		return
	}
	for i := range items {
		cleanRemesaItem(&items[i])
		items[i].RemesaID = id
	}
	d, err := s.svc.Remesas.ReplaceItems(r.Context(), id, items)
	if err != nil {
		writeError(w, r, "replace items", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var it core.RemesaItem
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, "add item", err)
		return
	}
	cleanRemesaItem(&it)
	it.ID = ""
	it.RemesaID = r.PathValue("id")
	if _, err := s.svc.Remesas.Get(r.Context(), it.RemesaID); err != nil {
		writeError(w, r, "add item", err)
		return
	}
	created, err := s.svc.Remesas.AddItem(r.Context(), it)
	if err != nil {
		writeError(w, r, "add item", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var it core.RemesaItem
	if err := decodeJSON(w, r, &it); err != nil {
		writeError(w, r, "update item", err)
		return
	}
	cleanRemesaItem(&it)
	it.ID = r.PathValue("id")
	updated, err := s.svc.Remesas.UpdateItem(r.Context(), it)
	if err != nil {
		writeError(w, r, "update item", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Remesas.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, "delete item", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendRemesa(w http.ResponseWriter, r *http.Request) {
	sent, err := s.svc.Remesas.Send(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "send remesa", err)
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

func (s *Server) handleApproveItem(w http.ResponseWriter, r *http.Request) {
	user, paidOn, err := approvalStamp(r)
	if err != nil {
		writeError(w, r, "approve item", err)
		return
	}
	it, err := s.svc.Remesas.ApproveOn(r.Context(), r.PathValue("id"), user, paidOn)
	if err != nil {
		writeError(w, r, "approve item", err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

func (s *Server) handleUnapproveItem(w http.ResponseWriter, r *http.Request) {
	it, err := s.svc.Remesas.Unapprove(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, "unapprove item", err)
		return
	}
	writeJSON(w, http.StatusOK, it)
}

// handleApproveAll approves every pending item. When it stops part way the
// error body carries applied and total.
func (s *Server) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	user, paidOn, err := approvalStamp(r)
	if err != nil {
		writeError(w, r, "approve all", err)
		return
	}
	d, err := s.svc.Remesas.ApproveAllOn(r.Context(), r.PathValue("id"), user, paidOn)
	if err != nil {
		writeError(w, r, "approve all", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
