package http

import (
	"bytes"
	"net/http"

	applog "remesas/internal/log"
	"remesas/internal/spreadsheet"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleImportRemesa takes a single remesa workbook as the "file" part.
// ?dry_run=true returns the parsed sheet; otherwise a draft is created,
// authored by X-User.
func (s *Server) handleImportRemesa(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "import remesa", err)
		return
	}
	file, name, err := uploadedFile(w, r, s.maxUpload)
	if err != nil {
		writeError(w, r, "import remesa", err)
		return
	}
	sheet, err := s.svc.Import.PreviewRemesa(file)
	if err != nil {
		writeError(w, r, "parse remesa", err)
		return
	}
	if queryBool(r, "dry_run") {
		writeJSON(w, http.StatusOK, sheet)
		return
	}
	d, err := s.svc.Import.CommitRemesa(r.Context(), p.ID, sheet, sanitizeInput(r.Header.Get("X-User")))
	if err != nil {
		writeError(w, r, "import remesa", err)
		return
	}
	fields := applog.NewFields().WithRemesa(p.ID, d.ID, d.Label())
	fields[applog.FieldFile] = name
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Remesa workbook imported", fields.ToSlice()...)
	writeJSON(w, http.StatusCreated, d)
}

// handleImportHistory loads historical remesas from an uploaded ledger
// workbook, or from the configured Google Sheets ledger with
// ?source=ledger. ?dry_run=true only parses.
func (s *Server) handleImportHistory(w http.ResponseWriter, r *http.Request) {
	p, err := s.projectFromPath(r)
	if err != nil {
		writeError(w, r, "import history", err)
		return
	}

	var hist *spreadsheet.HistorySheet
	if r.URL.Query().Get("source") == "ledger" {
		hist, err = s.svc.Import.PreviewLedger(r.Context())
	} else {
		var file *bytes.Reader
		if file, _, err = uploadedFile(w, r, s.maxUpload); err == nil {
			hist, err = s.svc.Import.PreviewHistory(file)
		}
	}
	if err != nil {
		writeError(w, r, "parse history", err)
		return
	}
	if queryBool(r, "dry_run") {
		writeJSON(w, http.StatusOK, hist)
		return
	}
	res, err := s.svc.Import.CommitHistory(r.Context(), p.ID, hist)
	if err != nil {
		writeError(w, r, "import history", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleExportRemesa downloads the styled workbook. ?budget=true adds the
// budget, paid and available columns.
func (s *Server) handleExportRemesa(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	name, err := s.svc.Export.Export(r.Context(), r.PathValue("id"), queryBool(r, "budget"), &buf)
	if err != nil {
		writeError(w, r, "export remesa", err)
		return
	}
	NewResponse().
		Header("Content-Disposition", contentDisposition(name)).
		Body(xlsxContentType, buf.Bytes()).
		Write(w)
}
