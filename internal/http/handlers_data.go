package http

import (
	"bytes"
	"fmt"
	"net/http"

	"pocketledger/internal/interchange"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
	appsec "pocketledger/internal/security"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) attachment(w http.ResponseWriter, contentType, prefix, ext string) {
	name := fmt.Sprintf("%s-%s.%s", prefix, s.store.Now().In(s.loc).Format("20060102"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
}

// handleExportBackup returns the snapshot document, sealed with the backup
// passphrase when one is configured.
func (s *Server) handleExportBackup(w http.ResponseWriter, r *http.Request) {
	data, err := s.store.ExportBackup(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	sealed, err := s.transform.Seal(data)
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}

	if _, plain := s.transform.(appsec.Passthrough); plain {
		s.attachment(w, "application/json", "pocketledger-backup", "json")
	} else {
		s.attachment(w, "application/octet-stream", "pocketledger-backup", "enc")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(sealed)
}

// handleImportBackup replaces the ledger with the uploaded document. A
// rejected document leaves the ledger untouched.
func (s *Server) handleImportBackup(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, ledger.OpImportBackup, err)
		return
	}
	data, err := s.transform.Open(bytes.TrimSpace(body))
	if err != nil {
		writeError(w, r, ledger.OpImportBackup, err)
		return
	}
	if err := s.store.ImportBackup(r.Context(), data); err != nil {
		writeError(w, r, ledger.OpImportBackup, err)
		return
	}
	s.mutated(r, ledger.OpImportBackup, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	txs, err := s.store.Transactions(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	s.attachment(w, "text/csv; charset=utf-8", "pocketledger-transactions", "csv")
	w.WriteHeader(http.StatusOK)
	if err := interchange.WriteCSV(w, txs); err != nil {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "CSV export interrupted",
			applog.FieldError, err)
	}
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	importer := interchange.NewImporter(s.store.Now, s.logger.Slog())
	result, err := importer.Import(r.Context(), bytes.NewReader(body), s.store)
	if err != nil {
		writeError(w, r, applog.OpImport, err)
		return
	}
	if result.Imported > 0 || len(result.CreatedWallets) > 0 {
		s.mutated(r, applog.OpImport, nil)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Snapshot(r.Context())
	if err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	var buf bytes.Buffer
	if err := interchange.WriteXLSX(&buf, snap.Transactions, snap.Wallets); err != nil {
		writeError(w, r, applog.OpExport, err)
		return
	}
	s.attachment(w, xlsxContentType, "pocketledger-report", "xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSyncState(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "cloud sync is not configured"})
		return
	}
	state, err := s.sync.State(r.Context())
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if s.sync == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "cloud sync is not configured"})
		return
	}
	state, err := s.sync.SyncToCloud(r.Context())
	if err != nil {
		writeError(w, r, applog.OpSync, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Cloud sync completed",
		applog.NewFields().WithProvider(state.Provider).WithOperation(applog.OpSync).ToSlice()...)
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) requirePINs(w http.ResponseWriter) bool {
	if s.pins == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "app lock is not configured"})
		return false
	}
	return true
}

func (s *Server) handlePINStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requirePINs(w) {
		return
	}
	has, err := s.pins.HasPIN(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": has})
}

func (s *Server) handleSetPIN(w http.ResponseWriter, r *http.Request) {
	if !s.requirePINs(w) {
		return
	}
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	if err := s.pins.SetPIN(r.Context(), req.PIN); err != nil {
		writeError(w, r, applog.OpUpdate, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerifyPIN(w http.ResponseWriter, r *http.Request) {
	if !s.requirePINs(w) {
		return
	}
	var req pinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpValidate, err)
		return
	}
	ok, err := s.pins.CheckPIN(r.Context(), req.PIN)
	if err != nil {
		writeError(w, r, applog.OpValidate, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]bool{"valid": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Server) handleClearPIN(w http.ResponseWriter, r *http.Request) {
	if !s.requirePINs(w) {
		return
	}
	if err := s.pins.ClearPIN(r.Context()); err != nil {
		writeError(w, r, applog.OpDelete, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
