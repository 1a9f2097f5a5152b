package http

import (
	"net/http"

	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
)

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.store.Budgets(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, budgets)
}

// handleSetBudget creates or replaces the budget of a category.
func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, ledger.OpSetBudget, err)
		return
	}
	limit, err := req.Limit.Decimal()
	if err != nil {
		writeError(w, r, ledger.OpSetBudget, err)
		return
	}
	category := sanitizeInput(req.Category)
	if err := s.store.SetBudget(r.Context(), category, limit); err != nil {
		writeError(w, r, ledger.OpSetBudget, err)
		return
	}
	s.mutated(r, ledger.OpSetBudget, applog.NewFields().WithCategory(category))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveBudget(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")
	if err := s.store.RemoveBudget(r.Context(), category); err != nil {
		writeError(w, r, ledger.OpRemoveBudget, err)
		return
	}
	s.mutated(r, ledger.OpRemoveBudget, applog.NewFields().WithCategory(category))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBudgetUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.store.BudgetUsage(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

func (s *Server) handleListLiabilities(w http.ResponseWriter, r *http.Request) {
	liabilities, err := s.store.Liabilities(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, liabilities)
}

func (s *Server) handleAddLiability(w http.ResponseWriter, r *http.Request) {
	var req liabilityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, ledger.OpAddLiability, err)
		return
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		writeError(w, r, ledger.OpAddLiability, err)
		return
	}
	in := ledger.LiabilityInput{
		Direction: req.Direction,
		Person:    sanitizeInput(req.Person),
		Amount:    amount,
		Note:      sanitizeInput(req.Note),
	}
	if due, err := optionalDate(req.DueDate, s.loc); err != nil {
		writeError(w, r, ledger.OpAddLiability, err)
		return
	} else if !due.IsZero() {
		in.DueDate = &due
	}

	id, err := s.store.AddLiability(r.Context(), in)
	if err != nil {
		writeError(w, r, ledger.OpAddLiability, err)
		return
	}
	s.mutated(r, ledger.OpAddLiability, nil)
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateLiability(w http.ResponseWriter, r *http.Request) {
	var req liabilityPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, ledger.OpUpdateLiability, err)
		return
	}
	patch, err := req.toPatch(s.loc)
	if err != nil {
		writeError(w, r, ledger.OpUpdateLiability, err)
		return
	}
	if err := s.store.UpdateLiability(r.Context(), r.PathValue("id"), patch); err != nil {
		writeError(w, r, ledger.OpUpdateLiability, err)
		return
	}
	s.mutated(r, ledger.OpUpdateLiability, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLiability(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteLiability(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, ledger.OpDeleteLiability, err)
		return
	}
	s.mutated(r, ledger.OpDeleteLiability, nil)
	w.WriteHeader(http.StatusNoContent)
}
