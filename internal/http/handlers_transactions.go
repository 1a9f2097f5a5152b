package http

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.store.Wallets(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.store.Wallet(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req walletRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, ledger.OpAddWallet, err)
		return
	}
	if req.Type == "" {
		req.Type = core.WalletCash
	}
	balance, err := req.InitialBalance.Balance()
	if err != nil {
		writeError(w, r, ledger.OpAddWallet, err)
		return
	}

	id, err := s.store.AddWallet(r.Context(), sanitizeInput(req.Name), req.Type, balance)
	if err != nil {
		writeError(w, r, ledger.OpAddWallet, err)
		return
	}
	s.mutated(r, ledger.OpAddWallet, applog.NewFields().WithWallet(id))
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleTotalBalance(w http.ResponseWriter, r *http.Request) {
	total, err := s.store.TotalBalance(r.Context())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	txs, err := s.store.RecentTransactions(r.Context(), limit)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transactions": txs,
		"canUndo":      s.store.CanUndo(),
	})
}

func (s *Server) handleAddIncome(w http.ResponseWriter, r *http.Request) {
	s.addTransaction(w, r, ledger.OpAddIncome, func(req transactionRequest, in baseInput) (string, error) {
		return s.store.AddIncome(r.Context(), ledger.IncomeInput{
			Amount:    in.amount,
			WalletID:  req.WalletID,
			Source:    sanitizeInput(req.Source),
			Note:      in.note,
			CreatedAt: in.createdAt,
		})
	})
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	s.addTransaction(w, r, ledger.OpAddExpense, func(req transactionRequest, in baseInput) (string, error) {
		return s.store.AddExpense(r.Context(), ledger.ExpenseInput{
			Amount:    in.amount,
			WalletID:  req.WalletID,
			Category:  sanitizeInput(req.Category),
			Note:      in.note,
			CreatedAt: in.createdAt,
		})
	})
}

func (s *Server) handleAddTransfer(w http.ResponseWriter, r *http.Request) {
	s.addTransaction(w, r, ledger.OpAddTransfer, func(req transactionRequest, in baseInput) (string, error) {
		return s.store.AddTransfer(r.Context(), ledger.TransferInput{
			Amount:       in.amount,
			FromWalletID: req.FromWalletID,
			ToWalletID:   req.ToWalletID,
			Note:         in.note,
			CreatedAt:    in.createdAt,
		})
	})
}

// baseInput holds the parsed fields shared by every transaction kind.
type baseInput struct {
	amount    decimal.Decimal
	note      string
	createdAt time.Time
}

func (s *Server) addTransaction(w http.ResponseWriter, r *http.Request, op string, add func(transactionRequest, baseInput) (string, error)) {
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, op, err)
		return
	}
	amount, err := req.Amount.Decimal()
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	createdAt, err := optionalDate(req.CreatedAt, s.loc)
	if err != nil {
		writeError(w, r, op, err)
		return
	}

	id, err := add(req, baseInput{amount: amount, note: sanitizeInput(req.Note), createdAt: createdAt})
	if err != nil {
		writeError(w, r, op, err)
		return
	}
	s.mutated(r, op, applog.NewFields().WithTransaction(id, "", "", ""))
	writeJSON(w, http.StatusCreated, idResponse{ID: id})
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req transactionPatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, ledger.OpUpdateTransaction, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, r, ledger.OpUpdateTransaction, err)
		return
	}
	if err := s.store.UpdateTransaction(r.Context(), id, patch); err != nil {
		writeError(w, r, ledger.OpUpdateTransaction, err)
		return
	}
	s.mutated(r, ledger.OpUpdateTransaction, applog.NewFields().WithTransaction(id, "", "", ""))
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteTransaction succeeds for unknown ids; deleting is idempotent.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteTransaction(r.Context(), id); err != nil {
		writeError(w, r, ledger.OpDeleteTransaction, err)
		return
	}
	s.mutated(r, ledger.OpDeleteTransaction, applog.NewFields().WithTransaction(id, "", "", ""))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUndoDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.UndoDelete(r.Context()); err != nil {
		writeError(w, r, ledger.OpUndoDelete, err)
		return
	}
	s.mutated(r, ledger.OpUndoDelete, nil)
	w.WriteHeader(http.StatusNoContent)
}
