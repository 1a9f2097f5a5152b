package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

type IncomeInput struct {
	Amount    decimal.Decimal
	WalletID  string
	Source    string
	Note      string
	CreatedAt time.Time // zero means now
}

type ExpenseInput struct {
	Amount    decimal.Decimal
	WalletID  string
	Category  string
	Note      string
	CreatedAt time.Time
}

type TransferInput struct {
	Amount       decimal.Decimal
	FromWalletID string
	ToWalletID   string
	Note         string
	CreatedAt    time.Time
}

// TransactionPatch lists the fields to change; nil fields are kept.
// Setting a string field to "" clears it.
type TransactionPatch struct {
	Type         *core.TransactionType
	Amount       *decimal.Decimal
	Note         *string
	Category     *string
	Source       *string
	WalletID     *string
	FromWalletID *string
	ToWalletID   *string
}

func (s *Store) AddWallet(ctx context.Context, name string, typ core.WalletType, initialBalance decimal.Decimal) (string, error) {
	w := core.Wallet{
		ID:             s.newID(),
		Name:           strings.TrimSpace(name),
		Type:           typ,
		Balance:        initialBalance,
		OpeningBalance: initialBalance,
		CreatedAt:      s.now(),
	}
	if err := w.Validate(); err != nil {
		return "", err
	}
	err := s.update(ctx, OpAddWallet, func(snap *core.Snapshot) (*change, error) {
		snap.Wallets = append(snap.Wallets, w)
		return changed(OpAddWallet), nil
	})
	if err != nil {
		return "", err
	}
	return w.ID, nil
}

func (s *Store) AddIncome(ctx context.Context, in IncomeInput) (string, error) {
	return s.addTransaction(ctx, OpAddIncome, core.Transaction{
		Type:      core.Income,
		Amount:    in.Amount,
		WalletID:  in.WalletID,
		Source:    strings.TrimSpace(in.Source),
		Note:      in.Note,
		CreatedAt: s.stamp(in.CreatedAt),
	})
}

// AddExpense allows the wallet balance to go negative.
func (s *Store) AddExpense(ctx context.Context, in ExpenseInput) (string, error) {
	return s.addTransaction(ctx, OpAddExpense, core.Transaction{
		Type:      core.Expense,
		Amount:    in.Amount,
		WalletID:  in.WalletID,
		Category:  strings.TrimSpace(in.Category),
		Note:      in.Note,
		CreatedAt: s.stamp(in.CreatedAt),
	})
}

// AddTransfer rejects identical wallets before checking that they exist.
func (s *Store) AddTransfer(ctx context.Context, in TransferInput) (string, error) {
	if in.FromWalletID == in.ToWalletID {
		return "", core.ErrSameWallet
	}
	return s.addTransaction(ctx, OpAddTransfer, core.Transaction{
		Type:         core.Transfer,
		Amount:       in.Amount,
		FromWalletID: in.FromWalletID,
		ToWalletID:   in.ToWalletID,
		Note:         in.Note,
		CreatedAt:    s.stamp(in.CreatedAt),
	})
}

func (s *Store) addTransaction(ctx context.Context, op string, tx core.Transaction) (string, error) {
	tx.ID = s.newID()
	if err := core.ValidateAmount(tx.Amount); err != nil {
		return "", err
	}
	err := s.update(ctx, op, func(snap *core.Snapshot) (*change, error) {
		if err := checkTransaction(snap, tx); err != nil {
			return nil, err
		}
		if err := applyEffect(snap, tx, false); err != nil {
			return nil, err
		}
		snap.Transactions = append(snap.Transactions, tx)
		copied := tx
		return &change{events: []Event{{Kind: EventChanged, Op: op, Transaction: &copied}}}, nil
	})
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

// DeleteTransaction reverses the transaction's effect and keeps a copy for
// UndoDelete. Unknown ids are ignored.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	return s.update(ctx, OpDeleteTransaction, func(snap *core.Snapshot) (*change, error) {
		i := snap.TransactionIndex(id)
		if i < 0 {
			return nil, nil
		}
		tx := snap.Transactions[i]
		if err := applyEffect(snap, tx, true); err != nil {
			return nil, err
		}
		snap.Transactions = append(snap.Transactions[:i], snap.Transactions[i+1:]...)

		deleted := tx
		return &change{
			events: []Event{
				{Kind: EventChanged, Op: OpDeleteTransaction, Transaction: &deleted},
				{Kind: EventDeleted, Op: OpDeleteTransaction, Transaction: &deleted},
			},
			onCommit: func() {
				buffered := tx
				s.lastDeleted = &buffered
			},
		}, nil
	})
}

// UndoDelete restores the most recently deleted transaction. It does nothing
// when the undo buffer is empty.
func (s *Store) UndoDelete(ctx context.Context) error {
	return s.update(ctx, OpUndoDelete, func(snap *core.Snapshot) (*change, error) {
		if s.lastDeleted == nil {
			return nil, nil
		}
		tx := *s.lastDeleted
		if err := checkTransaction(snap, tx); err != nil {
			return nil, fmt.Errorf("restore deleted transaction: %w", err)
		}
		if err := applyEffect(snap, tx, false); err != nil {
			return nil, err
		}
		snap.Transactions = append(snap.Transactions, tx)

		restored := tx
		return &change{
			events:   []Event{{Kind: EventChanged, Op: OpUndoDelete, Transaction: &restored}},
			onCommit: func() { s.lastDeleted = nil },
		}, nil
	})
}

// UpdateTransaction swaps the old balance effect for the patched one.
// The patched transaction must satisfy the same rules as a new one,
// including linkage that matches its (possibly new) type. Unknown ids are
// ignored.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch TransactionPatch) error {
	return s.update(ctx, OpUpdateTransaction, func(snap *core.Snapshot) (*change, error) {
		i := snap.TransactionIndex(id)
		if i < 0 {
			return nil, nil
		}
		old := snap.Transactions[i]
		next := patch.apply(old)
		if err := checkTransaction(snap, next); err != nil {
			return nil, err
		}
		if err := applyEffect(snap, old, true); err != nil {
			return nil, err
		}
		if err := applyEffect(snap, next, false); err != nil {
			return nil, err
		}
		snap.Transactions[i] = next

		updated := next
		return &change{events: []Event{{Kind: EventChanged, Op: OpUpdateTransaction, Transaction: &updated}}}, nil
	})
}

func (p TransactionPatch) apply(tx core.Transaction) core.Transaction {
	if p.Type != nil {
		tx.Type = *p.Type
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	if p.Note != nil {
		tx.Note = *p.Note
	}
	if p.Category != nil {
		tx.Category = strings.TrimSpace(*p.Category)
	}
	if p.Source != nil {
		tx.Source = strings.TrimSpace(*p.Source)
	}
	if p.WalletID != nil {
		tx.WalletID = *p.WalletID
	}
	if p.FromWalletID != nil {
		tx.FromWalletID = *p.FromWalletID
	}
	if p.ToWalletID != nil {
		tx.ToWalletID = *p.ToWalletID
	}
	return tx
}

// checkTransaction validates tx and resolves every wallet it references.
func checkTransaction(snap *core.Snapshot, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	for _, id := range tx.WalletIDs() {
		if snap.WalletIndex(id) < 0 {
			return fmt.Errorf("%w: %s", core.ErrWalletNotFound, id)
		}
	}
	return nil
}

// applyEffect adds (or with reverse, removes) the transaction's effect on
// wallet balances. All wallets are resolved before any balance changes.
func applyEffect(snap *core.Snapshot, tx core.Transaction, reverse bool) error {
	effect := core.NetEffect(tx)
	idx := make(map[string]int, len(effect))
	for id := range effect {
		i := snap.WalletIndex(id)
		if i < 0 {
			return fmt.Errorf("%w: %s", core.ErrWalletNotFound, id)
		}
		idx[id] = i
	}
	for id, delta := range effect {
		if reverse {
			delta = delta.Neg()
		}
		w := &snap.Wallets[idx[id]]
		w.Balance = w.Balance.Add(delta)
	}
	return nil
}
