package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// SnapshotVersion is the schema version written by ExportBackup.
const SnapshotVersion = 1

// Snapshot is the complete persisted ledger state.
type Snapshot struct {
	Version      int           `json:"version"`
	Wallets      []Wallet      `json:"wallets"`
	Transactions []Transaction `json:"transactions"`
	Budgets      []Budget      `json:"budgets"`
	Liabilities  []Liability   `json:"liabilities"`
}

// EmptySnapshot returns a current-version snapshot with non-nil collections.
func EmptySnapshot() Snapshot {
	return Snapshot{
		Version:      SnapshotVersion,
		Wallets:      []Wallet{},
		Transactions: []Transaction{},
		Budgets:      []Budget{},
		Liabilities:  []Liability{},
	}
}

// Clone returns a deep copy so callers cannot mutate ledger state.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Version:      s.Version,
		Wallets:      append([]Wallet{}, s.Wallets...),
		Transactions: append([]Transaction{}, s.Transactions...),
		Budgets:      append([]Budget{}, s.Budgets...),
		Liabilities:  make([]Liability, len(s.Liabilities)),
	}
	for i, l := range s.Liabilities {
		if l.DueDate != nil {
			due := *l.DueDate
			l.DueDate = &due
		}
		out.Liabilities[i] = l
	}
	return out
}

func (s Snapshot) WalletIndex(id string) int {
	for i, w := range s.Wallets {
		if w.ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) TransactionIndex(id string) int {
	for i, tx := range s.Transactions {
		if tx.ID == id {
			return i
		}
	}
	return -1
}

func (s Snapshot) BudgetIndex(category string) int {
	for i, b := range s.Budgets {
		if b.Category == category {
			return i
		}
	}
	return -1
}

func (s Snapshot) LiabilityIndex(id string) int {
	for i, l := range s.Liabilities {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// TotalBalance sums every wallet balance.
func (s Snapshot) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, w := range s.Wallets {
		total = total.Add(w.Balance)
	}
	return total
}

// NetEffect returns the balance change a transaction applies to each wallet.
func NetEffect(tx Transaction) map[string]decimal.Decimal {
	switch tx.Type {
	case Income:
		return map[string]decimal.Decimal{tx.WalletID: tx.Amount}
	case Expense:
		return map[string]decimal.Decimal{tx.WalletID: tx.Amount.Neg()}
	case Transfer:
		return map[string]decimal.Decimal{
			tx.FromWalletID: tx.Amount.Neg(),
			tx.ToWalletID:   tx.Amount,
		}
	}
	return nil
}

// SortNewestFirst orders transactions by creation time, newest first.
// Ties keep their stored order.
func SortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}
