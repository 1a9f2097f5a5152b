// Package sheets renders the ledger as a flat spreadsheet table and defines
// the ports spreadsheet adapters implement.
package sheets

import (
	"context"
	"sort"
	"time"

	"pocketledger/internal/core"
)

// Ports for outbound adapters.
type (
	// TableWriter replaces the whole target table with rows.
	TableWriter interface {
		ReplaceTable(ctx context.Context, rows [][]string) (ref string, err error)
	}

	TableReader interface {
		ReadTable(ctx context.Context) ([][]string, error)
	}
)

// Header is the first row written by TransactionRows.
var Header = []string{"Date", "Type", "Amount", "Wallet", "Category", "Source", "Note", "ID"}

const dateLayout = "2006-01-02 15:04"

// TransactionRows renders txs newest first, with wallet ids replaced by
// wallet names. Transfers show "From → To" in the wallet column.
func TransactionRows(txs []core.Transaction, wallets []core.Wallet, loc *time.Location) [][]string {
	if loc == nil {
		loc = time.UTC
	}
	names := make(map[string]string, len(wallets))
	for _, w := range wallets {
		names[w.ID] = w.Name
	}
	name := func(id string) string {
		if n, ok := names[id]; ok {
			return n
		}
		return id
	}

	sorted := append([]core.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	rows := make([][]string, 0, len(sorted)+1)
	rows = append(rows, append([]string(nil), Header...))
	for _, tx := range sorted {
		wallet := name(tx.WalletID)
		if tx.Type == core.Transfer {
			wallet = name(tx.FromWalletID) + " → " + name(tx.ToWalletID)
		}
		rows = append(rows, []string{
			tx.CreatedAt.In(loc).Format(dateLayout),
			string(tx.Type),
			core.FormatAmount(tx.Amount),
			wallet,
			tx.Category,
			tx.Source,
			tx.Note,
			tx.ID,
		})
	}
	return rows
}
