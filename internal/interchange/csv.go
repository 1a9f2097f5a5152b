// Package interchange converts ledger transactions to and from CSV and
// renders spreadsheet reports.
package interchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
)

var (
	ErrCSVHeaders = errors.New("csv headers mismatch")
	ErrCSVEmpty   = errors.New("csv has no data rows")
)

var csvHeader = []string{"Date", "Type", "Amount", "Wallet", "From Wallet", "To Wallet", "Category", "Source", "Note"}

// TransactionsCSV renders transactions with every field quoted and rows
// separated by "\n".
func TransactionsCSV(txs []core.Transaction) string {
	var b strings.Builder
	writeRow(&b, csvHeader)
	for _, tx := range txs {
		b.WriteByte('\n')
		writeRow(&b, []string{
			tx.CreatedAt.Format(time.RFC3339Nano),
			string(tx.Type),
			tx.Amount.String(),
			tx.WalletID,
			tx.FromWalletID,
			tx.ToWalletID,
			tx.Category,
			tx.Source,
			tx.Note,
		})
	}
	return b.String()
}

// WriteCSV streams TransactionsCSV to w.
func WriteCSV(w io.Writer, txs []core.Transaction) error {
	_, err := io.WriteString(w, TransactionsCSV(txs))
	return err
}

func writeRow(b *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(f, `"`, `""`))
		b.WriteByte('"')
	}
}

// Target is the ledger surface the importer writes through.
type Target interface {
	Wallets(ctx context.Context) ([]core.Wallet, error)
	AddWallet(ctx context.Context, name string, typ core.WalletType, initialBalance decimal.Decimal) (string, error)
	AddIncome(ctx context.Context, in ledger.IncomeInput) (string, error)
	AddExpense(ctx context.Context, in ledger.ExpenseInput) (string, error)
	AddTransfer(ctx context.Context, in ledger.TransferInput) (string, error)
}

// ImportResult summarises an import.
type ImportResult struct {
	Imported       int      `json:"imported"`
	Skipped        int      `json:"skipped"`
	CreatedWallets []string `json:"createdWallets"`
}

// Importer reads CSV produced by TransactionsCSV (or a compatible tool).
type Importer struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewImporter(now func() time.Time, logger *slog.Logger) *Importer {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{now: now, logger: logger.With(applog.FieldComponent, applog.ComponentInterchange, applog.FieldOperation, applog.OpImport)}
}

type columns struct {
	date, typ, amount, wallet, from, to, category, source, note int
}

func (c columns) get(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Import adds every valid row to target. Rows with an unknown type, a
// non-positive or unparsable amount, an unparsable date, a missing wallet
// or a transfer between the same wallet are skipped. Wallet ids that do
// not exist in target are mapped to new bank wallets named "Imported ...".
func (im *Importer) Import(ctx context.Context, r io.Reader, target Target) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return ImportResult{}, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return ImportResult{}, ErrCSVEmpty
	}

	cols := indexColumns(records[0])
	if cols.date < 0 || cols.typ < 0 || cols.amount < 0 {
		return ImportResult{}, ErrCSVHeaders
	}

	existing, err := target.Wallets(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("list wallets: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, w := range existing {
		known[w.ID] = true
	}

	res := ImportResult{CreatedWallets: []string{}}
	mapping := map[string]string{}
	ensureWallet := func(oldID, label string) (string, error) {
		if oldID == "" {
			return "", nil
		}
		if id, ok := mapping[oldID]; ok {
			return id, nil
		}
		if known[oldID] {
			mapping[oldID] = oldID
			return oldID, nil
		}
		id, err := target.AddWallet(ctx, "Imported "+label, core.WalletBank, decimal.Zero)
		if err != nil {
			return "", fmt.Errorf("create imported wallet: %w", err)
		}
		mapping[oldID] = id
		res.CreatedWallets = append(res.CreatedWallets, id)
		return id, nil
	}

	for line, row := range records[1:] {
		ok, err := im.importRow(ctx, cols, row, target, ensureWallet)
		if err != nil {
			return res, fmt.Errorf("row %d: %w", line+2, err)
		}
		if ok {
			res.Imported++
		} else {
			res.Skipped++
		}
	}

	im.logger.InfoContext(ctx, "CSV import completed",
		"imported", res.Imported,
		"skipped", res.Skipped,
		"created_wallets", len(res.CreatedWallets))
	return res, nil
}

func (im *Importer) importRow(
	ctx context.Context,
	cols columns,
	row []string,
	target Target,
	ensureWallet func(oldID, label string) (string, error),
) (bool, error) {
	typ := core.TransactionType(cols.get(row, cols.typ))
	if !typ.Valid() {
		return false, nil
	}
	amount, err := decimal.NewFromString(cols.get(row, cols.amount))
	if err != nil || !amount.IsPositive() {
		return false, nil
	}
	createdAt, ok := parseDate(cols.get(row, cols.date), im.now)
	if !ok {
		return false, nil
	}
	note := cols.get(row, cols.note)

	switch typ {
	case core.Income, core.Expense:
		walletID, err := ensureWallet(cols.get(row, cols.wallet), "Wallet")
		if err != nil {
			return false, err
		}
		if walletID == "" {
			return false, nil
		}
		if typ == core.Income {
			_, err = target.AddIncome(ctx, ledger.IncomeInput{
				Amount: amount, WalletID: walletID, Source: cols.get(row, cols.source), Note: note, CreatedAt: createdAt,
			})
		} else {
			_, err = target.AddExpense(ctx, ledger.ExpenseInput{
				Amount: amount, WalletID: walletID, Category: cols.get(row, cols.category), Note: note, CreatedAt: createdAt,
			})
		}
		return err == nil, err

	default:
		fromID, err := ensureWallet(cols.get(row, cols.from), "From")
		if err != nil {
			return false, err
		}
		toID, err := ensureWallet(cols.get(row, cols.to), "To")
		if err != nil {
			return false, err
		}
		if fromID == "" || toID == "" || fromID == toID {
			return false, nil
		}
		_, err = target.AddTransfer(ctx, ledger.TransferInput{
			Amount: amount, FromWalletID: fromID, ToWalletID: toID, Note: note, CreatedAt: createdAt,
		})
		return err == nil, err
	}
}

func indexColumns(header []string) columns {
	find := func(name string) int {
		for i, h := range header {
			h = strings.Trim(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), `"`)
			if h == name {
				return i
			}
		}
		return -1
	}
	return columns{
		date:     find("Date"),
		typ:      find("Type"),
		amount:   find("Amount"),
		wallet:   find("Wallet"),
		from:     find("From Wallet"),
		to:       find("To Wallet"),
		category: find("Category"),
		source:   find("Source"),
		note:     find("Note"),
	}
}

// Date-times without an offset are local; a bare date is midnight UTC.
var dateLayouts = []struct {
	layout string
	local  bool
}{
	{time.RFC3339Nano, false},
	{"2006-01-02T15:04:05", true},
	{"2006-01-02 15:04:05", true},
	{"2006-01-02", false},
}

// parseDate returns now for an empty value.
func parseDate(s string, now func() time.Time) (time.Time, bool) {
	if s == "" {
		return now(), true
	}
	for _, l := range dateLayouts {
		loc := time.UTC
		if l.local {
			loc = time.Local
		}
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
