package interchange

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"pocketledger/internal/core"
)

const (
	reportSheet  = "Finance Report"
	walletsSheet = "Wallets"
)

// WriteXLSX renders a two-sheet workbook: the numbered transaction list
// and the wallet balances.
func WriteXLSX(w io.Writer, txs []core.Transaction, wallets []core.Wallet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	names := make(map[string]string, len(wallets))
	for _, wl := range wallets {
		names[wl.ID] = wl.Name
	}
	walletLabel := func(tx core.Transaction) string {
		if tx.Type == core.Transfer {
			return names[tx.FromWalletID] + " → " + names[tx.ToWalletID]
		}
		return names[tx.WalletID]
	}

	f.SetCellValue(reportSheet, "A1", reportSheet)
	headers := []string{"#", "Type", "Amount", "Wallet", "Category / Source", "Date", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 3)
		f.SetCellValue(reportSheet, cell, h)
	}

	for i, tx := range txs {
		row := i + 4
		label := tx.Category
		if tx.Type == core.Income {
			label = tx.Source
		}
		values := []any{
			i + 1,
			strings.ToUpper(string(tx.Type)),
			tx.Amount.InexactFloat64(),
			walletLabel(tx),
			label,
			tx.CreatedAt.Format("2006-01-02"),
			tx.Note,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(reportSheet, cell, v)
		}
	}

	f.SetColWidth(reportSheet, "A", "A", 6)
	f.SetColWidth(reportSheet, "B", "B", 12)
	f.SetColWidth(reportSheet, "C", "C", 12)
	f.SetColWidth(reportSheet, "D", "D", 24)
	f.SetColWidth(reportSheet, "E", "E", 18)
	f.SetColWidth(reportSheet, "F", "F", 12)
	f.SetColWidth(reportSheet, "G", "G", 30)

	if _, err := f.NewSheet(walletsSheet); err != nil {
		return fmt.Errorf("create wallets sheet: %w", err)
	}
	for i, h := range []string{"Name", "Type", "Balance"} {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(walletsSheet, cell, h)
	}
	for i, wl := range wallets {
		row := i + 2
		f.SetCellValue(walletsSheet, fmt.Sprintf("A%d", row), wl.Name)
		f.SetCellValue(walletsSheet, fmt.Sprintf("B%d", row), string(wl.Type))
		f.SetCellValue(walletsSheet, fmt.Sprintf("C%d", row), wl.Balance.InexactFloat64())
	}
	f.SetColWidth(walletsSheet, "A", "A", 24)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
