package stats

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

var hundred = decimal.NewFromInt(100)

// CategoryShare is one slice of the expense breakdown.
type CategoryShare struct {
	Category string          `json:"category"`
	Amount   decimal.Decimal `json:"amount"`
	Percent  int64           `json:"percent"`
}

// CategoryBreakdown groups in-range expenses by category, largest first.
// Expenses without a category count as core.DefaultCategory.
func CategoryBreakdown(txs []core.Transaction, k RangeKey, ref time.Time) []CategoryShare {
	r := Bounds(k, ref)
	sums := map[string]decimal.Decimal{}
	for _, tx := range txs {
		if tx.Type != core.Expense || !r.Contains(tx.CreatedAt) {
			continue
		}
		key := tx.CategoryOrDefault()
		sums[key] = sums[key].Add(tx.Amount)
	}

	total := decimal.Zero
	for _, v := range sums {
		total = total.Add(v)
	}

	out := make([]CategoryShare, 0, len(sums))
	for cat, amt := range sums {
		out = append(out, CategoryShare{
			Category: cat,
			Amount:   amt,
			Percent:  percentOf(amt, total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// percentOf returns round(part/whole*100), or 0 when whole is not positive.
func percentOf(part, whole decimal.Decimal) int64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Mul(hundred).Div(whole).Round(0).IntPart()
}
