package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

const (
	BudgetOK      BudgetStatus = "ok"
	BudgetWarning BudgetStatus = "warning"
	BudgetOver    BudgetStatus = "over"
)

const (
	warningPercent = 80
	overPercent    = 100
)

type BudgetStatus string

// BudgetUsage reports current-month spending against one budget.
type BudgetUsage struct {
	Budget    core.Budget     `json:"budget"`
	Spent     decimal.Decimal `json:"spent"`
	Remaining decimal.Decimal `json:"remaining"`
	Percent   int64           `json:"percent"`
	Status    BudgetStatus    `json:"status"`
}

// EvaluateBudgets computes usage for every budget over the calendar month
// containing now. Budgets are returned in input order.
func EvaluateBudgets(budgets []core.Budget, txs []core.Transaction, now time.Time) []BudgetUsage {
	r := Bounds(Month, now)
	spent := map[string]decimal.Decimal{}
	for _, tx := range txs {
		if tx.Type != core.Expense || !r.Contains(tx.CreatedAt) {
			continue
		}
		spent[tx.Category] = spent[tx.Category].Add(tx.Amount)
	}

	out := make([]BudgetUsage, 0, len(budgets))
	for _, b := range budgets {
		s := spent[b.Category]
		pct := percentOf(s, b.Limit)
		if pct > overPercent {
			pct = overPercent
		}
		out = append(out, BudgetUsage{
			Budget:    b,
			Spent:     s,
			Remaining: decimal.Max(decimal.Zero, b.Limit.Sub(s)),
			Percent:   pct,
			Status:    statusFor(pct),
		})
	}
	return out
}

func statusFor(pct int64) BudgetStatus {
	switch {
	case pct >= overPercent:
		return BudgetOver
	case pct >= warningPercent:
		return BudgetWarning
	default:
		return BudgetOK
	}
}
