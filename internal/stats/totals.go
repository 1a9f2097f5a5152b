package stats

import (
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

// Totals summarises income and expense inside a range. Transfers are excluded.
type Totals struct {
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
	Net     decimal.Decimal `json:"net"`
}

// Point is one chart bucket.
type Point struct {
	Label   string          `json:"label"`
	Income  decimal.Decimal `json:"income"`
	Expense decimal.Decimal `json:"expense"`
}

func ComputeTotals(txs []core.Transaction, k RangeKey, ref time.Time) Totals {
	r := Bounds(k, ref)
	income, expense := decimal.Zero, decimal.Zero
	for _, tx := range txs {
		if !r.Contains(tx.CreatedAt) {
			continue
		}
		switch tx.Type {
		case core.Income:
			income = income.Add(tx.Amount)
		case core.Expense:
			expense = expense.Add(tx.Amount)
		}
	}
	return Totals{
		From:    r.From,
		To:      r.To,
		Income:  income,
		Expense: expense,
		Net:     income.Sub(expense),
	}
}

// ChartSeries buckets in-range income and expense: 24 hours for a day,
// Mon..Sun for a week, one bucket per day for a month and per month for a
// year.
func ChartSeries(txs []core.Transaction, k RangeKey, ref time.Time) []Point {
	res := ResolverFor(k)
	r := res.Bounds(ref)
	labels := res.Labels(ref)

	points := make([]Point, len(labels))
	for i, l := range labels {
		points[i] = Point{Label: l, Income: decimal.Zero, Expense: decimal.Zero}
	}

	loc := ref.Location()
	for _, tx := range txs {
		if !r.Contains(tx.CreatedAt) {
			continue
		}
		idx := clamp(res.Bucket(tx.CreatedAt.In(loc)), 0, len(points)-1)
		switch tx.Type {
		case core.Income:
			points[idx].Income = points[idx].Income.Add(tx.Amount)
		case core.Expense:
			points[idx].Expense = points[idx].Expense.Add(tx.Amount)
		}
	}
	return points
}
