package ledger

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

// SetBudget creates or replaces the limit for a category.
func (s *Store) SetBudget(ctx context.Context, category string, limit decimal.Decimal) error {
	b := core.Budget{Category: strings.TrimSpace(category), Limit: limit, CreatedAt: s.now()}
	if err := b.Validate(); err != nil {
		return err
	}
	return s.update(ctx, OpSetBudget, func(snap *core.Snapshot) (*change, error) {
		if i := snap.BudgetIndex(b.Category); i >= 0 {
			snap.Budgets[i].Limit = b.Limit
		} else {
			snap.Budgets = append(snap.Budgets, b)
		}
		return changed(OpSetBudget), nil
	})
}

func (s *Store) RemoveBudget(ctx context.Context, category string) error {
	return s.update(ctx, OpRemoveBudget, func(snap *core.Snapshot) (*change, error) {
		i := snap.BudgetIndex(strings.TrimSpace(category))
		if i < 0 {
			return nil, nil
		}
		snap.Budgets = append(snap.Budgets[:i], snap.Budgets[i+1:]...)
		return changed(OpRemoveBudget), nil
	})
}

