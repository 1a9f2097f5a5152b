package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

type LiabilityInput struct {
	Direction core.LiabilityDirection
	Person    string
	Amount    decimal.Decimal
	DueDate   *time.Time
	Note      string
}

// LiabilityPatch lists the fields to change; nil fields are kept.
type LiabilityPatch struct {
	Direction *core.LiabilityDirection
	Person    *string
	Amount    *decimal.Decimal
	Status    *core.LiabilityStatus
	Note      *string
	DueDate   *time.Time
	// ClearDueDate removes the due date and wins over DueDate.
	ClearDueDate bool
}

// AddLiability records a debt. New liabilities always start unpaid.
// Liabilities never touch wallet balances.
func (s *Store) AddLiability(ctx context.Context, in LiabilityInput) (string, error) {
	l := core.Liability{
		ID:        s.newID(),
		Direction: in.Direction,
		Person:    strings.TrimSpace(in.Person),
		Amount:    in.Amount,
		DueDate:   in.DueDate,
		Status:    core.Unpaid,
		Note:      in.Note,
		CreatedAt: s.now(),
	}
	if err := l.Validate(); err != nil {
		return "", err
	}
	err := s.update(ctx, OpAddLiability, func(snap *core.Snapshot) (*change, error) {
		snap.Liabilities = append(snap.Liabilities, l)
		return changed(OpAddLiability), nil
	})
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// UpdateLiability ignores unknown ids.
func (s *Store) UpdateLiability(ctx context.Context, id string, patch LiabilityPatch) error {
	return s.update(ctx, OpUpdateLiability, func(snap *core.Snapshot) (*change, error) {
		i := snap.LiabilityIndex(id)
		if i < 0 {
			return nil, nil
		}
		next := patch.apply(snap.Liabilities[i])
		if err := next.Validate(); err != nil {
			return nil, err
		}
		snap.Liabilities[i] = next
		return changed(OpUpdateLiability), nil
	})
}

func (s *Store) DeleteLiability(ctx context.Context, id string) error {
	return s.update(ctx, OpDeleteLiability, func(snap *core.Snapshot) (*change, error) {
		i := snap.LiabilityIndex(id)
		if i < 0 {
			return nil, nil
		}
		snap.Liabilities = append(snap.Liabilities[:i], snap.Liabilities[i+1:]...)
		return changed(OpDeleteLiability), nil
	})
}

func (p LiabilityPatch) apply(l core.Liability) core.Liability {
	if p.Direction != nil {
		l.Direction = *p.Direction
	}
	if p.Person != nil {
		l.Person = strings.TrimSpace(*p.Person)
	}
	if p.Amount != nil {
		l.Amount = *p.Amount
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Note != nil {
		l.Note = *p.Note
	}
	if p.DueDate != nil {
		due := *p.DueDate
		l.DueDate = &due
	}
	if p.ClearDueDate {
		l.DueDate = nil
	}
	return l
}
