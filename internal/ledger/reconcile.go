package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// Drift is a wallet whose stored balance disagrees with its history.
type Drift struct {
	WalletID string          `json:"walletId"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// Reconcile recomputes every balance as opening balance plus the net effect
// of all transactions and returns the wallets that disagree.
func (s *Store) Reconcile(ctx context.Context) ([]Drift, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	net := netByWallet(snap.Transactions)
	var drift []Drift
	for _, w := range snap.Wallets {
		expected := w.OpeningBalance.Add(net[w.ID])
		if !expected.Equal(w.Balance) {
			drift = append(drift, Drift{WalletID: w.ID, Stored: w.Balance, Expected: expected})
		}
	}
	if len(drift) > 0 {
		s.logger.WarnContext(ctx, "Wallet balances drifted from history", "wallets", len(drift))
	}
	return drift, nil
}
