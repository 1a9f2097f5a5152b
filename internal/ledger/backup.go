package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
)

// envelope keeps raw collections so absent and empty can be told apart.
type envelope struct {
	Version      *int            `json:"version"`
	Wallets      json.RawMessage `json:"wallets"`
	Transactions json.RawMessage `json:"transactions"`
	Budgets      json.RawMessage `json:"budgets"`
	Liabilities  json.RawMessage `json:"liabilities"`
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// EncodeSnapshot renders the current-version backup document.
func EncodeSnapshot(snap core.Snapshot) ([]byte, error) {
	out := core.EmptySnapshot()
	out.Wallets = append(out.Wallets, snap.Wallets...)
	out.Transactions = append(out.Transactions, snap.Transactions...)
	out.Budgets = append(out.Budgets, snap.Budgets...)
	out.Liabilities = append(out.Liabilities, snap.Liabilities...)
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

// DecodeSnapshot parses and validates a backup document, upgrading older
// schema versions. Documents without a version field are version 0: their
// wallets carry no opening balance, which is derived from the transaction
// history, and budgets or liabilities may be missing.
func DecodeSnapshot(raw []byte) (core.Snapshot, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return core.EmptySnapshot(), nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return core.Snapshot{}, fmt.Errorf("%w: %v", core.ErrInvalidBackup, err)
	}

	version := 0
	if env.Version != nil {
		version = *env.Version
	}
	if version < 0 {
		return core.Snapshot{}, fmt.Errorf("%w: negative version %d", core.ErrInvalidBackup, version)
	}
	if version > core.SnapshotVersion {
		return core.Snapshot{}, fmt.Errorf("%w: %w %d", core.ErrInvalidBackup, core.ErrUnsupportedVersion, version)
	}
	if !present(env.Wallets) || !present(env.Transactions) {
		return core.Snapshot{}, fmt.Errorf("%w: wallets and transactions are required", core.ErrInvalidBackup)
	}

	snap := core.EmptySnapshot()
	if err := decodeCollection(env.Wallets, &snap.Wallets, "wallets"); err != nil {
		return core.Snapshot{}, err
	}
	if err := decodeCollection(env.Transactions, &snap.Transactions, "transactions"); err != nil {
		return core.Snapshot{}, err
	}
	if present(env.Budgets) {
		if err := decodeCollection(env.Budgets, &snap.Budgets, "budgets"); err != nil {
			return core.Snapshot{}, err
		}
	}
	if present(env.Liabilities) {
		if err := decodeCollection(env.Liabilities, &snap.Liabilities, "liabilities"); err != nil {
			return core.Snapshot{}, err
		}
	}

	if version == 0 {
		deriveOpeningBalances(&snap)
	}
	if err := validateSnapshot(snap); err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

func decodeCollection[T any](raw json.RawMessage, dst *[]T, name string) error {
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("%w: %s: %v", core.ErrInvalidBackup, name, err)
	}
	if items != nil {
		*dst = items
	}
	return nil
}

func deriveOpeningBalances(snap *core.Snapshot) {
	net := netByWallet(snap.Transactions)
	for i := range snap.Wallets {
		w := &snap.Wallets[i]
		w.OpeningBalance = w.Balance.Sub(net[w.ID])
	}
}

func netByWallet(txs []core.Transaction) map[string]decimal.Decimal {
	net := map[string]decimal.Decimal{}
	for _, tx := range txs {
		for id, delta := range core.NetEffect(tx) {
			net[id] = net[id].Add(delta)
		}
	}
	return net
}

func validateSnapshot(snap core.Snapshot) error {
	wallets := make(map[string]struct{}, len(snap.Wallets))
	for _, w := range snap.Wallets {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("%w: wallet %q: %v", core.ErrInvalidBackup, w.ID, err)
		}
		if _, dup := wallets[w.ID]; dup {
			return fmt.Errorf("%w: duplicate wallet %q", core.ErrInvalidBackup, w.ID)
		}
		wallets[w.ID] = struct{}{}
	}

	txs := make(map[string]struct{}, len(snap.Transactions))
	for _, tx := range snap.Transactions {
		if tx.ID == "" {
			return fmt.Errorf("%w: transaction without id", core.ErrInvalidBackup)
		}
		if _, dup := txs[tx.ID]; dup {
			return fmt.Errorf("%w: duplicate transaction %q", core.ErrInvalidBackup, tx.ID)
		}
		txs[tx.ID] = struct{}{}
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: transaction %q: %v", core.ErrInvalidBackup, tx.ID, err)
		}
		for _, id := range tx.WalletIDs() {
			if _, ok := wallets[id]; !ok {
				return fmt.Errorf("%w: transaction %q references unknown wallet %q", core.ErrInvalidBackup, tx.ID, id)
			}
		}
	}

	budgets := make(map[string]struct{}, len(snap.Budgets))
	for _, b := range snap.Budgets {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: budget %q: %v", core.ErrInvalidBackup, b.Category, err)
		}
		if _, dup := budgets[b.Category]; dup {
			return fmt.Errorf("%w: duplicate budget %q", core.ErrInvalidBackup, b.Category)
		}
		budgets[b.Category] = struct{}{}
	}

	liabilities := make(map[string]struct{}, len(snap.Liabilities))
	for _, l := range snap.Liabilities {
		if l.ID == "" {
			return fmt.Errorf("%w: liability without id", core.ErrInvalidBackup)
		}
		if _, dup := liabilities[l.ID]; dup {
			return fmt.Errorf("%w: duplicate liability %q", core.ErrInvalidBackup, l.ID)
		}
		liabilities[l.ID] = struct{}{}
		if err := l.Validate(); err != nil {
			return fmt.Errorf("%w: liability %q: %v", core.ErrInvalidBackup, l.ID, err)
		}
	}
	return nil
}

// ExportBackup serialises the whole ledger.
func (s *Store) ExportBackup(ctx context.Context) ([]byte, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return EncodeSnapshot(snap)
}

// ImportBackup replaces the ledger wholesale and clears the undo buffer.
// On ErrInvalidBackup the existing ledger is left as it was.
func (s *Store) ImportBackup(ctx context.Context, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%w: empty document", core.ErrInvalidBackup)
	}
	imported, err := DecodeSnapshot(data)
	if err != nil {
		return err
	}
	return s.update(ctx, OpImportBackup, func(snap *core.Snapshot) (*change, error) {
		*snap = imported
		ch := changed(OpImportBackup)
		ch.onCommit = func() { s.lastDeleted = nil }
		return ch, nil
	})
}
