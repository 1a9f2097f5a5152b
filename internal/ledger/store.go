// Package ledger owns wallets, transactions, budgets and liabilities.
//
// Every mutation is a read-validate-apply-write cycle over the snapshot held
// by a storage.Backend, so wallet balances always equal their opening
// balance plus the net effect of the transactions that reference them.
// Validation happens before anything is written; a failed operation leaves
// the persisted snapshot untouched.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
	applog "pocketledger/internal/log"
	"pocketledger/internal/stats"
	"pocketledger/internal/storage"
)

// DefaultRecentLimit is the page size used by RecentTransactions when the
// caller passes a non-positive limit.
const DefaultRecentLimit = 30

// Store is the ledger. It is safe for concurrent use.
type Store struct {
	backend storage.Backend
	now     func() time.Time
	newID   func() string
	logger  *slog.Logger

	mu          sync.Mutex
	lastDeleted *core.Transaction
	revision    uint64

	bus Bus
}

type Option func(*Store)

// WithClock overrides time.Now, used for createdAt stamps and budget months.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides the UUID generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func New(backend storage.Backend, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		now:     time.Now,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(applog.FieldComponent, applog.ComponentLedger)
	return s
}

// Subscribe registers an observer for ledger events.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}

// Revision increases by one on every persisted mutation.
func (s *Store) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// change describes the outcome of a mutation. A nil change means no-op.
type change struct {
	events   []Event
	onCommit func()
}

func (s *Store) load(ctx context.Context) (core.Snapshot, error) {
	raw, err := s.backend.Get(ctx, storage.KeyLedger)
	if errors.Is(err, storage.ErrNotFound) {
		return core.EmptySnapshot(), nil
	}
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("load ledger: %w", err)
	}
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		return core.Snapshot{}, fmt.Errorf("decode stored ledger: %w", err)
	}
	return snap, nil
}

func (s *Store) save(ctx context.Context, snap core.Snapshot) error {
	raw, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, storage.KeyLedger, raw); err != nil {
		return fmt.Errorf("persist ledger: %w", err)
	}
	return nil
}

// update runs fn against a freshly loaded snapshot and persists the result.
// Events are published after the lock is released.
func (s *Store) update(ctx context.Context, op string, fn func(*core.Snapshot) (*change, error)) error {
	s.mu.Lock()
	snap, err := s.load(ctx)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	ch, err := fn(&snap)
	if err != nil {
		s.mu.Unlock()
		s.logger.DebugContext(ctx, "Ledger operation rejected", applog.FieldOperation, op, applog.FieldError, err)
		return err
	}
	if ch == nil {
		s.mu.Unlock()
		return nil
	}
	snap.Version = core.SnapshotVersion
	if err := s.save(ctx, snap); err != nil {
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "Failed to persist ledger", applog.FieldOperation, op, applog.FieldError, err)
		return err
	}
	if ch.onCommit != nil {
		ch.onCommit()
	}
	s.revision++
	rev := s.revision
	s.mu.Unlock()

	fields := applog.NewFields().WithOperation(op).WithRevision(rev)
	for _, e := range ch.events {
		if tx := e.Transaction; tx != nil {
			fields.WithTransaction(tx.ID, string(tx.Type), tx.Amount.String(), tx.WalletID)
			break
		}
	}
	s.logger.DebugContext(ctx, "Ledger updated", fields.ToSlice()...)
	for _, e := range ch.events {
		e.Revision = rev
		s.bus.Publish(e)
	}
	return nil
}

func changed(op string) *change {
	return &change{events: []Event{{Kind: EventChanged, Op: op}}}
}

// Snapshot returns a copy of the current ledger state.
func (s *Store) Snapshot(ctx context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) Wallets(ctx context.Context) ([]core.Wallet, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Wallets, nil
}

func (s *Store) Wallet(ctx context.Context, id string) (core.Wallet, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return core.Wallet{}, err
	}
	i := snap.WalletIndex(id)
	if i < 0 {
		return core.Wallet{}, core.ErrWalletNotFound
	}
	return snap.Wallets[i], nil
}

// Transactions returns every transaction, newest first.
func (s *Store) Transactions(ctx context.Context) ([]core.Transaction, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	core.SortNewestFirst(snap.Transactions)
	return snap.Transactions, nil
}

// RecentTransactions returns at most limit transactions, newest first.
func (s *Store) RecentTransactions(ctx context.Context, limit int) ([]core.Transaction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	txs, err := s.Transactions(ctx)
	if err != nil {
		return nil, err
	}
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

func (s *Store) Budgets(ctx context.Context) ([]core.Budget, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Budgets, nil
}

func (s *Store) Liabilities(ctx context.Context) ([]core.Liability, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Liabilities, nil
}

func (s *Store) TotalBalance(ctx context.Context) (decimal.Decimal, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.TotalBalance(), nil
}

// BudgetUsage evaluates every budget against the current calendar month.
func (s *Store) BudgetUsage(ctx context.Context) ([]stats.BudgetUsage, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return stats.EvaluateBudgets(snap.Budgets, snap.Transactions, s.now()), nil
}

// CanUndo reports whether a deleted transaction is waiting in the undo buffer.
func (s *Store) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDeleted != nil
}

// SeedIfEmpty creates a cash and a bank wallet when the ledger has none.
func (s *Store) SeedIfEmpty(ctx context.Context) error {
	return s.update(ctx, OpSeed, func(snap *core.Snapshot) (*change, error) {
		if len(snap.Wallets) > 0 {
			return nil, nil
		}
		now := s.now()
		snap.Wallets = append(snap.Wallets,
			core.Wallet{ID: s.newID(), Name: "Hand Cash", Type: core.WalletCash, CreatedAt: now},
			core.Wallet{ID: s.newID(), Name: "Main Bank", Type: core.WalletBank, CreatedAt: now},
		)
		return changed(OpSeed), nil
	})
}

// Reset empties the ledger and the undo buffer.
func (s *Store) Reset(ctx context.Context) error {
	return s.update(ctx, OpReset, func(snap *core.Snapshot) (*change, error) {
		*snap = core.EmptySnapshot()
		ch := changed(OpReset)
		ch.onCommit = func() { s.lastDeleted = nil }
		return ch, nil
	})
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t
}
