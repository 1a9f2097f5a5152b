package ledger

import (
	"sync"

	"pocketledger/internal/core"
)

const (
	// EventChanged fires after every successful mutation.
	EventChanged EventKind = "changed"
	// EventDeleted additionally fires after a transaction deletion and
	// carries the deleted transaction.
	EventDeleted EventKind = "deleted"
)

// Operation names carried by events.
const (
	OpAddWallet         = "add_wallet"
	OpAddIncome         = "add_income"
	OpAddExpense        = "add_expense"
	OpAddTransfer       = "add_transfer"
	OpDeleteTransaction = "delete_transaction"
	OpUndoDelete        = "undo_delete"
	OpUpdateTransaction = "update_transaction"
	OpSetBudget         = "set_budget"
	OpRemoveBudget      = "remove_budget"
	OpAddLiability      = "add_liability"
	OpUpdateLiability   = "update_liability"
	OpDeleteLiability   = "delete_liability"
	OpImportBackup      = "import_backup"
	OpSeed              = "seed"
	OpReset             = "reset"
)

type EventKind string

// Event is delivered to subscribers after the new state is persisted.
type Event struct {
	Kind        EventKind         `json:"kind"`
	Op          string            `json:"op"`
	Revision    uint64            `json:"revision"`
	Transaction *core.Transaction `json:"transaction,omitempty"`
}

// Bus fans events out to subscribers in subscription order.
type Bus struct {
	mu   sync.Mutex
	next int
	subs []subscriber
}

type subscriber struct {
	id int
	fn func(Event)
}

// Subscribe registers fn and returns a function that removes it.
// Calling the returned function more than once is harmless.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every subscriber synchronously. Subscribers may
// subscribe or unsubscribe while being notified.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	subs := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()
	for _, s := range subs {
		s.fn(e)
	}
}
