package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pocketledger/internal/core"
	"pocketledger/internal/stats"
	"pocketledger/internal/storage"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store   *Store
	backend *storage.MemoryStore
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: storage.NewMemoryStore(),
		now:     time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC),
	}
	seq := 0
	f.store = New(f.backend,
		WithClock(func() time.Time {
			f.now = f.now.Add(time.Second)
			return f.now
		}),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("id-%03d", seq)
		}),
	)
	return f
}

func (f *fixture) wallet(t *testing.T, name string, balance string) string {
	t.Helper()
	id, err := f.store.AddWallet(context.Background(), name, core.WalletBank, dec(balance))
	require.NoError(t, err)
	return id
}

func (f *fixture) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	w, err := f.store.Wallet(context.Background(), id)
	require.NoError(t, err)
	return w.Balance
}

func assertBalance(t *testing.T, f *fixture, id, want string) {
	t.Helper()
	got := f.balance(t, id)
	assert.True(t, got.Equal(dec(want)), "wallet %s balance = %s, want %s", id, got, want)
}

func assertNoDrift(t *testing.T, f *fixture) {
	t.Helper()
	drift, err := f.store.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")
	b := f.wallet(t, "B", "0")

	_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("1000"), WalletID: a, Source: "Salary"})
	require.NoError(t, err)
	assertBalance(t, f, a, "1000")

	foodID, err := f.store.AddExpense(ctx, ExpenseInput{Amount: dec("300"), WalletID: a, Category: "Food"})
	require.NoError(t, err)
	assertBalance(t, f, a, "700")

	_, err = f.store.AddTransfer(ctx, TransferInput{Amount: dec("200"), FromWalletID: a, ToWalletID: b})
	require.NoError(t, err)
	assertBalance(t, f, a, "500")
	assertBalance(t, f, b, "200")

	require.NoError(t, f.store.DeleteTransaction(ctx, foodID))
	assertBalance(t, f, a, "800")

	require.NoError(t, f.store.SetBudget(ctx, "Food", dec("1000")))
	usage, err := f.store.BudgetUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.True(t, usage[0].Spent.IsZero())
	assert.Equal(t, stats.BudgetOK, usage[0].Status)

	assertNoDrift(t, f)
}

func TestAddIncomeThenDeleteRestoresBalance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "50")

	id, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("12.34"), WalletID: a})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteTransaction(ctx, id))

	assertBalance(t, f, a, "50")
	txs, err := f.store.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAddWalletValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.store.AddWallet(ctx, "  ", core.WalletCash, decimal.Zero)
	assert.ErrorIs(t, err, core.ErrEmptyName)

	_, err = f.store.AddWallet(ctx, "Card", "credit", decimal.Zero)
	assert.ErrorIs(t, err, core.ErrInvalidWalletType)

	id, err := f.store.AddWallet(ctx, " Savings ", core.WalletBank, dec("-20"))
	require.NoError(t, err)
	w, err := f.store.Wallet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Savings", w.Name)
	assert.True(t, w.OpeningBalance.Equal(dec("-20")))
}

func TestAddTransactionErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "100")

	_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("10"), WalletID: "missing"})
	assert.ErrorIs(t, err, core.ErrWalletNotFound)

	_, err = f.store.AddExpense(ctx, ExpenseInput{Amount: decimal.Zero, WalletID: a})
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = f.store.AddTransfer(ctx, TransferInput{Amount: dec("10"), FromWalletID: a, ToWalletID: a})
	assert.ErrorIs(t, err, core.ErrSameWallet)

	// same-wallet is reported even when the wallet does not exist
	_, err = f.store.AddTransfer(ctx, TransferInput{Amount: dec("10"), FromWalletID: "x", ToWalletID: "x"})
	assert.ErrorIs(t, err, core.ErrSameWallet)

	_, err = f.store.AddTransfer(ctx, TransferInput{Amount: dec("10"), FromWalletID: a, ToWalletID: "missing"})
	assert.ErrorIs(t, err, core.ErrWalletNotFound)

	assertBalance(t, f, a, "100")
	txs, err := f.store.Transactions(ctx)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestExpenseMayOverdraw(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "10")

	_, err := f.store.AddExpense(ctx, ExpenseInput{Amount: dec("25"), WalletID: a})
	require.NoError(t, err)
	assertBalance(t, f, a, "-15")
}

func TestUndoDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")
	b := f.wallet(t, "B", "0")

	_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("500"), WalletID: a})
	require.NoError(t, err)
	trID, err := f.store.AddTransfer(ctx, TransferInput{Amount: dec("120"), FromWalletID: a, ToWalletID: b, Note: "rent"})
	require.NoError(t, err)

	before, err := f.store.Transactions(ctx)
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteTransaction(ctx, trID))
	assert.True(t, f.store.CanUndo())
	assertBalance(t, f, a, "500")
	assertBalance(t, f, b, "0")

	require.NoError(t, f.store.UndoDelete(ctx))
	assert.False(t, f.store.CanUndo())
	assertBalance(t, f, a, "380")
	assertBalance(t, f, b, "120")

	after, err := f.store.Transactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rev := f.store.Revision()
	require.NoError(t, f.store.UndoDelete(ctx))
	assert.Equal(t, rev, f.store.Revision(), "second undo must be a no-op")
	assertBalance(t, f, a, "380")
}

func TestUndoBufferHoldsOnlyLatestDeletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")

	first, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("10"), WalletID: a})
	require.NoError(t, err)
	second, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("20"), WalletID: a})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteTransaction(ctx, first))
	require.NoError(t, f.store.DeleteTransaction(ctx, second))
	require.NoError(t, f.store.UndoDelete(ctx))

	txs, err := f.store.Transactions(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, second, txs[0].ID)
	assertBalance(t, f, a, "20")
}

func TestDeleteUnknownIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.wallet(t, "A", "0")

	rev := f.store.Revision()
	require.NoError(t, f.store.DeleteTransaction(ctx, "nope"))
	require.NoError(t, f.store.UpdateTransaction(ctx, "nope", TransactionPatch{Note: ptr("x")}))
	require.NoError(t, f.store.UpdateLiability(ctx, "nope", LiabilityPatch{Note: ptr("x")}))
	require.NoError(t, f.store.DeleteLiability(ctx, "nope"))
	require.NoError(t, f.store.RemoveBudget(ctx, "Nope"))
	assert.Equal(t, rev, f.store.Revision())
	assert.False(t, f.store.CanUndo())
}

func ptr[T any](v T) *T { return &v }

func TestUpdateTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "100")
	b := f.wallet(t, "B", "0")

	id, err := f.store.AddExpense(ctx, ExpenseInput{Amount: dec("30"), WalletID: a, Category: "Food"})
	require.NoError(t, err)

	t.Run("amount", func(t *testing.T) {
		require.NoError(t, f.store.UpdateTransaction(ctx, id, TransactionPatch{Amount: ptr(dec("45"))}))
		assertBalance(t, f, a, "55")
	})

	t.Run("move to another wallet", func(t *testing.T) {
		require.NoError(t, f.store.UpdateTransaction(ctx, id, TransactionPatch{WalletID: ptr(b)}))
		assertBalance(t, f, a, "100")
		assertBalance(t, f, b, "-45")
	})

	t.Run("change type with matching linkage", func(t *testing.T) {
		transfer := core.Transfer
		require.NoError(t, f.store.UpdateTransaction(ctx, id, TransactionPatch{
			Type:         &transfer,
			WalletID:     ptr(""),
			Category:     ptr(""),
			FromWalletID: ptr(a),
			ToWalletID:   ptr(b),
		}))
		assertBalance(t, f, a, "55")
		assertBalance(t, f, b, "45")
	})

	t.Run("stale linkage is rejected", func(t *testing.T) {
		income := core.Income
		err := f.store.UpdateTransaction(ctx, id, TransactionPatch{Type: &income})
		assert.ErrorIs(t, err, core.ErrInvalidTransaction)
		assertBalance(t, f, a, "55")
		assertBalance(t, f, b, "45")
	})

	t.Run("unknown wallet is rejected", func(t *testing.T) {
		err := f.store.UpdateTransaction(ctx, id, TransactionPatch{ToWalletID: ptr("ghost")})
		assert.ErrorIs(t, err, core.ErrWalletNotFound)
		assertBalance(t, f, b, "45")
	})

	t.Run("invalid amount is rejected", func(t *testing.T) {
		err := f.store.UpdateTransaction(ctx, id, TransactionPatch{Amount: ptr(dec("-1"))})
		assert.ErrorIs(t, err, core.ErrInvalidAmount)
	})

	assertNoDrift(t, f)
}

func TestBudgets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.SetBudget(ctx, "Food", dec("100")))
	require.NoError(t, f.store.SetBudget(ctx, "Food", dec("250")))
	require.NoError(t, f.store.SetBudget(ctx, "Rent", dec("900")))

	budgets, err := f.store.Budgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 2)
	assert.True(t, budgets[0].Limit.Equal(dec("250")))

	assert.ErrorIs(t, f.store.SetBudget(ctx, " ", dec("1")), core.ErrEmptyCategory)
	assert.ErrorIs(t, f.store.SetBudget(ctx, "Fun", decimal.Zero), core.ErrInvalidAmount)

	require.NoError(t, f.store.RemoveBudget(ctx, "Food"))
	budgets, err = f.store.Budgets(ctx)
	require.NoError(t, err)
	require.Len(t, budgets, 1)
	assert.Equal(t, "Rent", budgets[0].Category)
}

func TestLiabilities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "100")
	due := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	id, err := f.store.AddLiability(ctx, LiabilityInput{Direction: core.IOwe, Person: "Sam", Amount: dec("40"), DueDate: &due})
	require.NoError(t, err)

	ls, err := f.store.Liabilities(ctx)
	require.NoError(t, err)
	require.Len(t, ls, 1)
	assert.Equal(t, core.Unpaid, ls[0].Status)

	paid := core.Paid
	require.NoError(t, f.store.UpdateLiability(ctx, id, LiabilityPatch{Status: &paid, ClearDueDate: true}))
	ls, err = f.store.Liabilities(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Paid, ls[0].Status)
	assert.Nil(t, ls[0].DueDate)

	bad := core.LiabilityStatus("forgiven")
	assert.ErrorIs(t, f.store.UpdateLiability(ctx, id, LiabilityPatch{Status: &bad}), core.ErrInvalidLiability)

	_, err = f.store.AddLiability(ctx, LiabilityInput{Direction: "lent", Person: "Sam", Amount: dec("1")})
	assert.ErrorIs(t, err, core.ErrInvalidLiability)

	// decoupled from balances
	assertBalance(t, f, a, "100")

	require.NoError(t, f.store.DeleteLiability(ctx, id))
	ls, err = f.store.Liabilities(ctx)
	require.NoError(t, err)
	assert.Empty(t, ls)
}

func TestRecentTransactionsOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")

	for i := 0; i < 35; i++ {
		_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("1"), WalletID: a})
		require.NoError(t, err)
	}
	recent, err := f.store.RecentTransactions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, DefaultRecentLimit)
	for i := 1; i < len(recent); i++ {
		assert.False(t, recent[i].CreatedAt.After(recent[i-1].CreatedAt), "not newest first at %d", i)
	}

	recent, err = f.store.RecentTransactions(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}

func TestSeedIfEmptyAndReset(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.store.SeedIfEmpty(ctx))
	require.NoError(t, f.store.SeedIfEmpty(ctx))
	ws, err := f.store.Wallets(ctx)
	require.NoError(t, err)
	require.Len(t, ws, 2)
	assert.Equal(t, "Hand Cash", ws[0].Name)
	assert.Equal(t, core.WalletCash, ws[0].Type)
	assert.Equal(t, "Main Bank", ws[1].Name)

	id, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("5"), WalletID: ws[0].ID})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteTransaction(ctx, id))

	require.NoError(t, f.store.Reset(ctx))
	assert.False(t, f.store.CanUndo())
	ws, err = f.store.Wallets(ctx)
	require.NoError(t, err)
	assert.Empty(t, ws)
	total, err := f.store.TotalBalance(ctx)
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")

	var got []Event
	unsubscribe := f.store.Subscribe(func(e Event) { got = append(got, e) })

	id, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("10"), WalletID: a})
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteTransaction(ctx, id))

	require.Len(t, got, 3)
	assert.Equal(t, EventChanged, got[0].Kind)
	assert.Equal(t, OpAddIncome, got[0].Op)
	assert.Equal(t, EventChanged, got[1].Kind)
	assert.Equal(t, EventDeleted, got[2].Kind)
	require.NotNil(t, got[2].Transaction)
	assert.Equal(t, id, got[2].Transaction.ID)
	assert.Equal(t, got[1].Revision, got[2].Revision)
	assert.Greater(t, got[1].Revision, got[0].Revision)

	// failures and no-ops are silent
	_, err = f.store.AddIncome(ctx, IncomeInput{Amount: dec("10"), WalletID: "missing"})
	require.Error(t, err)
	require.NoError(t, f.store.DeleteTransaction(ctx, "missing"))
	assert.Len(t, got, 3)

	unsubscribe()
	unsubscribe()
	_, err = f.store.AddIncome(ctx, IncomeInput{Amount: dec("1"), WalletID: a})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestObserverSeesPersistedState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "0")

	var seen decimal.Decimal
	f.store.Subscribe(func(Event) {
		w, err := f.store.Wallet(ctx, a)
		if err == nil {
			seen = w.Balance
		}
	})
	_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("7"), WalletID: a})
	require.NoError(t, err)
	assert.True(t, seen.Equal(dec("7")))
}

type failingBackend struct {
	*storage.MemoryStore
	failPut bool
}

func (b *failingBackend) Put(ctx context.Context, key string, value []byte) error {
	if b.failPut {
		return errors.New("disk full")
	}
	return b.MemoryStore.Put(ctx, key, value)
}

func TestPersistenceFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryStore: storage.NewMemoryStore()}
	store := New(backend)

	a, err := store.AddWallet(ctx, "A", core.WalletCash, dec("10"))
	require.NoError(t, err)
	id, err := store.AddIncome(ctx, IncomeInput{Amount: dec("5"), WalletID: a})
	require.NoError(t, err)

	var events int
	store.Subscribe(func(Event) { events++ })

	backend.failPut = true
	rev := store.Revision()
	require.Error(t, store.DeleteTransaction(ctx, id))
	assert.False(t, store.CanUndo(), "undo buffer must not be filled by a failed delete")
	assert.Equal(t, rev, store.Revision())
	assert.Zero(t, events)

	w, err := store.Wallet(ctx, a)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("15")))
}

func TestStateSurvivesNewStoreOnSameBackend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.wallet(t, "A", "3")
	_, err := f.store.AddIncome(ctx, IncomeInput{Amount: dec("4"), WalletID: a})
	require.NoError(t, err)

	reopened := New(f.backend)
	w, err := reopened.Wallet(ctx, a)
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(dec("7")))
}

func TestBalanceInvariantRandomised(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	wallets := []string{f.wallet(t, "A", "100"), f.wallet(t, "B", "0"), f.wallet(t, "C", "-5")}
	rnd := rand.New(rand.NewSource(42))
	var ids []string

	pick := func() string { return wallets[rnd.Intn(len(wallets))] }
	amount := func() decimal.Decimal { return decimal.New(int64(rnd.Intn(10000)+1), -2) }

	for i := 0; i < 300; i++ {
		switch rnd.Intn(6) {
		case 0:
			id, err := f.store.AddIncome(ctx, IncomeInput{Amount: amount(), WalletID: pick()})
			require.NoError(t, err)
			ids = append(ids, id)
		case 1:
			id, err := f.store.AddExpense(ctx, ExpenseInput{Amount: amount(), WalletID: pick(), Category: "Food"})
			require.NoError(t, err)
			ids = append(ids, id)
		case 2:
			from, to := pick(), pick()
			id, err := f.store.AddTransfer(ctx, TransferInput{Amount: amount(), FromWalletID: from, ToWalletID: to})
			if from == to {
				require.ErrorIs(t, err, core.ErrSameWallet)
				continue
			}
			require.NoError(t, err)
			ids = append(ids, id)
		case 3:
			if len(ids) > 0 {
				require.NoError(t, f.store.DeleteTransaction(ctx, ids[rnd.Intn(len(ids))]))
			}
		case 4:
			require.NoError(t, f.store.UndoDelete(ctx))
		case 5:
			if len(ids) > 0 {
				_ = f.store.UpdateTransaction(ctx, ids[rnd.Intn(len(ids))], TransactionPatch{Amount: ptr(amount())})
			}
		}
	}
	assertNoDrift(t, f)

	txs, err := f.store.Transactions(ctx)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, tx := range txs {
		assert.False(t, seen[tx.ID], "duplicate transaction id %s", tx.ID)
		seen[tx.ID] = true
	}
}

func TestMutationsAreLoggedWithLedgerFields(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	store := New(storage.NewMemoryStore(), WithLogger(logger))

	walletID, err := store.AddWallet(ctx, "Cash", core.WalletCash, decimal.Zero)
	require.NoError(t, err)
	txID, err := store.AddIncome(ctx, IncomeInput{Amount: dec("12.5"), WalletID: walletID})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"component":"ledger"`)
	assert.Contains(t, out, `"operation":"add_income"`)
	assert.Contains(t, out, `"transaction_id":"`+txID+`"`)
	assert.Contains(t, out, `"tx_type":"income"`)
	assert.Contains(t, out, `"amount":"12.5"`)
	assert.Contains(t, out, `"wallet_id":"`+walletID+`"`)
	assert.Contains(t, out, `"revision":2`)
}
