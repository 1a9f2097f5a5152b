package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	WalletCash WalletType = "cash"
	WalletBank WalletType = "bank"
)

const (
	Income   TransactionType = "income"
	Expense  TransactionType = "expense"
	Transfer TransactionType = "transfer"
)

const (
	IOwe   LiabilityDirection = "i_owe"
	OwesMe LiabilityDirection = "owes_me"
)

const (
	Unpaid  LiabilityStatus = "unpaid"
	Partial LiabilityStatus = "partial"
	Paid    LiabilityStatus = "paid"
)

// DefaultCategory is used when an expense carries no category.
const DefaultCategory = "Other"

type (
	WalletType         string
	TransactionType    string
	LiabilityDirection string
	LiabilityStatus    string

	Wallet struct {
		ID             string          `json:"id"`
		Name           string          `json:"name"`
		Type           WalletType      `json:"type"`
		Balance        decimal.Decimal `json:"balance"`
		OpeningBalance decimal.Decimal `json:"openingBalance"`
		CreatedAt      time.Time       `json:"createdAt"`
	}

	Transaction struct {
		ID           string          `json:"id"`
		Type         TransactionType `json:"type"`
		Amount       decimal.Decimal `json:"amount"`
		Note         string          `json:"note,omitempty"`
		Category     string          `json:"category,omitempty"` // expenses only
		Source       string          `json:"source,omitempty"`   // incomes only
		WalletID     string          `json:"walletId,omitempty"`
		FromWalletID string          `json:"fromWalletId,omitempty"`
		ToWalletID   string          `json:"toWalletId,omitempty"`
		CreatedAt    time.Time       `json:"createdAt"`
	}

	Budget struct {
		Category  string          `json:"category"`
		Limit     decimal.Decimal `json:"limit"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	Liability struct {
		ID        string             `json:"id"`
		Direction LiabilityDirection `json:"direction"`
		Person    string             `json:"person"`
		Amount    decimal.Decimal    `json:"amount"`
		DueDate   *time.Time         `json:"dueDate,omitempty"`
		Status    LiabilityStatus    `json:"status"`
		Note      string             `json:"note,omitempty"`
		CreatedAt time.Time          `json:"createdAt"`
	}
)

var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrSameWallet         = errors.New("source and destination wallet must differ")
	ErrInvalidBackup      = errors.New("invalid backup")
	ErrUnsupportedVersion = errors.New("unsupported snapshot version")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidWalletType  = errors.New("invalid wallet type")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidLiability   = errors.New("invalid liability")
)

func (t WalletType) Valid() bool {
	return t == WalletCash || t == WalletBank
}

func (t TransactionType) Valid() bool {
	switch t {
	case Income, Expense, Transfer:
		return true
	}
	return false
}

func (d LiabilityDirection) Valid() bool {
	return d == IOwe || d == OwesMe
}

func (s LiabilityStatus) Valid() bool {
	switch s {
	case Unpaid, Partial, Paid:
		return true
	}
	return false
}

// ValidateAmount rejects zero and negative amounts.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}

func (w Wallet) Validate() error {
	if w.ID == "" {
		return fmt.Errorf("wallet without id: %w", ErrEmptyName)
	}
	if strings.TrimSpace(w.Name) == "" {
		return ErrEmptyName
	}
	if !w.Type.Valid() {
		return ErrInvalidWalletType
	}
	return nil
}

// Validate checks the amount and that the wallet linkage matches the type.
// Wallet existence is checked by the ledger, which owns the wallet set.
func (t Transaction) Validate() error {
	if err := ValidateAmount(t.Amount); err != nil {
		return err
	}
	switch t.Type {
	case Income, Expense:
		if t.WalletID == "" {
			return fmt.Errorf("%w: %s requires a wallet", ErrInvalidTransaction, t.Type)
		}
		if t.FromWalletID != "" || t.ToWalletID != "" {
			return fmt.Errorf("%w: %s cannot reference transfer wallets", ErrInvalidTransaction, t.Type)
		}
	case Transfer:
		if t.WalletID != "" {
			return fmt.Errorf("%w: transfer cannot reference a single wallet", ErrInvalidTransaction)
		}
		if t.FromWalletID == "" || t.ToWalletID == "" {
			return fmt.Errorf("%w: transfer requires both wallets", ErrInvalidTransaction)
		}
		if t.FromWalletID == t.ToWalletID {
			return ErrSameWallet
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTransaction, t.Type)
	}
	if t.Category != "" && t.Type != Expense {
		return fmt.Errorf("%w: category is only allowed on expenses", ErrInvalidTransaction)
	}
	if t.Source != "" && t.Type != Income {
		return fmt.Errorf("%w: source is only allowed on incomes", ErrInvalidTransaction)
	}
	return nil
}

// WalletIDs returns every wallet the transaction touches.
func (t Transaction) WalletIDs() []string {
	if t.Type == Transfer {
		return []string{t.FromWalletID, t.ToWalletID}
	}
	return []string{t.WalletID}
}

// CategoryOrDefault returns the category, falling back to DefaultCategory.
func (t Transaction) CategoryOrDefault() string {
	if strings.TrimSpace(t.Category) == "" {
		return DefaultCategory
	}
	return t.Category
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	return ValidateAmount(b.Limit)
}

func (l Liability) Validate() error {
	if !l.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidLiability, l.Direction)
	}
	if strings.TrimSpace(l.Person) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidLiability, ErrEmptyName)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("%w: status %q", ErrInvalidLiability, l.Status)
	}
	return ValidateAmount(l.Amount)
}

var dueDateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// UnmarshalJSON accepts dueDate as an RFC 3339 timestamp or a plain
// calendar date ("2025-03-01"), which is read as midnight UTC.
func (l *Liability) UnmarshalJSON(data []byte) error {
	type plain Liability
	aux := struct {
		*plain
		DueDate *string `json:"dueDate,omitempty"`
	}{plain: (*plain)(l)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	l.DueDate = nil
	if aux.DueDate == nil || strings.TrimSpace(*aux.DueDate) == "" {
		return nil
	}
	raw := strings.TrimSpace(*aux.DueDate)
	for _, layout := range dueDateLayouts {
		if due, err := time.Parse(layout, raw); err == nil {
			l.DueDate = &due
			return nil
		}
	}
	return fmt.Errorf("%w: due date %q", ErrInvalidLiability, raw)
}
