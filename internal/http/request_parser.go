package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"pocketledger/internal/core"
	"pocketledger/internal/ledger"
	"pocketledger/internal/stats"
)

const (
	maxJSONBody   = 1 << 20  // 1 MiB
	maxUploadBody = 10 << 20 // backups and CSV files
	maxListLimit  = 1000
)

// errBadRequest marks request parsing failures; they map to 400.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// Amount accepts both JSON numbers and strings ("12,50" included) and is
// parsed with core.ParseAmount.
type Amount string

func (a *Amount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	*a = Amount(b)
	return nil
}

func (a Amount) Decimal() (decimal.Decimal, error) {
	return core.ParseAmount(string(a))
}

// Balance is like Amount but allows zero, for opening balances.
func (a Amount) Balance() (decimal.Decimal, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil || d.IsNegative() {
		return decimal.Zero, core.ErrInvalidAmount
	}
	return d, nil
}

type walletRequest struct {
	Name           string          `json:"name"`
	Type           core.WalletType `json:"type"`
	InitialBalance Amount          `json:"initialBalance"`
}

type transactionRequest struct {
	Amount       Amount `json:"amount"`
	WalletID     string `json:"walletId"`
	FromWalletID string `json:"fromWalletId"`
	ToWalletID   string `json:"toWalletId"`
	Category     string `json:"category"`
	Source       string `json:"source"`
	Note         string `json:"note"`
	// CreatedAt is optional; RFC 3339 or YYYY-MM-DD.
	CreatedAt string `json:"createdAt"`
}

type transactionPatchRequest struct {
	Type         *core.TransactionType `json:"type"`
	Amount       *Amount               `json:"amount"`
	Note         *string               `json:"note"`
	Category     *string               `json:"category"`
	Source       *string               `json:"source"`
	WalletID     *string               `json:"walletId"`
	FromWalletID *string               `json:"fromWalletId"`
	ToWalletID   *string               `json:"toWalletId"`
}

type budgetRequest struct {
	Category string `json:"category"`
	Limit    Amount `json:"limit"`
}

type liabilityRequest struct {
	Direction core.LiabilityDirection `json:"direction"`
	Person    string                  `json:"person"`
	Amount    Amount                  `json:"amount"`
	DueDate   string                  `json:"dueDate"`
	Note      string                  `json:"note"`
}

type liabilityPatchRequest struct {
	Direction *core.LiabilityDirection `json:"direction"`
	Person    *string                  `json:"person"`
	Amount    *Amount                  `json:"amount"`
	Status    *core.LiabilityStatus    `json:"status"`
	Note      *string                  `json:"note"`
	// DueDate "" clears the due date.
	DueDate *string `json:"dueDate"`
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// decodeJSON reads a single JSON object, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if dec.More() {
		return badRequest("unexpected data after JSON body")
	}
	return nil
}

// readBody reads an upload (backup document, CSV file).
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		return nil, badRequest("cannot read body: %v", err)
	}
	return data, nil
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04", "2006-01-02"}

// parseDate parses RFC 3339 timestamps or plain dates in loc.
func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, badRequest("invalid date %q", s)
}

func optionalDate(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return parseDate(s, loc)
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func sanitizePtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := sanitizeInput(*p)
	return &s
}

// parseLimit reads ?limit=; missing means the ledger default.
func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return ledger.DefaultRecentLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badRequest("limit must be a positive integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// ReportParams holds the range kind and reference date of a report query.
type ReportParams struct {
	Range stats.RangeKey
	Ref   time.Time
}

// ParseReportParams reads ?range= (default month) and ?ref= (default now).
func ParseReportParams(r *http.Request, now time.Time) (ReportParams, error) {
	q := r.URL.Query()
	p := ReportParams{Range: stats.Month, Ref: now}

	if v := strings.TrimSpace(q.Get("range")); v != "" {
		k, err := stats.ParseRangeKey(strings.ToLower(v))
		if err != nil {
			return ReportParams{}, badRequest("%v", err)
		}
		p.Range = k
	}
	if v := strings.TrimSpace(q.Get("ref")); v != "" {
		ref, err := parseDate(v, now.Location())
		if err != nil {
			return ReportParams{}, err
		}
		p.Ref = ref
	}
	return p, nil
}

func (req transactionPatchRequest) toPatch() (ledger.TransactionPatch, error) {
	patch := ledger.TransactionPatch{
		Type:         req.Type,
		Note:         sanitizePtr(req.Note),
		Category:     sanitizePtr(req.Category),
		Source:       sanitizePtr(req.Source),
		WalletID:     req.WalletID,
		FromWalletID: req.FromWalletID,
		ToWalletID:   req.ToWalletID,
	}
	if req.Amount != nil {
		d, err := req.Amount.Decimal()
		if err != nil {
			return ledger.TransactionPatch{}, err
		}
		patch.Amount = &d
	}
	return patch, nil
}

func (req liabilityPatchRequest) toPatch(loc *time.Location) (ledger.LiabilityPatch, error) {
	patch := ledger.LiabilityPatch{
		Direction: req.Direction,
		Person:    sanitizePtr(req.Person),
		Status:    req.Status,
		Note:      sanitizePtr(req.Note),
	}
	if req.Amount != nil {
		d, err := req.Amount.Decimal()
		if err != nil {
			return ledger.LiabilityPatch{}, err
		}
		patch.Amount = &d
	}
	if req.DueDate != nil {
		if strings.TrimSpace(*req.DueDate) == "" {
			patch.ClearDueDate = true
		} else {
			due, err := parseDate(*req.DueDate, loc)
			if err != nil {
				return ledger.LiabilityPatch{}, err
			}
			patch.DueDate = &due
		}
	}
	return patch, nil
}
