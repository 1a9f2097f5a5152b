package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"pocketledger/internal/cloudsync"
	"pocketledger/internal/core"
	"pocketledger/internal/ledger"
	applog "pocketledger/internal/log"
	appsec "pocketledger/internal/security"
	"pocketledger/internal/stats"
	"pocketledger/internal/storage"
)

var testNow = time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC)

type fakeSync struct {
	calls int
	err   error
}

func (f *fakeSync) Provider() string { return cloudsync.ProviderLocal }

func (f *fakeSync) SyncToCloud(context.Context) (cloudsync.State, error) {
	f.calls++
	if f.err != nil {
		return cloudsync.State{}, f.err
	}
	t := testNow
	return cloudsync.State{Provider: cloudsync.ProviderLocal, LastSync: &t}, nil
}

func (f *fakeSync) State(context.Context) (cloudsync.State, error) {
	return cloudsync.State{Provider: cloudsync.ProviderLocal}, nil
}

type testEnv struct {
	srv   *Server
	store *ledger.Store
}

func newTestServer(t *testing.T, cfg Config, deps Deps) *testEnv {
	t.Helper()
	if deps.Ledger == nil {
		deps.Ledger = ledger.New(storage.NewMemoryStore(), ledger.WithClock(func() time.Time { return testNow }))
	}
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.Config{Output: io.Discard})
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RateLimitRPM == 0 {
		cfg.RateLimitRPM = 10_000
	}
	srv := NewServer(cfg, deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: deps.Ledger}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) create(t *testing.T, path, body string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, path, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp idResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ID)
	return resp.ID
}

func (e *testEnv) balance(t *testing.T, walletID string) decimal.Decimal {
	t.Helper()
	rec := e.do(t, http.MethodGet, "/api/wallets/"+walletID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var w core.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &w))
	return w.Balance
}

func assertAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

func TestHealthAndReady(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})

	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ledger":"ok"`)

	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestLedgerScenario(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})

	a := env.create(t, "/api/wallets", `{"name":"A","type":"cash"}`)
	b := env.create(t, "/api/wallets", `{"name":"B","type":"bank"}`)

	env.create(t, "/api/transactions/income", `{"amount":"1000","walletId":"`+a+`","source":"Salary"}`)
	assertAmount(t, "1000", env.balance(t, a))

	expense := env.create(t, "/api/transactions/expense", `{"amount":300,"walletId":"`+a+`","category":"Food"}`)
	assertAmount(t, "700", env.balance(t, a))

	env.create(t, "/api/transactions/transfer", `{"amount":"200","fromWalletId":"`+a+`","toWalletId":"`+b+`"}`)
	assertAmount(t, "500", env.balance(t, a))
	assertAmount(t, "200", env.balance(t, b))

	rec := env.do(t, http.MethodDelete, "/api/transactions/"+expense, "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assertAmount(t, "800", env.balance(t, a))

	rec = env.do(t, http.MethodPut, "/api/budgets", `{"category":"Food","limit":"1000"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/budgets/usage", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var usage []stats.BudgetUsage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	require.Len(t, usage, 1)
	assertAmount(t, "0", usage[0].Spent)
	assert.Equal(t, stats.BudgetOK, usage[0].Status)

	rec = env.do(t, http.MethodPost, "/api/transactions/undo", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assertAmount(t, "500", env.balance(t, a))

	rec = env.do(t, http.MethodGet, "/api/transactions?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Transactions []core.Transaction `json:"transactions"`
		CanUndo      bool               `json:"canUndo"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Transactions, 2)
	assert.False(t, list.CanUndo)

	rec = env.do(t, http.MethodGet, "/api/balance", "")
	assert.Contains(t, rec.Body.String(), `"total":"700"`)

	rec = env.do(t, http.MethodGet, "/api/reconcile", "")
	assert.Contains(t, rec.Body.String(), `"consistent":true`)
}

func TestUpdateTransaction(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	a := env.create(t, "/api/wallets", `{"name":"A"}`)
	id := env.create(t, "/api/transactions/income", `{"amount":"100","walletId":"`+a+`"}`)

	rec := env.do(t, http.MethodPatch, "/api/transactions/"+id, `{"amount":"150,5","note":"bonus"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assertAmount(t, "150.5", env.balance(t, a))

	// Turning an income into a transfer without wallets is stale linkage.
	rec = env.do(t, http.MethodPatch, "/api/transactions/"+id, `{"type":"transfer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertAmount(t, "150.5", env.balance(t, a))

	rec = env.do(t, http.MethodPatch, "/api/transactions/unknown", `{"note":"x"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	a := env.create(t, "/api/wallets", `{"name":"A"}`)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown wallet", http.MethodPost, "/api/transactions/expense", `{"amount":"5","walletId":"nope"}`, http.StatusNotFound},
		{"get unknown wallet", http.MethodGet, "/api/wallets/nope", "", http.StatusNotFound},
		{"negative amount", http.MethodPost, "/api/transactions/income", `{"amount":"-3","walletId":"` + a + `"}`, http.StatusBadRequest},
		{"zero amount", http.MethodPost, "/api/transactions/income", `{"amount":0,"walletId":"` + a + `"}`, http.StatusBadRequest},
		{"same wallet transfer", http.MethodPost, "/api/transactions/transfer", `{"amount":"1","fromWalletId":"` + a + `","toWalletId":"` + a + `"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/wallets", `{"name":"B","colour":"red"}`, http.StatusBadRequest},
		{"bad wallet type", http.MethodPost, "/api/wallets", `{"name":"B","type":"crypto"}`, http.StatusBadRequest},
		{"empty wallet name", http.MethodPost, "/api/wallets", `{"name":"  "}`, http.StatusBadRequest},
		{"empty budget category", http.MethodPut, "/api/budgets", `{"category":"","limit":"10"}`, http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/api/transactions?limit=abc", "", http.StatusBadRequest},
		{"bad range", http.MethodGet, "/api/reports/totals?range=decade", "", http.StatusBadRequest},
		{"bad ref", http.MethodGet, "/api/reports/totals?ref=yesterday", "", http.StatusBadRequest},
		{"unknown report", http.MethodGet, "/api/reports/forecast", "", http.StatusNotFound},
		{"bad date", http.MethodPost, "/api/transactions/income", `{"amount":"1","walletId":"` + a + `","createdAt":"15/05/2024"}`, http.StatusBadRequest},
		{"method not allowed", http.MethodPut, "/api/wallets", `{}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
	assertAmount(t, "0", env.balance(t, a))
}

func TestStatusForInternalErrors(t *testing.T) {
	status, kind := statusFor(errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, applog.ErrorTypeInternal, kind)

	rec := httptest.NewRecorder()
	writeError(rec, httptest.NewRequest(http.MethodGet, "/", nil), "read", errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestReportsAreCachedPerRevision(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	a := env.create(t, "/api/wallets", `{"name":"A"}`)
	env.create(t, "/api/transactions/income", `{"amount":"1000","walletId":"`+a+`"}`)
	env.create(t, "/api/transactions/expense", `{"amount":"250","walletId":"`+a+`","category":"Food"}`)

	get := func() reportResponse {
		rec := env.do(t, http.MethodGet, "/api/reports/totals?range=month&ref=2024-05-01", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp struct {
			reportResponse
			Data stats.Totals `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		resp.reportResponse.Data = resp.Data
		return resp.reportResponse
	}

	first := get()
	totals := first.Data.(stats.Totals)
	assertAmount(t, "1000", totals.Income)
	assertAmount(t, "250", totals.Expense)
	assert.Equal(t, "2024-05-01", first.Ref)

	get()
	assert.Equal(t, uint64(1), env.srv.reports.Stats().Hits)

	env.create(t, "/api/transactions/expense", `{"amount":"50","walletId":"`+a+`"}`)
	after := get().Data.(stats.Totals)
	assertAmount(t, "300", after.Expense)
	assert.Equal(t, uint64(1), env.srv.reports.Stats().Hits)

	rec := env.do(t, http.MethodGet, "/api/reports/categories?range=year", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"category":"Food"`)
	assert.Contains(t, rec.Body.String(), `"category":"Other"`)

	rec = env.do(t, http.MethodGet, "/api/reports/chart?range=week", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var chart struct {
		Data []stats.Point `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &chart))
	assert.Len(t, chart.Data, 7)
}

func TestLiabilities(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	id := env.create(t, "/api/liabilities", `{"direction":"owes_me","person":"Sam","amount":"40","dueDate":"2024-06-01"}`)

	rec := env.do(t, http.MethodPatch, "/api/liabilities/"+id, `{"status":"paid","dueDate":""}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/liabilities", "")
	var list []core.Liability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, core.Paid, list[0].Status)
	assert.Nil(t, list[0].DueDate)

	rec = env.do(t, http.MethodPost, "/api/liabilities", `{"direction":"sideways","person":"Sam","amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/liabilities/"+id, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/liabilities", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestBackupRoundTripEncrypted(t *testing.T) {
	cipher, err := appsec.NewAESCipher("correct horse")
	require.NoError(t, err)

	src := newTestServer(t, Config{}, Deps{Transform: cipher})
	a := src.create(t, "/api/wallets", `{"name":"A","initialBalance":"25"}`)
	src.create(t, "/api/transactions/income", `{"amount":"75","walletId":"`+a+`"}`)

	rec := src.do(t, http.MethodGet, "/api/backup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pocketledger-backup-20240515.enc")
	sealed := rec.Body.String()
	assert.NotContains(t, sealed, `"wallets"`)

	dst := newTestServer(t, Config{}, Deps{Transform: cipher})
	rec = dst.do(t, http.MethodPost, "/api/backup", sealed)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assertAmount(t, "100", dst.balance(t, a))

	want, err := src.store.ExportBackup(context.Background())
	require.NoError(t, err)
	got, err := dst.store.ExportBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	rec = dst.do(t, http.MethodPost, "/api/backup", "not a sealed backup")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertAmount(t, "100", dst.balance(t, a))
}

func TestBackupPlainRejectsInvalid(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	a := env.create(t, "/api/wallets", `{"name":"A","initialBalance":"10"}`)

	rec := env.do(t, http.MethodGet, "/api/backup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"version": 1`)

	for _, body := range []string{"", "{", `{"version":99,"wallets":[],"transactions":[]}`} {
		rec = env.do(t, http.MethodPost, "/api/backup", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	assertAmount(t, "10", env.balance(t, a))
}

func TestCSVAndXLSXExport(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	a := env.create(t, "/api/wallets", `{"name":"Cash"}`)
	env.create(t, "/api/transactions/expense", `{"amount":"12.5","walletId":"`+a+`","category":"Food","note":"lunch"}`)

	rec := env.do(t, http.MethodGet, "/api/export/csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	csvBody := rec.Body.String()
	assert.Contains(t, csvBody, `"lunch"`)

	dst := newTestServer(t, Config{}, Deps{})
	rec = dst.do(t, http.MethodPost, "/api/import/csv", csvBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"imported":1`)

	rec = dst.do(t, http.MethodPost, "/api/import/csv", "just,a,header\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/export/xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestSyncEndpoints(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	rec := env.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	fs := &fakeSync{}
	env = newTestServer(t, Config{}, Deps{Sync: fs})
	rec = env.do(t, http.MethodPost, "/api/sync", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"provider":"local"`)
	assert.Contains(t, rec.Body.String(), `"lastSync":"2024-05-15T10:00:00Z"`)
	assert.Equal(t, 1, fs.calls)

	rec = env.do(t, http.MethodGet, "/api/sync", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	fs.err = errors.New("broker down")
	rec = env.do(t, http.MethodPost, "/api/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPINEndpoints(t *testing.T) {
	vault := appsec.NewPINVault(storage.NewMemoryStore(), appsec.WithBcryptCost(bcrypt.MinCost))
	env := newTestServer(t, Config{}, Deps{PINs: vault})

	rec := env.do(t, http.MethodGet, "/api/pin", "")
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())

	rec = env.do(t, http.MethodPut, "/api/pin", `{"pin":"12"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/pin", `{"pin":"1234"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/pin/verify", `{"pin":"0000"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodPost, "/api/pin/verify", `{"pin":"1234"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/pin", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/pin", "")
	assert.JSONEq(t, `{"enabled":false}`, rec.Body.String())
}

func TestRateLimit(t *testing.T) {
	env := newTestServer(t, Config{RateLimitRPM: 2}, Deps{})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/presets", "").Code)
	}
	rec := env.do(t, http.MethodGet, "/api/presets", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	env := newTestServer(t, Config{}, Deps{})
	req := httptest.NewRequest(http.MethodGet, "/api/wallets", nil)
	req.Header.Set("User-Agent", "sqlmap/1.7")
	rec := httptest.NewRecorder()
	env.srv.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
