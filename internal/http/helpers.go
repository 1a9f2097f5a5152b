package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"

	"pocketledger/internal/core"
	"pocketledger/internal/interchange"
	applog "pocketledger/internal/log"
	appsec "pocketledger/internal/security"
	"pocketledger/internal/stats"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) (int, string) {
	var parseErr *csv.ParseError
	switch {
	case errors.Is(err, core.ErrWalletNotFound):
		return http.StatusNotFound, applog.ErrorTypeNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, core.ErrInvalidBackup),
		errors.Is(err, core.ErrSameWallet),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidTransaction),
		errors.Is(err, core.ErrInvalidWalletType),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrInvalidLiability),
		errors.Is(err, stats.ErrInvalidRange),
		errors.Is(err, appsec.ErrInvalidPIN),
		errors.Is(err, appsec.ErrDecrypt),
		errors.Is(err, interchange.ErrCSVHeaders),
		errors.Is(err, interchange.ErrCSVEmpty),
		errors.As(err, &parseErr):
		return http.StatusBadRequest, applog.ErrorTypeValidation
	default:
		return http.StatusInternalServerError, applog.ErrorTypeInternal
	}
}

// writeError logs the failure with the request logger and writes a JSON
// error body. Internal errors are not echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, kind := statusFor(err)
	logger := applog.FromContext(r.Context())
	fields := applog.NewFields().
		WithError(err).
		WithErrorType(kind).
		WithOperation(op)

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
		msg = http.StatusText(status)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

type idResponse struct {
	ID string `json:"id"`
}
