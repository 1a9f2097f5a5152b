package http

import (
	"net/http"

	"pocketledger/internal/cache"
	applog "pocketledger/internal/log"
	"pocketledger/internal/stats"
)

// Report names served under /api/reports/{report}.
const (
	reportTotals     = "totals"
	reportChart      = "chart"
	reportCategories = "categories"
)

type reportResponse struct {
	Report string         `json:"report"`
	Range  stats.RangeKey `json:"range"`
	Ref    string         `json:"ref"`
	Data   any            `json:"data"`
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := r.PathValue("report")
	switch report {
	case reportTotals, reportChart, reportCategories:
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown report " + report})
		return
	}

	params, err := ParseReportParams(r, s.store.Now().In(s.loc))
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}

	rev := s.store.Revision()
	key := cache.ReportKey(rev, report, string(params.Range), params.Ref)
	data, ok := s.reports.Get(key)
	if !ok {
		txs, err := s.store.Transactions(r.Context())
		if err != nil {
			writeError(w, r, applog.OpRead, err)
			return
		}
		switch report {
		case reportTotals:
			data = stats.ComputeTotals(txs, params.Range, params.Ref)
		case reportChart:
			data = stats.ChartSeries(txs, params.Range, params.Ref)
		case reportCategories:
			data = stats.CategoryBreakdown(txs, params.Range, params.Ref)
		}
		applog.FromContext(r.Context()).DebugContext(r.Context(), "Report computed",
			"report", report,
			applog.FieldRangeKey, string(params.Range),
			applog.FieldRevision, rev)
		// A write that landed meanwhile makes data newer than rev.
		if s.store.Revision() == rev {
			s.reports.Set(key, data)
		}
	}

	writeJSON(w, http.StatusOK, reportResponse{
		Report: report,
		Range:  params.Range,
		Ref:    params.Ref.Format("2006-01-02"),
		Data:   data,
	})
}
