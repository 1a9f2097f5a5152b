package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"pocketledger/internal/core"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.started).Round(time.Second).String(),
	})
}

// handleReady checks that the ledger can be read from its backend.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, httpStatus := "ready", http.StatusOK
	checks := map[string]any{}

	if _, err := s.store.Snapshot(ctx); err != nil {
		checks["ledger"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	if s.sync != nil {
		checks["sync_provider"] = s.sync.Provider()
	}
	checks["report_cache"] = map[string]any{"entries": s.reports.Size()}
	checks["rate_limiter"] = map[string]any{"active_clients": s.rateLimiter.ActiveClients()}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	traceMetrics := s.traceMiddleware.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	cacheStats := s.reports.Stats()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value int64) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %d\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("http_request_duration_avg_us", "Average request duration in microseconds", "gauge", traceMetrics.AverageResponseTime)
	metric("ledger_mutations_total", "Ledger writes made through the API", "counter", s.appMetrics.mutations.Load())
	metric("ledger_revision", "Current ledger revision", "gauge", int64(s.store.Revision()))
	metric("report_cache_hits_total", "Report cache hits", "counter", int64(cacheStats.Hits))
	metric("report_cache_misses_total", "Report cache misses", "counter", int64(cacheStats.Misses))
	metric("report_cache_entries", "Report cache entries", "gauge", int64(cacheStats.Size))
	metric("rate_limit_hits_total", "Requests rejected by the rate limiter", "counter", rateLimitMetrics.TotalHits)
	metric("rate_limit_clients", "Clients tracked by the rate limiter", "gauge", rateLimitMetrics.ClientCount)
	metric("security_suspicious_requests_total", "Requests flagged as suspicious", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Process uptime in seconds", "gauge", int64(time.Since(s.appMetrics.started).Seconds()))
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.PopularPresets())
}

// handleReconcile reports wallets whose balance disagrees with history.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	drifts, err := s.store.Reconcile(r.Context())
	if err != nil {
		writeError(w, r, "reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consistent": len(drifts) == 0,
		"drifts":     drifts,
	})
}
