package httpapi

import (
	"net/http"
	"time"

	"orchestrator-core/internal/idutil"
	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/metrics"
)

// Middleware composes request-id propagation, structured request logging,
// Prometheus HTTP metrics, and panic recovery around h, innermost-out per
// SPEC_FULL.md §4.5: request-id, logging, metrics, recovery.
func Middleware(h http.Handler, log logging.Logger, m *metrics.Metrics) http.Handler {
	return withRecovery(withMetrics(withLogging(withRequestID(h), log), m), log)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logID := r.Header.Get("X-Request-Id")
		if logID == "" {
			logID = idutil.NewLogID()
		}
		ctx := idutil.WithLogID(r.Context(), logID)
		w.Header().Set("X-Request-Id", logID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func withLogging(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqLog := logging.WithLogID(log, idutil.LogIDFromContext(r.Context()))
		next.ServeHTTP(rec, r)
		reqLog.Info("http request", logging.Fields{
			"method": r.Method, "path": r.URL.Path, "status": rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}

func withMetrics(next http.Handler, m *metrics.Metrics) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.ObserveHTTP(r.Pattern, r.Method, http.StatusText(rec.status), time.Since(start))
	})
}

func withRecovery(next http.Handler, log logging.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic recovered", logging.Fields{"path": r.URL.Path, "recover": rec})
				WriteError(w, errInternal(rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func errInternal(rec any) error {
	return &panicError{rec: rec}
}

type panicError struct{ rec any }

func (e *panicError) Error() string { return "internal error" }
