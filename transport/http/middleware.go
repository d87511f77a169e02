package http

import (
	nethttp "net/http"
	"time"

	"github.com/gorilla/mux"

	"grafeodb/server/internal/auth"
	"grafeodb/server/internal/correlate"
	"grafeodb/server/internal/logging"
	"grafeodb/server/internal/metrics"
	"grafeodb/server/internal/ratelimit"
)

// requestIDMiddleware attaches a correlation id (spec §4.8) to the context
// and echoes it on the response.
func requestIDMiddleware() mux.MiddlewareFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			id := correlate.Resolve(r.Header.Get(correlate.HeaderName))
			w.Header().Set(correlate.HeaderName, id)
			ctx := logging.WithTraceID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusCapturingWriter struct {
	nethttp.ResponseWriter
	status int
}

func (s *statusCapturingWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusCapturingWriter) Flush() {
	if f, ok := s.ResponseWriter.(nethttp.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs one line per request with the correlation id and
// resulting status, grounded on the pack's trace-id logging middleware.
func loggingMiddleware(log *logging.Logger) mux.MiddlewareFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			sw := &statusCapturingWriter{ResponseWriter: w, status: nethttp.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			log.WithContext(r.Context()).WithField("method", r.Method).
				WithField("path", r.URL.Path).
				WithField("status", sw.status).
				WithField("duration_ms", time.Since(start).Milliseconds()).
				Info("request handled")
		})
	}
}

// authMiddleware enforces the Auth Validator for every non-exempt path
// (spec §4.6).
func authMiddleware(v *auth.Validator) mux.MiddlewareFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			if !v.Enabled() || v.IsExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			cred := auth.FromHTTPRequest(r)
			if err := v.Verify(cred); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitMiddleware enforces the per-peer fixed window (spec §4.7).
func rateLimitMiddleware(l *ratelimit.Limiter) mux.MiddlewareFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			peer := ratelimit.ClientIP(r)
			if err := l.Allow(r.Context(), peer); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// metricsMiddleware records request counters/duration, using the matched
// mux route template as the low-cardinality route label.
func metricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			route := "unmatched"
			if rt := mux.CurrentRoute(r); rt != nil {
				if tmpl, err := rt.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}
			m.RequestsInFlight.WithLabelValues("http").Inc()
			defer m.RequestsInFlight.WithLabelValues("http").Dec()

			sw := &statusCapturingWriter{ResponseWriter: w, status: nethttp.StatusOK}
			start := time.Now()
			next.ServeHTTP(sw, r)
			m.ObserveRequest("http", route, nethttp.StatusText(sw.status), time.Since(start))
		})
	}
}
