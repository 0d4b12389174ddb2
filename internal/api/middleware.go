package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an ID and attaches a request-scoped
// logger to the context.
func requestLogger(base zerolog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, reqID)

			logger := base.With().Str("request_id", reqID).Logger()
			ctx := logger.WithContext(r.Context())

			rec := &statusRecorder{ResponseWriter: w}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(ctx))
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request complete")
		})
	}
}

// instrument records request count and latency per route template.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tmpl
			}
		}

		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rv := recover(); rv != nil {
				if rv == http.ErrAbortHandler {
					panic(rv)
				}
				zerolog.Ctx(r.Context()).Error().Interface("panic", rv).Str("path", r.URL.Path).Msg("handler panicked")
				respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
