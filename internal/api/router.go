package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handler, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HealthCheckHandler).Methods(http.MethodGet)

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(requestLogger(log), instrument, recoverer)

	apiV1.HandleFunc("/books", h.CreateBookHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/books", h.ListBooksHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/books/{id:[0-9]+}", h.GetBookHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/books/{id:[0-9]+}", h.UpdateBookHandler).Methods(http.MethodPatch)
	apiV1.HandleFunc("/books/{id:[0-9]+}/similar", h.SimilarBooksHandler).Methods(http.MethodGet)

	apiV1.HandleFunc("/students", h.CreateStudentHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/students/{id:[0-9]+}", h.GetStudentHandler).Methods(http.MethodGet)

	apiV1.HandleFunc("/loans", h.CreateLoanHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/loans", h.ListLoansHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/loans/overdue", h.OverdueLoansHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/loans/bulk", h.BulkTransitionHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/loans/{id:[0-9]+}", h.GetLoanHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/loans/{id:[0-9]+}/transitions", h.TransitionLoanHandler).Methods(http.MethodPost)
	apiV1.HandleFunc("/loans/{id:[0-9]+}/rating", h.RateLoanHandler).Methods(http.MethodPost)

	apiV1.HandleFunc("/search", h.SearchHandler).Methods(http.MethodGet)
	apiV1.HandleFunc("/analytics", h.AnalyticsHandler).Methods(http.MethodGet)

	return r
}
