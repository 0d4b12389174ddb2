package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/models"
	"github.com/punchamoorthee/libraryops/internal/service"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// statusClientClosedRequest is the nginx convention for a client that hung
// up before the response was ready.
const statusClientClosedRequest = 499

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	catalog *service.CatalogService
	loans   *service.LoanService
	search  *service.SearchService
}

func NewHandler(catalog *service.CatalogService, loans *service.LoanService, search *service.SearchService) *Handler {
	return &Handler{catalog: catalog, loans: loans, search: search}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Fields: map[string]string{"id": "must be a positive integer"}}
	}
	return id, nil
}

func queryInt(r *http.Request, name string) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &domain.ValidationError{Fields: map[string]string{name: "must be a non-negative integer"}}
	}
	return v, nil
}

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &domain.ValidationError{Fields: map[string]string{"body": "malformed JSON: " + err.Error()}}
	}
	return service.Validate(dst)
}

// respondWithDomainError maps ledger and catalog errors onto HTTP statuses.
func respondWithDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondWithJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "validation failed", Fields: ve.Fields})
	case errors.Is(err, domain.ErrInvalidInput):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoCapacity),
		errors.Is(err, domain.ErrDuplicateLoan),
		errors.Is(err, domain.ErrDuplicate):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidRating),
		errors.Is(err, domain.ErrInventoryInvariant):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("client closed request")
		w.WriteHeader(statusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, models.ErrorResponse{Error: message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}
