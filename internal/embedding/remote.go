package embedding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
)

var (
	embedRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_embedding_requests_total",
		Help: "Embedding server calls, labeled by result",
	}, []string{"result"})

	embedLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "library_embedding_duration_seconds",
		Help:    "Latency of embedding server calls",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"model"})
)

type RemoteOptions struct {
	URL              string
	Model            string
	Dimension        int
	BatchSize        int
	Timeout          time.Duration
	BreakerFailures  uint32
	BreakerOpenFor   time.Duration
	BreakerHalfOpenN uint32
	Client           *http.Client
}

// Remote calls a text-embeddings-inference compatible server:
//
//	POST {URL}/embed {"inputs": ["..."], "normalize": false}  ->  [[0.1, ...], ...]
type Remote struct {
	url     string
	model   string
	dim     int
	batch   int
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[][]float32]
	log     zerolog.Logger
}

type embedRequest struct {
	Inputs    []string `json:"inputs"`
	Normalize bool     `json:"normalize"`
}

func NewRemote(opts RemoteOptions, log zerolog.Logger) *Remote {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	r := &Remote{
		url:    strings.TrimRight(opts.URL, "/"),
		model:  opts.Model,
		dim:    opts.Dimension,
		batch:  opts.BatchSize,
		client: client,
		log:    log.With().Str("component", "embedding").Logger(),
	}
	r.breaker = gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embedding:" + opts.Model,
		MaxRequests: opts.BreakerHalfOpenN,
		Timeout:     opts.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("embedding breaker state changed")
		},
	})
	return r
}

func (r *Remote) Name() string   { return r.model }
func (r *Remote) Dimension() int { return r.dim }

// Probe embeds a single word to check the server is up and serves the
// configured dimensionality.
func (r *Remote) Probe(ctx context.Context) error {
	_, err := r.Embed(ctx, []string{"probe"})
	return err
}

func (r *Remote) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += r.batch {
		end := min(start+r.batch, len(texts))
		chunk := texts[start:end]

		vecs, err := r.breaker.Execute(func() ([][]float32, error) {
			return r.post(ctx, chunk)
		})
		if err != nil {
			embedRequests.WithLabelValues("error").Inc()
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
			}
			return nil, err
		}
		embedRequests.WithLabelValues("ok").Inc()
		out = append(out, vecs...)
	}
	return out, nil
}

func (r *Remote) post(ctx context.Context, texts []string) ([][]float32, error) {
	timer := prometheus.NewTimer(embedLatency.WithLabelValues(r.model))
	defer timer.ObserveDuration()

	body, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embedding server returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var vecs [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vecs); err != nil {
		return nil, fmt.Errorf("decoding embeddings: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d inputs", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if len(v) != r.dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, model %s expects %d", i, len(v), r.model, r.dim)
		}
	}
	return vecs, nil
}
