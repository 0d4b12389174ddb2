package similarity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_embedding_cache_total",
		Help: "Embedding cache lookups by tier (memory, redis) and result (hit, miss)",
	}, []string{"tier", "result"})

	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "library_similarity_requests_total",
		Help: "Similarity engine calls by operation and result",
	}, []string{"op", "result"})
)
