// Package similarity ranks catalog books against a book or a free-text query
// by cosine similarity of their embeddings.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/embedding"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// SimilarLimit is how many recommendations Similar returns.
	SimilarLimit = 4
	// SearchThreshold is the minimum score for a search hit (exclusive).
	SearchThreshold = 0.1
)

// Catalog lists every book ordered by ID.
type Catalog interface {
	ListBooks(ctx context.Context) ([]domain.Book, error)
}

// ModelSource hands out the shared embedding model. *embedding.Handle implements it.
type ModelSource interface {
	Model(ctx context.Context) (embedding.Model, error)
}

type Recommendation struct {
	BookID int64   `json:"id"`
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Score  float64 `json:"score"`
}

type Hit struct {
	BookID int64   `json:"id"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

type index struct {
	books []domain.Book
	vecs  [][]float32
}

type Engine struct {
	catalog Catalog
	models  ModelSource
	cache   *Cache
	vectors VectorStore
	log     zerolog.Logger

	refresh singleflight.Group
}

// NewEngine wires the engine. vectors may be nil, in which case only the
// in-process cache is used.
func NewEngine(catalog Catalog, models ModelSource, vectors VectorStore, log zerolog.Logger) *Engine {
	return &Engine{
		catalog: catalog,
		models:  models,
		cache:   NewCache(),
		vectors: vectors,
		log:     log.With().Str("component", "similarity").Logger(),
	}
}

// Similar returns up to SimilarLimit books closest to bookID, best first.
// An empty catalog yields no results; a book missing from a non-empty
// catalog is ErrBookNotFound.
func (e *Engine) Similar(ctx context.Context, bookID int64) ([]Recommendation, error) {
	recs, err := e.similar(ctx, bookID)
	observe("similar", err)
	return recs, err
}

func (e *Engine) similar(ctx context.Context, bookID int64) ([]Recommendation, error) {
	idx, err := e.index(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.books) == 0 {
		return []Recommendation{}, nil
	}

	target := slices.IndexFunc(idx.books, func(b domain.Book) bool { return b.ID == bookID })
	if target < 0 {
		return nil, domain.ErrBookNotFound
	}

	recs := make([]Recommendation, 0, len(idx.books)-1)
	for i, b := range idx.books {
		if i == target {
			continue
		}
		recs = append(recs, Recommendation{
			BookID: b.ID,
			Title:  b.Title,
			Author: b.Author,
			Score:  Cosine(idx.vecs[target], idx.vecs[i]),
		})
	}
	slices.SortStableFunc(recs, func(a, b Recommendation) int { return cmpScore(a.Score, b.Score) })
	if len(recs) > SimilarLimit {
		recs = recs[:SimilarLimit]
	}
	return recs, nil
}

// Search returns every book scoring above SearchThreshold against query,
// best first. Equal scores keep catalog order.
func (e *Engine) Search(ctx context.Context, query string) ([]Hit, error) {
	hits, err := e.search(ctx, query)
	observe("search", err)
	return hits, err
}

func (e *Engine) search(ctx context.Context, query string) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Hit{}, nil
	}

	idx, err := e.index(ctx)
	if err != nil {
		return nil, err
	}
	if len(idx.books) == 0 {
		return []Hit{}, nil
	}

	model, err := e.models.Model(ctx)
	if err != nil {
		return nil, err
	}
	qv, err := model.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(qv) != 1 {
		return nil, fmt.Errorf("embedding query: got %d vectors", len(qv))
	}

	hits := make([]Hit, 0)
	for i, b := range idx.books {
		score := Cosine(qv[0], idx.vecs[i])
		if score > SearchThreshold {
			hits = append(hits, Hit{BookID: b.ID, Title: b.Title, Score: score})
		}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmpScore(a.Score, b.Score) })
	return hits, nil
}

// RecommendSimilar is Similar for callers that treat any failure as "no
// recommendations". The error is logged.
func (e *Engine) RecommendSimilar(ctx context.Context, bookID int64) []Recommendation {
	recs, err := e.Similar(ctx, bookID)
	if err != nil {
		e.logFailure(err, "recommendation failed", bookID, "")
		return []Recommendation{}
	}
	return recs
}

// SemanticSearch is Search for callers that treat any failure as "no
// results". The error is logged.
func (e *Engine) SemanticSearch(ctx context.Context, query string) []Hit {
	hits, err := e.Search(ctx, query)
	if err != nil {
		e.logFailure(err, "semantic search failed", 0, query)
		return []Hit{}
	}
	return hits
}

func (e *Engine) logFailure(err error, msg string, bookID int64, query string) {
	ev := e.log.Warn()
	if errors.Is(err, context.Canceled) {
		ev = e.log.Debug()
	}
	if bookID != 0 {
		ev = ev.Int64("book_id", bookID)
	}
	if query != "" {
		ev = ev.Str("query", query)
	}
	ev.Err(err).Msg(msg)
}

// index returns the catalog with one vector per book. Concurrent callers
// share a single refresh; a caller that gives up stops waiting but the
// refresh still completes and fills the cache.
func (e *Engine) index(ctx context.Context) (*index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := e.refresh.DoChan("catalog", func() (any, error) {
		return e.buildIndex(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*index), nil
	}
}

func (e *Engine) buildIndex(ctx context.Context) (*index, error) {
	books, err := e.catalog.ListBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing catalog: %w", err)
	}
	idx := &index{books: books, vecs: make([][]float32, len(books))}
	keep := make(map[int64]struct{}, len(books))
	for _, b := range books {
		keep[b.ID] = struct{}{}
	}
	defer e.cache.Retain(keep)
	if len(books) == 0 {
		return idx, nil
	}

	model, err := e.models.Model(ctx)
	if err != nil {
		return nil, err
	}
	name, dim := model.Name(), model.Dimension()

	hashes := make([]string, len(books))
	var missing []int
	for i, b := range books {
		hashes[i] = ContentHash(b)
		if vec, ok := e.cache.Get(b.ID, name, hashes[i]); ok {
			idx.vecs[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	cacheLookups.WithLabelValues("memory", "hit").Add(float64(len(books) - len(missing)))
	cacheLookups.WithLabelValues("memory", "miss").Add(float64(len(missing)))

	missing = e.fromVectorStore(ctx, idx, books, hashes, missing, name, dim)
	if len(missing) == 0 {
		return idx, nil
	}

	texts := make([]string, len(missing))
	for j, i := range missing {
		texts[j] = ComposeText(books[i])
	}
	vecs, err := model.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding catalog: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding catalog: got %d vectors for %d books", len(vecs), len(texts))
	}

	fresh := make(map[string][]float32, len(missing))
	for j, i := range missing {
		idx.vecs[i] = vecs[j]
		e.cache.Put(books[i].ID, name, hashes[i], vecs[j])
		fresh[hashes[i]] = vecs[j]
	}
	if e.vectors != nil {
		if err := e.vectors.PutVectors(ctx, name, fresh); err != nil {
			e.log.Warn().Err(err).Int("count", len(fresh)).Msg("storing vectors in shared cache")
		}
	}
	e.log.Debug().Int("embedded", len(missing)).Int("catalog", len(books)).Msg("catalog index refreshed")
	return idx, nil
}

// fromVectorStore fills what it can from the shared tier and returns the
// positions still missing. Shared tier errors degrade to misses.
func (e *Engine) fromVectorStore(ctx context.Context, idx *index, books []domain.Book, hashes []string, missing []int, model string, dim int) []int {
	if e.vectors == nil || len(missing) == 0 {
		return missing
	}
	want := make([]string, len(missing))
	for j, i := range missing {
		want[j] = hashes[i]
	}
	found, err := e.vectors.GetVectors(ctx, model, want)
	if err != nil {
		e.log.Warn().Err(err).Msg("reading shared vector cache")
		cacheLookups.WithLabelValues("redis", "miss").Add(float64(len(missing)))
		return missing
	}

	still := missing[:0]
	for _, i := range missing {
		vec, ok := found[hashes[i]]
		if !ok || len(vec) != dim {
			still = append(still, i)
			continue
		}
		idx.vecs[i] = vec
		e.cache.Put(books[i].ID, model, hashes[i], vec)
	}
	cacheLookups.WithLabelValues("redis", "hit").Add(float64(len(missing) - len(still)))
	cacheLookups.WithLabelValues("redis", "miss").Add(float64(len(still)))
	return still
}

// cmpScore orders by descending score.
func cmpScore(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrModelUnavailable):
		result = "model_unavailable"
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "cancelled"
	default:
		result = "error"
	}
	requestsTotal.WithLabelValues(op, result).Inc()
}
