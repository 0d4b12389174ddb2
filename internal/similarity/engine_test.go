package similarity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/embedding"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var vocab = []string{"machine", "learning", "python", "cooking", "recipes", "history", "war", "space"}

// keywordModel maps text to keyword counts over vocab.
type keywordModel struct {
	mu       sync.Mutex
	embedded []string
}

func (m *keywordModel) Name() string   { return "keyword" }
func (m *keywordModel) Dimension() int { return len(vocab) }

func (m *keywordModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.embedded = append(m.embedded, texts...)
	m.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(vocab))
		for _, w := range strings.Fields(strings.ToLower(text)) {
			for j, v := range vocab {
				if w == v {
					vec[j]++
				}
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (m *keywordModel) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.embedded...)
}

type staticModels struct {
	model embedding.Model
	err   error
}

func (s staticModels) Model(ctx context.Context) (embedding.Model, error) {
	return s.model, s.err
}

type memCatalog struct {
	mu    sync.Mutex
	books []domain.Book
}

func (c *memCatalog) ListBooks(ctx context.Context) ([]domain.Book, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Book(nil), c.books...), nil
}

func (c *memCatalog) add(title, description, tags string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := int64(len(c.books) + 1)
	c.books = append(c.books, domain.Book{ID: id, Title: title, Description: description, Tags: tags})
	return id
}

func newTestEngine(cat *memCatalog, model embedding.Model) *Engine {
	return NewEngine(cat, staticModels{model: model}, nil, zerolog.Nop())
}

func TestSimilarEmptyCatalog(t *testing.T) {
	e := newTestEngine(&memCatalog{}, &keywordModel{})
	recs, err := e.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSimilarSingleBook(t *testing.T) {
	cat := &memCatalog{}
	id := cat.add("Machine Learning", "", "python")
	e := newTestEngine(cat, &keywordModel{})

	recs, err := e.Similar(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, recs)
	assert.Empty(t, e.RecommendSimilar(context.Background(), id))
}

func TestSimilarUnknownBook(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "", "")
	e := newTestEngine(cat, &keywordModel{})

	_, err := e.Similar(context.Background(), 42)
	require.ErrorIs(t, err, domain.ErrBookNotFound)
	assert.Empty(t, e.RecommendSimilar(context.Background(), 42))
}

func TestSimilarTopFourExcludesTarget(t *testing.T) {
	cat := &memCatalog{}
	target := cat.add("Machine Learning", "python", "")
	cat.add("Cooking", "recipes", "")
	exact := cat.add("Machine Learning", "python", "")
	cat.add("History", "war", "")
	partial := cat.add("Python", "", "")
	twoOfThree := cat.add("Machine Learning", "", "")
	cat.add("Space", "", "")

	e := newTestEngine(cat, &keywordModel{})
	recs, err := e.Similar(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, recs, SimilarLimit)

	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.BookID
		assert.NotEqual(t, target, r.BookID)
	}
	assert.Equal(t, []int64{exact, twoOfThree, partial}, ids[:3])
	assert.InDelta(t, 1.0, recs[0].Score, 1e-9)
	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
}

func TestSearchNoRelatedTerms(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "python", "")
	cat.add("Cooking", "recipes", "")
	e := newTestEngine(cat, &keywordModel{})

	hits, err := e.Search(context.Background(), "history")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFiltersAndRanks(t *testing.T) {
	cat := &memCatalog{}
	ml := cat.add("Machine Learning", "python", "")
	cat.add("Cooking", "recipes", "")
	py := cat.add("Python", "", "")

	e := newTestEngine(cat, &keywordModel{})
	hits, err := e.Search(context.Background(), "python")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, py, hits[0].BookID)
	assert.Equal(t, ml, hits[1].BookID)
	for _, h := range hits {
		assert.Greater(t, h.Score, SearchThreshold)
	}
}

func TestSearchBlankQuery(t *testing.T) {
	model := &keywordModel{}
	cat := &memCatalog{}
	cat.add("Python", "", "")
	e := newTestEngine(cat, model)

	hits, err := e.Search(context.Background(), "   ")
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Empty(t, model.calls())
}

func TestEqualScoresKeepCatalogOrder(t *testing.T) {
	cat := &memCatalog{}
	for range 5 {
		cat.add("Space", "", "")
	}
	e := newTestEngine(cat, &keywordModel{})

	hits, err := e.Search(context.Background(), "space")
	require.NoError(t, err)
	require.Len(t, hits, 5)
	for i, h := range hits {
		assert.Equal(t, int64(i+1), h.BookID)
	}

	recs, err := e.Similar(context.Background(), 3)
	require.NoError(t, err)
	ids := []int64{recs[0].BookID, recs[1].BookID, recs[2].BookID, recs[3].BookID}
	assert.Equal(t, []int64{1, 2, 4, 5}, ids)
}

func TestRepeatedCallsAreStable(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "python", "")
	cat.add("Python", "cooking", "")
	cat.add("War", "history", "")
	e := newTestEngine(cat, &keywordModel{})

	first, err := e.Search(context.Background(), "python machine")
	require.NoError(t, err)
	second, err := e.Search(context.Background(), "python machine")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCacheReembedsOnlyChangedBooks(t *testing.T) {
	model := &keywordModel{}
	cat := &memCatalog{}
	cat.add("Machine Learning", "", "")
	cat.add("Cooking", "", "")
	e := newTestEngine(cat, model)
	ctx := context.Background()

	_, err := e.Search(ctx, "cooking")
	require.NoError(t, err)
	_, err = e.Search(ctx, "cooking")
	require.NoError(t, err)
	assert.Equal(t, []string{"Machine Learning", "Cooking", "cooking", "cooking"}, model.calls())

	cat.mu.Lock()
	cat.books[1].Description = "recipes"
	cat.mu.Unlock()

	hits, err := e.Search(ctx, "recipes")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].BookID)
	assert.Equal(t, "Cooking\nrecipes", model.calls()[4])
	assert.Len(t, model.calls(), 6)
}

func TestCacheDropsRemovedBooks(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "", "")
	cat.add("Cooking", "", "")
	e := newTestEngine(cat, &keywordModel{})

	_, err := e.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, e.cache.Len())

	cat.mu.Lock()
	cat.books = cat.books[:1]
	cat.mu.Unlock()
	_, err = e.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, e.cache.Len())
}

func TestModelUnavailable(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "", "")
	cat.add("Python", "", "")
	failing := staticModels{err: fmt.Errorf("%w: connection refused", domain.ErrModelUnavailable)}
	e := NewEngine(cat, failing, nil, zerolog.Nop())

	_, err := e.Similar(context.Background(), 1)
	require.ErrorIs(t, err, domain.ErrModelUnavailable)
	_, err = e.Search(context.Background(), "python")
	require.ErrorIs(t, err, domain.ErrModelUnavailable)

	assert.NotNil(t, e.RecommendSimilar(context.Background(), 1))
	assert.Empty(t, e.RecommendSimilar(context.Background(), 1))
	assert.Empty(t, e.SemanticSearch(context.Background(), "python"))
}

func TestSearchCancelled(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Python", "", "")
	e := newTestEngine(cat, &keywordModel{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Search(ctx, "python")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSharedVectorStore(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Machine Learning", "", "")
	cat.add("Python", "", "")
	mock := newMockCmdable()
	vs := &RedisVectorStore{store: mock, ttl: time.Hour}

	first := &keywordModel{}
	e1 := NewEngine(cat, staticModels{model: first}, vs, zerolog.Nop())
	_, err := e1.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, first.calls(), 2)
	assert.Len(t, mock.data, 2)
	assert.Contains(t, mock.data, vs.Key("keyword", ContentHash(cat.books[0])))

	second := &keywordModel{}
	e2 := NewEngine(cat, staticModels{model: second}, vs, zerolog.Nop())
	recs, err := e2.Similar(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, second.calls())
	require.Len(t, recs, 1)
	assert.Equal(t, int64(2), recs[0].BookID)
}

func TestSharedVectorStoreErrorsDegrade(t *testing.T) {
	cat := &memCatalog{}
	cat.add("Python", "", "")
	mock := newMockCmdable()
	mock.err = errors.New("connection reset")
	vs := &RedisVectorStore{store: mock, ttl: time.Hour}

	model := &keywordModel{}
	e := NewEngine(cat, staticModels{model: model}, vs, zerolog.Nop())
	hits, err := e.Search(context.Background(), "python")
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

type mockCmdable struct {
	data map[string]string
	err  error
}

func newMockCmdable() *mockCmdable {
	return &mockCmdable{data: make(map[string]string)}
}

func (m *mockCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", m.err)
}

func (m *mockCmdable) MGet(ctx context.Context, keys ...string) *redis.SliceCmd {
	if m.err != nil {
		return redis.NewSliceResult(nil, m.err)
	}
	vals := make([]any, len(keys))
	for i, k := range keys {
		if v, ok := m.data[k]; ok {
			vals[i] = v
		}
	}
	return redis.NewSliceResult(vals, nil)
}

func (m *mockCmdable) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if m.err != nil {
		return redis.NewStatusResult("", m.err)
	}
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	default:
		m.data[key] = fmt.Sprint(v)
	}
	return redis.NewStatusResult("OK", nil)
}
