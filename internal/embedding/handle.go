package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"golang.org/x/sync/singleflight"
)

var errHandleClosed = errors.New("embedding handle closed")

// Loader builds the model. It runs at most once at a time per Handle.
type Loader func(ctx context.Context) (Model, error)

// Handle is the shared, lazily loaded model. The first caller of Model
// triggers the load; concurrent callers wait for the same attempt. A failed
// load is remembered for retryAfter so a broken model server is not hammered.
type Handle struct {
	load       Loader
	retryAfter time.Duration
	now        func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	model    Model
	lastErr  error
	failedAt time.Time
	closed   bool
}

func NewHandle(load Loader, retryAfter time.Duration) *Handle {
	return &Handle{load: load, retryAfter: retryAfter, now: time.Now}
}

// Init loads the model eagerly. Failure is not fatal: later calls retry.
func (h *Handle) Init(ctx context.Context) error {
	_, err := h.Model(ctx)
	return err
}

// Model returns the loaded model or an error matching domain.ErrModelUnavailable.
func (h *Handle) Model(ctx context.Context) (Model, error) {
	h.mu.RLock()
	m, err := h.cached()
	h.mu.RUnlock()
	if m != nil || err != nil {
		return m, err
	}

	v, err, _ := h.group.Do("load", func() (any, error) {
		h.mu.RLock()
		m, err := h.cached()
		h.mu.RUnlock()
		if m != nil || err != nil {
			return m, err
		}

		// The load outlives a caller that gives up; other waiters still need it.
		loaded, loadErr := h.load(context.WithoutCancel(ctx))

		h.mu.Lock()
		defer h.mu.Unlock()
		if h.closed {
			closeModel(loaded)
			return nil, unavailable(errHandleClosed)
		}
		if loadErr != nil {
			h.lastErr = loadErr
			h.failedAt = h.now()
			return nil, unavailable(loadErr)
		}
		h.model = loaded
		h.lastErr = nil
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Model), nil
}

// cached must be called with mu held.
func (h *Handle) cached() (Model, error) {
	if h.closed {
		return nil, unavailable(errHandleClosed)
	}
	if h.model != nil {
		return h.model, nil
	}
	if h.lastErr != nil && h.now().Sub(h.failedAt) < h.retryAfter {
		return nil, unavailable(h.lastErr)
	}
	return nil, nil
}

// Close releases the model. Later calls to Model fail.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	err := closeModel(h.model)
	h.model = nil
	return err
}

func closeModel(m Model) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrModelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
}
