package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/similarity"
	"github.com/punchamoorthee/libraryops/internal/store"
	"github.com/rs/zerolog"
)

// Engine is the part of the similarity engine the search service uses.
type Engine interface {
	Search(ctx context.Context, query string) ([]similarity.Hit, error)
	Similar(ctx context.Context, bookID int64) ([]similarity.Recommendation, error)
}

// SearchResult separates "nothing matched" from "engine failed": both carry
// no hits, but Degraded is set only for the latter.
type SearchResult struct {
	Query    string           `json:"query"`
	Hits     []similarity.Hit `json:"results"`
	Degraded bool             `json:"degraded"`
}

type SimilarResult struct {
	BookID          int64                       `json:"book_id"`
	Recommendations []similarity.Recommendation `json:"recommendations"`
	Degraded        bool                        `json:"degraded"`
}

type SearchService struct {
	store  store.Store
	engine Engine
	log    zerolog.Logger
}

func NewSearchService(st store.Store, engine Engine, log zerolog.Logger) *SearchService {
	return &SearchService{
		store:  st,
		engine: engine,
		log:    log.With().Str("component", "search").Logger(),
	}
}

// Search runs a semantic query and records it for gap analysis. The log
// entry is written only once the search has finished, so an abandoned
// request leaves no trace. Engine failures come back as a degraded empty
// result and are logged with result_count 0.
func (s *SearchService) Search(ctx context.Context, userID *int64, query string) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	res := &SearchResult{Query: query, Hits: []similarity.Hit{}}
	if query == "" {
		return res, nil
	}

	hits, err := s.engine.Search(ctx, query)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		s.log.Warn().Err(err).Str("query", query).Msg("semantic search failed, returning no results")
		res.Degraded = true
	} else {
		res.Hits = hits
	}

	entry := &domain.SearchLog{UserID: userID, Query: truncateRunes(query, domain.MaxQueryLength), ResultCount: len(res.Hits)}
	if err := s.store.AppendSearchLog(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error().Err(err).Str("query", query).Msg("writing search log")
	}
	return res, nil
}

// Similar recommends books close to bookID. A missing book is an error;
// engine failures degrade to an empty list.
func (s *SearchService) Similar(ctx context.Context, bookID int64) (*SimilarResult, error) {
	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	res := &SimilarResult{BookID: bookID, Recommendations: []similarity.Recommendation{}}
	recs, err := s.engine.Similar(ctx, bookID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		s.log.Warn().Err(err).Int64("book_id", bookID).Msg("recommendation failed, returning no results")
		res.Degraded = true
		return res, nil
	}
	res.Recommendations = recs
	return res, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
