package service

import (
	"context"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/store"
	"github.com/rs/zerolog"
)

const (
	defaultDashboardLimit = 5
	defaultRecentLimit    = 8
)

type NewBook struct {
	Title       string  `json:"title" validate:"required,max=255"`
	Author      string  `json:"author" validate:"required,max=255"`
	ISBN        string  `json:"isbn" validate:"required,min=10,max=13"`
	Description string  `json:"description"`
	Tags        string  `json:"tags" validate:"max=255"`
	Category    string  `json:"category" validate:"max=100"`
	TotalCopies int     `json:"total_copies" validate:"gte=0"`
	CoverURL    *string `json:"cover_url" validate:"omitempty,url"`
}

// BookTextUpdate edits the fields that feed the embedding input.
type BookTextUpdate struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Tags        *string `json:"tags" validate:"omitempty,max=255"`
	Category    *string `json:"category" validate:"omitempty,max=100"`
}

type NewStudent struct {
	UserID              int64  `json:"user_id" validate:"required,gt=0"`
	AcademicID          string `json:"academic_id" validate:"required,max=20"`
	Major               string `json:"major" validate:"required,max=100"`
	InterestFingerprint string `json:"interest_fingerprint"`
}

type CatalogService struct {
	store store.Store
	log   zerolog.Logger
}

func NewCatalogService(st store.Store, log zerolog.Logger) *CatalogService {
	return &CatalogService{store: st, log: log.With().Str("component", "catalog").Logger()}
}

// AddBook creates a catalog entry with every copy on the shelf.
func (s *CatalogService) AddBook(ctx context.Context, in NewBook) (*domain.Book, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	b := &domain.Book{
		Title:           in.Title,
		Author:          in.Author,
		ISBN:            in.ISBN,
		Description:     in.Description,
		Tags:            in.Tags,
		Category:        in.Category,
		TotalCopies:     in.TotalCopies,
		AvailableCopies: in.TotalCopies,
		CoverURL:        in.CoverURL,
	}
	if err := s.store.CreateBook(ctx, b); err != nil {
		return nil, err
	}
	s.log.Info().Int64("book_id", b.ID).Str("isbn", b.ISBN).Int("copies", b.TotalCopies).Msg("book added")
	return b, nil
}

// UpdateBookText changes descriptive text. Copy counters are not editable
// here; the next similarity call re-embeds the book because its content
// hash changes.
func (s *CatalogService) UpdateBookText(ctx context.Context, id int64, in BookTextUpdate) (*domain.Book, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	b, err := s.store.UpdateBookText(ctx, id, store.BookUpdate{
		Title:       in.Title,
		Description: in.Description,
		Tags:        in.Tags,
		Category:    in.Category,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("book_id", id).Msg("book text updated")
	return b, nil
}

func (s *CatalogService) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	return s.store.GetBook(ctx, id)
}

func (s *CatalogService) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return s.store.ListBooks(ctx)
}

// RecentBooks lists the newest additions to the catalog, defaulting to 8.
func (s *CatalogService) RecentBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	return s.store.RecentBooks(ctx, limit)
}

func (s *CatalogService) RegisterStudent(ctx context.Context, in NewStudent) (*domain.StudentProfile, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}
	p := &domain.StudentProfile{
		UserID:              in.UserID,
		AcademicID:          in.AcademicID,
		Major:               in.Major,
		InterestFingerprint: in.InterestFingerprint,
	}
	if err := s.store.CreateStudent(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info().Int64("student_id", p.ID).Str("academic_id", p.AcademicID).Msg("student registered")
	return p, nil
}

func (s *CatalogService) GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error) {
	return s.store.GetStudent(ctx, id)
}

// Dashboard assembles the librarian overview. limit <= 0 means 5.
func (s *CatalogService) Dashboard(ctx context.Context, limit int) (*domain.Dashboard, error) {
	if limit <= 0 {
		limit = defaultDashboardLimit
	}
	var (
		d   domain.Dashboard
		err error
	)
	if d.Pending, err = s.store.ListLoans(ctx, store.LoanFilter{Status: domain.StatusPending, Limit: limit}); err != nil {
		return nil, err
	}
	if d.Active, err = s.store.ListLoans(ctx, store.LoanFilter{Status: domain.StatusActive, Limit: limit}); err != nil {
		return nil, err
	}
	if d.MostBorrowed, err = s.store.MostBorrowed(ctx, limit); err != nil {
		return nil, err
	}
	if d.AvgDuration, err = s.store.AverageLoanDuration(ctx, limit); err != nil {
		return nil, err
	}
	if d.Gaps, err = s.store.QueryGaps(ctx, limit); err != nil {
		return nil, err
	}
	return &d, nil
}
