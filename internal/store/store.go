// Package store persists catalog, loan and search-log records.
//
// Two implementations share the Store contract: Postgres (pgx, row locks)
// and Memory (single mutex, staged writes). Ledger transitions run inside
// InTx so the loan row and its book row are updated atomically.
package store

import (
	"context"

	"github.com/punchamoorthee/libraryops/internal/domain"
)

// Store is the persistence boundary used by the services.
type Store interface {
	// InTx runs fn in a transaction. Returning an error rolls everything back.
	InTx(ctx context.Context, fn func(Tx) error) error

	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id int64) (*domain.Book, error)
	// ListBooks returns the whole catalog ordered by ID.
	ListBooks(ctx context.Context) ([]domain.Book, error)
	// RecentBooks returns up to limit books, newest first.
	RecentBooks(ctx context.Context, limit int) ([]domain.Book, error)
	UpdateBookText(ctx context.Context, id int64, upd BookUpdate) (*domain.Book, error)

	CreateStudent(ctx context.Context, s *domain.StudentProfile) error
	GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error)

	GetLoan(ctx context.Context, id int64) (*domain.Loan, error)
	ListLoans(ctx context.Context, f LoanFilter) ([]domain.Loan, error)

	AppendSearchLog(ctx context.Context, l *domain.SearchLog) error

	MostBorrowed(ctx context.Context, limit int) ([]domain.BorrowCount, error)
	AverageLoanDuration(ctx context.Context, limit int) ([]domain.LoanDuration, error)
	QueryGaps(ctx context.Context, limit int) ([]domain.QueryGap, error)

	Close()
}

// Tx is the locked view used by ledger transitions.
// Lock order is loan before book.
type Tx interface {
	LockLoan(ctx context.Context, id int64) (*domain.Loan, error)
	LockBook(ctx context.Context, id int64) (*domain.Book, error)
	GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error)
	HasOpenLoan(ctx context.Context, bookID, studentID int64) (bool, error)
	InsertLoan(ctx context.Context, l *domain.Loan) error
	SaveLoan(ctx context.Context, l *domain.Loan) error
	SetAvailableCopies(ctx context.Context, bookID int64, available int) error
}

// BookUpdate carries the text fields that feed the embedding input.
// Nil fields are left untouched.
type BookUpdate struct {
	Title       *string
	Description *string
	Tags        *string
	Category    *string
}

func (u BookUpdate) apply(b *domain.Book) {
	if u.Title != nil {
		b.Title = *u.Title
	}
	if u.Description != nil {
		b.Description = *u.Description
	}
	if u.Tags != nil {
		b.Tags = *u.Tags
	}
	if u.Category != nil {
		b.Category = *u.Category
	}
}

// LoanFilter narrows ListLoans. Zero values match everything.
//
// Pending loans come back oldest request first, active loans by due date,
// everything else newest request first.
type LoanFilter struct {
	Status    domain.LoanStatus
	StudentID int64
	BookID    int64
	Limit     int
}
