package domain

import (
	"fmt"
	"time"
)

type LoanStatus string

const (
	StatusPending  LoanStatus = "pending"
	StatusActive   LoanStatus = "active"
	StatusReturned LoanStatus = "returned"
	StatusRejected LoanStatus = "rejected"
)

// ParseLoanStatus accepts the four persisted status names.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch st := LoanStatus(s); st {
	case StatusPending, StatusActive, StatusReturned, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

// Terminal reports whether no further transitions leave this status.
func (s LoanStatus) Terminal() bool {
	return s == StatusReturned || s == StatusRejected
}

// Open reports whether the loan still blocks a new request for the same book.
func (s LoanStatus) Open() bool {
	return s == StatusPending || s == StatusActive
}

// Loan is a borrow transaction between one student and one book.
type Loan struct {
	ID          int64      `json:"id"`
	BookID      int64      `json:"book_id"`
	StudentID   int64      `json:"student_id"`
	Status      LoanStatus `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	BorrowedAt  *time.Time `json:"borrowed_at,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	ReturnedAt  *time.Time `json:"returned_at,omitempty"`
	Rating      *int       `json:"rating,omitempty"`
}

// NewLoan builds a pending request.
func NewLoan(bookID, studentID int64, now time.Time) *Loan {
	return &Loan{
		BookID:      bookID,
		StudentID:   studentID,
		Status:      StatusPending,
		RequestedAt: now,
	}
}

// IsOverdue is derived, never stored.
func (l *Loan) IsOverdue(now time.Time) bool {
	return l.Status == StatusActive && l.DueAt != nil && now.After(*l.DueAt)
}

// Transition is the planned effect of moving a loan to a new status.
// A NoOp transition carries no timestamps and no inventory change.
type Transition struct {
	From           LoanStatus
	To             LoanStatus
	NoOp           bool
	InventoryDelta int
	BorrowedAt     *time.Time
	DueAt          *time.Time
	ReturnedAt     *time.Time
}

// PlanTransition validates a state change against the loan and its book and
// returns the effect to apply. Neither argument is modified.
//
// Allowed moves are pending->active, pending->rejected and active->returned.
// Asking for the status the loan already has is a no-op. An active loan
// cannot be rejected; it has to be returned so the copy goes back on the shelf.
func PlanTransition(loan *Loan, target LoanStatus, book *Book, now time.Time) (Transition, error) {
	tr := Transition{From: loan.Status, To: target}

	if loan.Status == target {
		tr.NoOp = true
		return tr, nil
	}

	switch {
	case loan.Status == StatusPending && target == StatusActive:
		if loan.BorrowedAt != nil {
			tr.NoOp = true
			return tr, nil
		}
		if book.AvailableCopies < 1 {
			return Transition{}, ErrNoCapacity
		}
		due := now.Add(LoanPeriod)
		tr.BorrowedAt = &now
		tr.DueAt = &due
		tr.InventoryDelta = -1

	case loan.Status == StatusPending && target == StatusRejected:
		// no inventory effect

	case loan.Status == StatusActive && target == StatusReturned:
		if loan.ReturnedAt != nil {
			tr.NoOp = true
			return tr, nil
		}
		if book.AvailableCopies+1 > book.TotalCopies {
			return Transition{}, ErrInventoryInvariant
		}
		tr.ReturnedAt = &now
		tr.InventoryDelta = 1

	default:
		return Transition{}, &TransitionError{From: loan.Status, To: target}
	}

	return tr, nil
}

// Apply writes the loan side of a planned transition.
func (l *Loan) Apply(tr Transition) {
	if tr.NoOp {
		return
	}
	l.Status = tr.To
	if tr.BorrowedAt != nil && l.BorrowedAt == nil {
		l.BorrowedAt = tr.BorrowedAt
		l.DueAt = tr.DueAt
	}
	if tr.ReturnedAt != nil && l.ReturnedAt == nil {
		l.ReturnedAt = tr.ReturnedAt
	}
}

// Rate records the student's rating once the book is back.
func (l *Loan) Rate(rating int) error {
	if l.Status != StatusReturned {
		return fmt.Errorf("%w: only returned loans can be rated, loan is %s", ErrInvalidTransition, l.Status)
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	l.Rating = &rating
	return nil
}
