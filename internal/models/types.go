// Package models holds the JSON request and response bodies of the HTTP API.
package models

import (
	"time"

	"github.com/punchamoorthee/libraryops/internal/domain"
)

// CreateLoanRequest is a student's borrow request.
type CreateLoanRequest struct {
	BookID    int64 `json:"book_id" validate:"required,gt=0"`
	StudentID int64 `json:"student_id" validate:"required,gt=0"`
}

// TransitionRequest moves one loan to a new status.
type TransitionRequest struct {
	Status string `json:"status" validate:"required,oneof=pending active returned rejected"`
}

// BulkTransitionRequest applies one status to many loans.
type BulkTransitionRequest struct {
	LoanIDs []int64 `json:"loan_ids" validate:"required,min=1,max=500,dive,gt=0"`
	Status  string  `json:"status" validate:"required,oneof=active returned rejected"`
}

// RatingRequest carries a 1-5 rating; range is checked by the ledger.
type RatingRequest struct {
	Rating int `json:"rating"`
}

// LoanResponse is a loan plus its derived overdue flag.
type LoanResponse struct {
	domain.Loan
	Overdue bool `json:"overdue"`
}

func NewLoanResponse(l domain.Loan, now time.Time) LoanResponse {
	return LoanResponse{Loan: l, Overdue: l.IsOverdue(now)}
}

func NewLoanResponses(loans []domain.Loan, now time.Time) []LoanResponse {
	out := make([]LoanResponse, len(loans))
	for i, l := range loans {
		out[i] = NewLoanResponse(l, now)
	}
	return out
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
