package domain

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestPlanTransition_Table(t *testing.T) {
	borrowed := t0.Add(-time.Hour)
	due := borrowed.Add(LoanPeriod)

	tests := []struct {
		name      string
		loan      Loan
		target    LoanStatus
		available int
		total     int
		wantErr   error
		wantDelta int
		wantNoOp  bool
	}{
		{name: "approve pending", loan: Loan{Status: StatusPending}, target: StatusActive, available: 1, total: 1, wantDelta: -1},
		{name: "approve without capacity", loan: Loan{Status: StatusPending}, target: StatusActive, available: 0, total: 1, wantErr: ErrNoCapacity},
		{name: "reject pending", loan: Loan{Status: StatusPending}, target: StatusRejected, available: 0, total: 1},
		{name: "return active", loan: Loan{Status: StatusActive, BorrowedAt: &borrowed, DueAt: &due}, target: StatusReturned, available: 0, total: 1, wantDelta: 1},
		{name: "return overflows total", loan: Loan{Status: StatusActive, BorrowedAt: &borrowed}, target: StatusReturned, available: 2, total: 2, wantErr: ErrInventoryInvariant},
		{name: "reject active", loan: Loan{Status: StatusActive, BorrowedAt: &borrowed}, target: StatusRejected, available: 0, total: 1, wantErr: ErrInvalidTransition},
		{name: "return pending", loan: Loan{Status: StatusPending}, target: StatusReturned, available: 1, total: 1, wantErr: ErrInvalidTransition},
		{name: "reopen returned", loan: Loan{Status: StatusReturned}, target: StatusActive, available: 1, total: 1, wantErr: ErrInvalidTransition},
		{name: "approve rejected", loan: Loan{Status: StatusRejected}, target: StatusActive, available: 1, total: 1, wantErr: ErrInvalidTransition},
		{name: "active to pending", loan: Loan{Status: StatusActive, BorrowedAt: &borrowed}, target: StatusPending, available: 0, total: 1, wantErr: ErrInvalidTransition},
		{name: "re-save active", loan: Loan{Status: StatusActive, BorrowedAt: &borrowed}, target: StatusActive, available: 0, total: 1, wantNoOp: true},
		{name: "re-save returned", loan: Loan{Status: StatusReturned, ReturnedAt: &t0}, target: StatusReturned, available: 1, total: 1, wantNoOp: true},
		{name: "re-save rejected", loan: Loan{Status: StatusRejected}, target: StatusRejected, available: 1, total: 1, wantNoOp: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			book := &Book{TotalCopies: tc.total, AvailableCopies: tc.available}
			loan := tc.loan

			tr, err := PlanTransition(&loan, tc.target, book, t0)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Equal(t, tc.loan, loan, "loan must not change on failure")
				assert.Equal(t, tc.available, book.AvailableCopies)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantNoOp, tr.NoOp)
			assert.Equal(t, tc.wantDelta, tr.InventoryDelta)
		})
	}
}

func TestTransitionError_Message(t *testing.T) {
	_, err := PlanTransition(&Loan{Status: StatusPending}, StatusReturned, &Book{TotalCopies: 1, AvailableCopies: 1}, t0)

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StatusPending, te.From)
	assert.Equal(t, StatusReturned, te.To)
	assert.Equal(t, "invalid loan transition: pending -> returned", err.Error())
}

func TestApprove_SetsBorrowAndDueOnce(t *testing.T) {
	book := &Book{TotalCopies: 2, AvailableCopies: 2}
	loan := NewLoan(1, 1, t0.Add(-time.Hour))

	tr, err := PlanTransition(loan, StatusActive, book, t0)
	require.NoError(t, err)
	loan.Apply(tr)
	book.Apply(tr)

	require.NotNil(t, loan.BorrowedAt)
	require.NotNil(t, loan.DueAt)
	assert.Equal(t, t0, *loan.BorrowedAt)
	assert.Equal(t, t0.Add(14*24*time.Hour), *loan.DueAt)
	assert.Equal(t, 1, book.AvailableCopies)

	later := t0.Add(time.Hour)
	tr, err = PlanTransition(loan, StatusActive, book, later)
	require.NoError(t, err)
	assert.True(t, tr.NoOp)
	loan.Apply(tr)
	book.Apply(tr)

	assert.Equal(t, t0, *loan.BorrowedAt)
	assert.Equal(t, 1, book.AvailableCopies)
}

func TestReturn_SetsReturnedAtOnce(t *testing.T) {
	book := &Book{TotalCopies: 1, AvailableCopies: 1}
	loan := NewLoan(1, 1, t0)

	for _, step := range []struct {
		target LoanStatus
		at     time.Time
	}{
		{StatusActive, t0},
		{StatusReturned, t0.Add(24 * time.Hour)},
		{StatusReturned, t0.Add(48 * time.Hour)},
	} {
		tr, err := PlanTransition(loan, step.target, book, step.at)
		require.NoError(t, err)
		loan.Apply(tr)
		book.Apply(tr)
	}

	require.NotNil(t, loan.ReturnedAt)
	assert.Equal(t, t0.Add(24*time.Hour), *loan.ReturnedAt)
	assert.Equal(t, 1, book.AvailableCopies)
	assert.Equal(t, StatusReturned, loan.Status)
}

func TestIsOverdue(t *testing.T) {
	due := t0.Add(LoanPeriod)

	tests := []struct {
		name string
		loan Loan
		now  time.Time
		want bool
	}{
		{"active past due", Loan{Status: StatusActive, DueAt: &due}, due.Add(time.Second), true},
		{"active at due", Loan{Status: StatusActive, DueAt: &due}, due, false},
		{"active before due", Loan{Status: StatusActive, DueAt: &due}, t0, false},
		{"active without due", Loan{Status: StatusActive}, due.Add(time.Hour), false},
		{"returned past due", Loan{Status: StatusReturned, DueAt: &due}, due.Add(time.Hour), false},
		{"pending", Loan{Status: StatusPending}, due.Add(time.Hour), false},
		{"rejected", Loan{Status: StatusRejected, DueAt: &due}, due.Add(time.Hour), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.loan.IsOverdue(tc.now))
		})
	}
}

func TestRate(t *testing.T) {
	loan := &Loan{Status: StatusActive}
	require.ErrorIs(t, loan.Rate(4), ErrInvalidTransition)

	loan.Status = StatusReturned
	require.ErrorIs(t, loan.Rate(0), ErrInvalidRating)
	require.ErrorIs(t, loan.Rate(6), ErrInvalidRating)
	assert.Nil(t, loan.Rating)

	require.NoError(t, loan.Rate(5))
	require.NotNil(t, loan.Rating)
	assert.Equal(t, 5, *loan.Rating)
}

// Random walks over approve/return/reject keep the counter inside [0, total].
func TestInventoryStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	targets := []LoanStatus{StatusActive, StatusReturned, StatusRejected, StatusPending}

	for run := 0; run < 50; run++ {
		total := rng.Intn(4) + 1
		book := &Book{TotalCopies: total, AvailableCopies: total}
		loans := make([]*Loan, 8)
		for i := range loans {
			loans[i] = NewLoan(1, int64(i), t0)
		}

		for step := 0; step < 200; step++ {
			loan := loans[rng.Intn(len(loans))]
			tr, err := PlanTransition(loan, targets[rng.Intn(len(targets))], book, t0.Add(time.Duration(step)*time.Minute))
			if err != nil {
				continue
			}
			loan.Apply(tr)
			book.Apply(tr)
			require.NoError(t, book.Validate(), "run %d step %d", run, step)
		}

		active := 0
		for _, l := range loans {
			if l.Status == StatusActive {
				active++
			}
		}
		assert.Equal(t, total-active, book.AvailableCopies)
	}
}

func TestParseLoanStatus(t *testing.T) {
	st, err := ParseLoanStatus("active")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, st)

	_, err = ParseLoanStatus("lost")
	assert.Error(t, err)
}
