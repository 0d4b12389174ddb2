package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/store"
	"github.com/rs/zerolog"
)

var loanTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "library_loan_transitions_total",
	Help: "Loan ledger operations by source status, target status and result",
}, []string{"from", "to", "result"})

type LoanService struct {
	store store.Store
	log   zerolog.Logger
	now   func() time.Time
}

func NewLoanService(st store.Store, log zerolog.Logger) *LoanService {
	return &LoanService{
		store: st,
		log:   log.With().Str("component", "ledger").Logger(),
		now:   time.Now,
	}
}

// CreateLoan opens a pending request. The book row is locked so the
// capacity and duplicate checks see a stable view.
func (s *LoanService) CreateLoan(ctx context.Context, bookID, studentID int64) (*domain.Loan, error) {
	var loan *domain.Loan
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		book, err := tx.LockBook(ctx, bookID)
		if err != nil {
			return err
		}
		if _, err := tx.GetStudent(ctx, studentID); err != nil {
			return err
		}
		if book.AvailableCopies < 1 {
			return domain.ErrNoCapacity
		}

		open, err := tx.HasOpenLoan(ctx, bookID, studentID)
		if err != nil {
			return err
		}
		if open {
			return domain.ErrDuplicateLoan
		}

		loan = domain.NewLoan(bookID, studentID, s.now())
		return tx.InsertLoan(ctx, loan)
	})

	loanTransitions.WithLabelValues("none", string(domain.StatusPending), resultLabel(err, false)).Inc()
	if err != nil {
		s.log.Info().Err(err).Int64("book_id", bookID).Int64("student_id", studentID).Msg("loan request refused")
		return nil, err
	}
	s.log.Info().Int64("loan_id", loan.ID).Int64("book_id", bookID).Int64("student_id", studentID).Msg("loan requested")
	return loan, nil
}

// TransitionLoan moves a loan to target and applies the inventory effect in
// the same transaction. Locks are taken loan first, then book.
func (s *LoanService) TransitionLoan(ctx context.Context, loanID int64, target domain.LoanStatus) (*domain.Loan, error) {
	loan, _, err := s.transition(ctx, loanID, target)
	return loan, err
}

func (s *LoanService) Approve(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.TransitionLoan(ctx, loanID, domain.StatusActive)
}

func (s *LoanService) Reject(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.TransitionLoan(ctx, loanID, domain.StatusRejected)
}

func (s *LoanService) Return(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.TransitionLoan(ctx, loanID, domain.StatusReturned)
}

func (s *LoanService) transition(ctx context.Context, loanID int64, target domain.LoanStatus) (*domain.Loan, domain.Transition, error) {
	var (
		out *domain.Loan
		tr  domain.Transition
	)
	from := "unknown"

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		// 1. Lock the loan, then its book
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		from = string(loan.Status)

		book, err := tx.LockBook(ctx, loan.BookID)
		if err != nil {
			return err
		}

		// 2. Validate against the state machine and current stock
		tr, err = domain.PlanTransition(loan, target, book, s.now())
		if err != nil {
			return err
		}
		if tr.NoOp {
			out = loan
			return nil
		}

		// 3. Persist both sides
		loan.Apply(tr)
		book.Apply(tr)
		if err := tx.SaveLoan(ctx, loan); err != nil {
			return err
		}
		if tr.InventoryDelta != 0 {
			if err := tx.SetAvailableCopies(ctx, book.ID, book.AvailableCopies); err != nil {
				return err
			}
		}
		out = loan
		return nil
	})

	loanTransitions.WithLabelValues(from, string(target), resultLabel(err, tr.NoOp)).Inc()
	ev := s.log.Info()
	if err != nil && !isLedgerRefusal(err) {
		ev = s.log.Error()
	}
	ev = ev.Int64("loan_id", loanID).Str("from", from).Str("to", string(target))
	switch {
	case err != nil:
		ev.Err(err).Msg("loan transition refused")
		return nil, domain.Transition{}, err
	case tr.NoOp:
		ev.Msg("loan already in requested status")
	default:
		ev.Int("inventory_delta", tr.InventoryDelta).Msg("loan transitioned")
	}
	return out, tr, nil
}

// BulkOutcome is the result for one loan in a bulk request.
type BulkOutcome struct {
	LoanID    int64             `json:"loan_id"`
	Status    domain.LoanStatus `json:"status,omitempty"`
	Unchanged bool              `json:"unchanged,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// BulkResult tallies a bulk transition.
type BulkResult struct {
	Target    domain.LoanStatus `json:"target"`
	Succeeded int               `json:"succeeded"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	Items     []BulkOutcome     `json:"items"`
}

// BulkTransition applies target to every loan independently. One item
// failing (no copies left, wrong status) does not stop the rest.
func (s *LoanService) BulkTransition(ctx context.Context, loanIDs []int64, target domain.LoanStatus) BulkResult {
	res := BulkResult{Target: target, Items: make([]BulkOutcome, 0, len(loanIDs))}
	for _, id := range loanIDs {
		loan, tr, err := s.transition(ctx, id, target)
		item := BulkOutcome{LoanID: id}
		switch {
		case err != nil:
			res.Failed++
			item.Error = err.Error()
		case tr.NoOp:
			res.Unchanged++
			item.Unchanged = true
			item.Status = loan.Status
		default:
			res.Succeeded++
			item.Status = loan.Status
		}
		res.Items = append(res.Items, item)
	}
	s.log.Info().
		Str("target", string(target)).
		Int("succeeded", res.Succeeded).
		Int("unchanged", res.Unchanged).
		Int("failed", res.Failed).
		Msg("bulk loan transition finished")
	return res
}

// RateLoan stores the student's 1-5 rating on a returned loan.
func (s *LoanService) RateLoan(ctx context.Context, loanID int64, rating int) (*domain.Loan, error) {
	var out *domain.Loan
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		loan, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := loan.Rate(rating); err != nil {
			return err
		}
		out = loan
		return tx.SaveLoan(ctx, loan)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Int64("loan_id", loanID).Int("rating", rating).Msg("loan rated")
	return out, nil
}

func (s *LoanService) GetLoan(ctx context.Context, loanID int64) (*domain.Loan, error) {
	return s.store.GetLoan(ctx, loanID)
}

func (s *LoanService) ListLoans(ctx context.Context, f store.LoanFilter) ([]domain.Loan, error) {
	return s.store.ListLoans(ctx, f)
}

// Overdue lists active loans past their due date, earliest due first.
func (s *LoanService) Overdue(ctx context.Context) ([]domain.Loan, error) {
	active, err := s.store.ListLoans(ctx, store.LoanFilter{Status: domain.StatusActive})
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.Loan, 0)
	for _, l := range active {
		if l.IsOverdue(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Now is the clock the ledger uses, exposed for overdue flags in responses.
func (s *LoanService) Now() time.Time {
	return s.now()
}

func isLedgerRefusal(err error) bool {
	return errors.Is(err, domain.ErrNoCapacity) ||
		errors.Is(err, domain.ErrDuplicateLoan) ||
		errors.Is(err, domain.ErrInvalidTransition) ||
		errors.Is(err, domain.ErrInvalidRating) ||
		errors.Is(err, domain.ErrInventoryInvariant) ||
		errors.Is(err, domain.ErrNotFound)
}

func resultLabel(err error, noop bool) string {
	switch {
	case err == nil && noop:
		return "noop"
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrNoCapacity):
		return "no_capacity"
	case errors.Is(err, domain.ErrDuplicateLoan):
		return "duplicate"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrInventoryInvariant):
		return "inventory_invariant"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	}
	return "error"
}
