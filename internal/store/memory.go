package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/punchamoorthee/libraryops/internal/domain"
)

// Memory is an in-process Store. One mutex serialises every transaction,
// which gives the same outcome as row locks for the ledger invariants.
type Memory struct {
	mu sync.Mutex

	books    map[int64]domain.Book
	students map[int64]domain.StudentProfile
	loans    map[int64]domain.Loan
	logs     []domain.SearchLog

	nextBook, nextStudent, nextLoan, nextLog int64

	now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		books:    make(map[int64]domain.Book),
		students: make(map[int64]domain.StudentProfile),
		loans:    make(map[int64]domain.Loan),
		now:      time.Now,
	}
}

func (m *Memory) Close() {}

func (m *Memory) InTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		m:     m,
		books: make(map[int64]domain.Book),
		loans: make(map[int64]domain.Loan),
	}
	if err := fn(tx); err != nil {
		return err
	}

	for id, b := range tx.books {
		m.books[id] = b
	}
	for id, l := range tx.loans {
		m.loans[id] = l
	}
	return nil
}

func (m *Memory) CreateBook(ctx context.Context, b *domain.Book) error {
	if err := b.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.books {
		if existing.ISBN == b.ISBN {
			return domain.ErrDuplicate
		}
	}
	m.nextBook++
	b.ID = m.nextBook
	if b.CreatedAt.IsZero() {
		b.CreatedAt = m.now()
	}
	m.books[b.ID] = cloneBook(*b)
	return nil
}

func (m *Memory) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	out := cloneBook(b)
	return &out, nil
}

func (m *Memory) ListBooks(ctx context.Context) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	books := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, cloneBook(b))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	return books, nil
}

func (m *Memory) RecentBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	books := make([]domain.Book, 0, len(m.books))
	for _, b := range m.books {
		books = append(books, cloneBook(b))
	}
	sort.Slice(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.After(books[j].CreatedAt)
		}
		return books[i].ID > books[j].ID
	})
	return truncate(books, limit), nil
}

func (m *Memory) UpdateBookText(ctx context.Context, id int64, upd BookUpdate) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	upd.apply(&b)
	m.books[id] = b
	out := cloneBook(b)
	return &out, nil
}

func (m *Memory) CreateStudent(ctx context.Context, s *domain.StudentProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.students {
		if existing.AcademicID == s.AcademicID || existing.UserID == s.UserID {
			return domain.ErrDuplicate
		}
	}
	m.nextStudent++
	s.ID = m.nextStudent
	if s.CreatedAt.IsZero() {
		s.CreatedAt = m.now()
	}
	m.students[s.ID] = *s
	return nil
}

func (m *Memory) GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.student(id)
}

func (m *Memory) student(id int64) (*domain.StudentProfile, error) {
	s, ok := m.students[id]
	if !ok {
		return nil, domain.ErrStudentNotFound
	}
	return &s, nil
}

func (m *Memory) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.loans[id]
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	out := cloneLoan(l)
	return &out, nil
}

func (m *Memory) ListLoans(ctx context.Context, f LoanFilter) ([]domain.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var loans []domain.Loan
	for _, l := range m.loans {
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.StudentID != 0 && l.StudentID != f.StudentID {
			continue
		}
		if f.BookID != 0 && l.BookID != f.BookID {
			continue
		}
		loans = append(loans, cloneLoan(l))
	}

	sort.Slice(loans, func(i, j int) bool {
		a, b := loans[i], loans[j]
		switch f.Status {
		case domain.StatusPending:
			if !a.RequestedAt.Equal(b.RequestedAt) {
				return a.RequestedAt.Before(b.RequestedAt)
			}
		case domain.StatusActive:
			if a.DueAt != nil && b.DueAt != nil && !a.DueAt.Equal(*b.DueAt) {
				return a.DueAt.Before(*b.DueAt)
			}
		default:
			if !a.RequestedAt.Equal(b.RequestedAt) {
				return a.RequestedAt.After(b.RequestedAt)
			}
		}
		return a.ID < b.ID
	})

	if f.Limit > 0 && len(loans) > f.Limit {
		loans = loans[:f.Limit]
	}
	return loans, nil
}

func (m *Memory) AppendSearchLog(ctx context.Context, l *domain.SearchLog) error {
	if n := utf8.RuneCountInString(l.Query); n > domain.MaxQueryLength {
		return fmt.Errorf("search log query is %d characters, limit is %d", n, domain.MaxQueryLength)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextLog++
	l.ID = m.nextLog
	if l.CreatedAt.IsZero() {
		l.CreatedAt = m.now()
	}
	m.logs = append(m.logs, *l)
	return nil
}

// SearchLogs returns a copy of every logged query, oldest first.
func (m *Memory) SearchLogs() []domain.SearchLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.SearchLog(nil), m.logs...)
}

func (m *Memory) MostBorrowed(ctx context.Context, limit int) ([]domain.BorrowCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[int64]int)
	for _, l := range m.loans {
		counts[l.BookID]++
	}
	out := make([]domain.BorrowCount, 0, len(counts))
	for id, n := range counts {
		out = append(out, domain.BorrowCount{BookID: id, Title: m.books[id].Title, Total: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].BookID < out[j].BookID
	})
	return truncate(out, limit), nil
}

func (m *Memory) AverageLoanDuration(ctx context.Context, limit int) ([]domain.LoanDuration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type acc struct {
		sum time.Duration
		n   int
	}
	per := make(map[int64]*acc)
	for _, l := range m.loans {
		if l.Status != domain.StatusReturned || l.BorrowedAt == nil || l.ReturnedAt == nil {
			continue
		}
		a, ok := per[l.BookID]
		if !ok {
			a = &acc{}
			per[l.BookID] = a
		}
		a.sum += l.ReturnedAt.Sub(*l.BorrowedAt)
		a.n++
	}
	out := make([]domain.LoanDuration, 0, len(per))
	for id, a := range per {
		avg := a.sum / time.Duration(a.n)
		out = append(out, domain.LoanDuration{BookID: id, Title: m.books[id].Title, AvgDays: avg.Hours() / 24})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AvgDays != out[j].AvgDays {
			return out[i].AvgDays > out[j].AvgDays
		}
		return out[i].BookID < out[j].BookID
	})
	return truncate(out, limit), nil
}

func (m *Memory) QueryGaps(ctx context.Context, limit int) ([]domain.QueryGap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempts := make(map[string]int)
	var order []string
	for _, l := range m.logs {
		if l.ResultCount != 0 {
			continue
		}
		if _, seen := attempts[l.Query]; !seen {
			order = append(order, l.Query)
		}
		attempts[l.Query]++
	}
	out := make([]domain.QueryGap, 0, len(order))
	for _, q := range order {
		out = append(out, domain.QueryGap{Query: q, Attempts: attempts[q]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Attempts != out[j].Attempts {
			return out[i].Attempts > out[j].Attempts
		}
		return strings.Compare(out[i].Query, out[j].Query) < 0
	})
	return truncate(out, limit), nil
}

type memTx struct {
	m     *Memory
	books map[int64]domain.Book
	loans map[int64]domain.Loan
}

func (tx *memTx) book(id int64) (domain.Book, bool) {
	if b, ok := tx.books[id]; ok {
		return b, true
	}
	b, ok := tx.m.books[id]
	return b, ok
}

func (tx *memTx) loan(id int64) (domain.Loan, bool) {
	if l, ok := tx.loans[id]; ok {
		return l, true
	}
	l, ok := tx.m.loans[id]
	return l, ok
}

func (tx *memTx) LockLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	l, ok := tx.loan(id)
	if !ok {
		return nil, domain.ErrLoanNotFound
	}
	out := cloneLoan(l)
	return &out, nil
}

func (tx *memTx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, ok := tx.book(id)
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	out := cloneBook(b)
	return &out, nil
}

func (tx *memTx) GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error) {
	return tx.m.student(id)
}

func (tx *memTx) HasOpenLoan(ctx context.Context, bookID, studentID int64) (bool, error) {
	for id := range tx.m.loans {
		l, _ := tx.loan(id)
		if l.BookID == bookID && l.StudentID == studentID && l.Status.Open() {
			return true, nil
		}
	}
	for id, l := range tx.loans {
		if _, persisted := tx.m.loans[id]; persisted {
			continue
		}
		if l.BookID == bookID && l.StudentID == studentID && l.Status.Open() {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	if _, ok := tx.book(l.BookID); !ok {
		return domain.ErrBookNotFound
	}
	tx.m.nextLoan++
	l.ID = tx.m.nextLoan
	tx.loans[l.ID] = cloneLoan(*l)
	return nil
}

func (tx *memTx) SaveLoan(ctx context.Context, l *domain.Loan) error {
	if _, ok := tx.loan(l.ID); !ok {
		return domain.ErrLoanNotFound
	}
	tx.loans[l.ID] = cloneLoan(*l)
	return nil
}

func (tx *memTx) SetAvailableCopies(ctx context.Context, bookID int64, available int) error {
	b, ok := tx.book(bookID)
	if !ok {
		return domain.ErrBookNotFound
	}
	b.AvailableCopies = available
	if err := b.Validate(); err != nil {
		return err
	}
	tx.books[bookID] = b
	return nil
}

func cloneBook(b domain.Book) domain.Book {
	if b.CoverURL != nil {
		v := *b.CoverURL
		b.CoverURL = &v
	}
	return b
}

func cloneLoan(l domain.Loan) domain.Loan {
	l.BorrowedAt = cloneTime(l.BorrowedAt)
	l.DueAt = cloneTime(l.DueAt)
	l.ReturnedAt = cloneTime(l.ReturnedAt)
	if l.Rating != nil {
		v := *l.Rating
		l.Rating = &v
	}
	return l
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
