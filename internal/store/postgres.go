package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/libraryops/internal/config"
	"github.com/punchamoorthee/libraryops/internal/domain"
)

const uniqueViolation = "23505"

const (
	bookColumns = "id, title, author, isbn, description, tags, category, total_copies, available_copies, cover_url, created_at"
	loanColumns = "id, book_id, student_id, status, requested_at, borrowed_at, due_at, returned_at, rating"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Db *pgxpool.Pool
}

// NewPostgres parses the DSN, applies pool limits and pings the database.
func NewPostgres(ctx context.Context, cfg config.DBConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

func (s *Postgres) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// CreateBook inserts a catalog entry. ISBN reuse maps to domain.ErrDuplicate.
func (s *Postgres) CreateBook(ctx context.Context, b *domain.Book) error {
	if err := b.Validate(); err != nil {
		return err
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO books (title, author, isbn, description, tags, category, total_copies, available_copies, cover_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at`,
		b.Title, b.Author, b.ISBN, b.Description, b.Tags, b.Category, b.TotalCopies, b.AvailableCopies, b.CoverURL,
	).Scan(&b.ID, &b.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("book insert failed: %w", err)
	}
	return nil
}

// GetBook retrieves a single book by ID.
func (s *Postgres) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanBook(s.Db.QueryRow(ctx, "SELECT "+bookColumns+" FROM books WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	return b, err
}

// ListBooks returns the catalog in ID order, which is also the tie-break
// order of similarity rankings.
func (s *Postgres) ListBooks(ctx context.Context) ([]domain.Book, error) {
	rows, err := s.Db.Query(ctx, "SELECT "+bookColumns+" FROM books ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("catalog query failed: %w", err)
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, *b)
	}
	return books, rows.Err()
}

func (s *Postgres) RecentBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	rows, err := s.Db.Query(ctx, "SELECT "+bookColumns+" FROM books ORDER BY created_at DESC, id DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("recent books query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Book, error) {
		b, err := scanBook(row)
		if err != nil {
			return domain.Book{}, err
		}
		return *b, nil
	})
}

func (s *Postgres) UpdateBookText(ctx context.Context, id int64, upd BookUpdate) (*domain.Book, error) {
	b, err := scanBook(s.Db.QueryRow(ctx,
		`UPDATE books SET
		   title       = COALESCE($2, title),
		   description = COALESCE($3, description),
		   tags        = COALESCE($4, tags),
		   category    = COALESCE($5, category)
		 WHERE id = $1
		 RETURNING `+bookColumns,
		id, upd.Title, upd.Description, upd.Tags, upd.Category))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	return b, err
}

func (s *Postgres) CreateStudent(ctx context.Context, st *domain.StudentProfile) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO student_profiles (user_id, academic_id, major, interest_fingerprint)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		st.UserID, st.AcademicID, st.Major, st.InterestFingerprint,
	).Scan(&st.ID, &st.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("student insert failed: %w", err)
	}
	return nil
}

func (s *Postgres) GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error) {
	return getStudent(ctx, s.Db, id)
}

func (s *Postgres) GetLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	l, err := scanLoan(s.Db.QueryRow(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLoanNotFound
	}
	return l, err
}

func (s *Postgres) ListLoans(ctx context.Context, f LoanFilter) ([]domain.Loan, error) {
	rows, err := s.Db.Query(ctx, listLoansQuery(f), string(f.Status), f.StudentID, f.BookID)
	if err != nil {
		return nil, fmt.Errorf("loan query failed: %w", err)
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (s *Postgres) AppendSearchLog(ctx context.Context, l *domain.SearchLog) error {
	err := s.Db.QueryRow(ctx,
		"INSERT INTO search_logs (user_id, query_text, result_count) VALUES ($1, $2, $3) RETURNING id, created_at",
		l.UserID, l.Query, l.ResultCount,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return fmt.Errorf("search log insert failed: %w", err)
	}
	return nil
}

func (s *Postgres) MostBorrowed(ctx context.Context, limit int) ([]domain.BorrowCount, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT b.id, b.title, COUNT(l.id) AS total
		 FROM loans l JOIN books b ON b.id = l.book_id
		 GROUP BY b.id, b.title
		 ORDER BY total DESC, b.id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("most borrowed query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BorrowCount, error) {
		var c domain.BorrowCount
		err := row.Scan(&c.BookID, &c.Title, &c.Total)
		return c, err
	})
}

func (s *Postgres) AverageLoanDuration(ctx context.Context, limit int) ([]domain.LoanDuration, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT b.id, b.title, (AVG(EXTRACT(EPOCH FROM (l.returned_at - l.borrowed_at))) / 86400)::float8 AS avg_days
		 FROM loans l JOIN books b ON b.id = l.book_id
		 WHERE l.status = 'returned' AND l.borrowed_at IS NOT NULL AND l.returned_at IS NOT NULL
		 GROUP BY b.id, b.title
		 ORDER BY avg_days DESC, b.id
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("loan duration query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.LoanDuration, error) {
		var d domain.LoanDuration
		err := row.Scan(&d.BookID, &d.Title, &d.AvgDays)
		return d, err
	})
}

func (s *Postgres) QueryGaps(ctx context.Context, limit int) ([]domain.QueryGap, error) {
	rows, err := s.Db.Query(ctx,
		`SELECT query_text, COUNT(id) AS attempts
		 FROM search_logs
		 WHERE result_count = 0
		 GROUP BY query_text
		 ORDER BY attempts DESC, query_text
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("gap analysis query failed: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.QueryGap, error) {
		var g domain.QueryGap
		err := row.Scan(&g.Query, &g.Attempts)
		return g, err
	})
}

// listLoansQuery builds the ListLoans statement. The ID filters are cast to
// bigint; compared against a bare 0 Postgres would type them as int4.
func listLoansQuery(f LoanFilter) string {
	order := "requested_at DESC, id"
	switch f.Status {
	case domain.StatusPending:
		order = "requested_at, id"
	case domain.StatusActive:
		order = "due_at, id"
	}
	limit := "ALL"
	if f.Limit > 0 {
		limit = strconv.Itoa(f.Limit)
	}
	return `SELECT ` + loanColumns + ` FROM loans
		 WHERE ($1::text = '' OR status = $1::text)
		   AND ($2::bigint = 0 OR student_id = $2::bigint)
		   AND ($3::bigint = 0 OR book_id = $3::bigint)
		 ORDER BY ` + order + ` LIMIT ` + limit
}

// pgTx holds row locks taken with SELECT ... FOR UPDATE until commit.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockLoan(ctx context.Context, id int64) (*domain.Loan, error) {
	l, err := scanLoan(t.tx.QueryRow(ctx, "SELECT "+loanColumns+" FROM loans WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrLoanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loan lock acquisition failed: %w", err)
	}
	return l, nil
}

func (t *pgTx) LockBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanBook(t.tx.QueryRow(ctx, "SELECT "+bookColumns+" FROM books WHERE id = $1 FOR UPDATE", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("book lock acquisition failed: %w", err)
	}
	return b, nil
}

func (t *pgTx) GetStudent(ctx context.Context, id int64) (*domain.StudentProfile, error) {
	return getStudent(ctx, t.tx, id)
}

func (t *pgTx) HasOpenLoan(ctx context.Context, bookID, studentID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM loans WHERE book_id = $1 AND student_id = $2 AND status IN ('pending', 'active'))`,
		bookID, studentID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("open loan check failed: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertLoan(ctx context.Context, l *domain.Loan) error {
	err := t.tx.QueryRow(ctx,
		"INSERT INTO loans (book_id, student_id, status, requested_at) VALUES ($1, $2, $3, $4) RETURNING id",
		l.BookID, l.StudentID, string(l.Status), l.RequestedAt,
	).Scan(&l.ID)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateLoan
	}
	if err != nil {
		return fmt.Errorf("loan insert failed: %w", err)
	}
	return nil
}

func (t *pgTx) SaveLoan(ctx context.Context, l *domain.Loan) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE loans SET status = $2, borrowed_at = $3, due_at = $4, returned_at = $5, rating = $6
		 WHERE id = $1`,
		l.ID, string(l.Status), l.BorrowedAt, l.DueAt, l.ReturnedAt, l.Rating)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateLoan
	}
	if err != nil {
		return fmt.Errorf("loan update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrLoanNotFound
	}
	return nil
}

func (t *pgTx) SetAvailableCopies(ctx context.Context, bookID int64, available int) error {
	tag, err := t.tx.Exec(ctx, "UPDATE books SET available_copies = $2 WHERE id = $1", bookID, available)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "available_within_total" {
			return domain.ErrInventoryInvariant
		}
		return fmt.Errorf("inventory update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBookNotFound
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getStudent(ctx context.Context, q querier, id int64) (*domain.StudentProfile, error) {
	var st domain.StudentProfile
	err := q.QueryRow(ctx,
		"SELECT id, user_id, academic_id, major, interest_fingerprint, created_at FROM student_profiles WHERE id = $1",
		id,
	).Scan(&st.ID, &st.UserID, &st.AcademicID, &st.Major, &st.InterestFingerprint, &st.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func scanBook(row pgx.Row) (*domain.Book, error) {
	var b domain.Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Tags, &b.Category,
		&b.TotalCopies, &b.AvailableCopies, &b.CoverURL, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanLoan(row pgx.Row) (*domain.Loan, error) {
	var (
		l      domain.Loan
		status string
		rating *int32
	)
	err := row.Scan(&l.ID, &l.BookID, &l.StudentID, &status, &l.RequestedAt, &l.BorrowedAt, &l.DueAt, &l.ReturnedAt, &rating)
	if err != nil {
		return nil, err
	}
	l.Status = domain.LoanStatus(status)
	if rating != nil {
		r := int(*rating)
		l.Rating = &r
	}
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

var _ Store = (*Postgres)(nil)
var _ Store = (*Memory)(nil)
