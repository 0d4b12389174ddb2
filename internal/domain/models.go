package domain

import (
	"time"
)

// LoanPeriod is the fixed lending window applied when a loan becomes active.
const LoanPeriod = 14 * 24 * time.Hour

// Book is a catalog entry together with its copy counters.
// AvailableCopies is owned by the loan ledger; nothing else writes it.
type Book struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	Description     string    `json:"description"`
	Tags            string    `json:"tags"`
	Category        string    `json:"category"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	CoverURL        *string   `json:"cover_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks the copy counter invariant.
func (b *Book) Validate() error {
	if b.TotalCopies < 0 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return ErrInventoryInvariant
	}
	return nil
}

// Apply writes the inventory side of a planned transition.
func (b *Book) Apply(tr Transition) {
	b.AvailableCopies += tr.InventoryDelta
}

// StudentProfile links a user identity to academic data.
type StudentProfile struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	AcademicID string `json:"academic_id"`
	Major      string `json:"major"`
	// InterestFingerprint is reserved for personalised ranking and is not read by the engine.
	InterestFingerprint string    `json:"interest_fingerprint,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// MaxQueryLength is the longest query text a SearchLog keeps, in runes.
const MaxQueryLength = 255

// SearchLog is an append-only record of a catalog query.
// Entries with ResultCount == 0 feed gap analysis.
type SearchLog struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id,omitempty"`
	Query       string    `json:"query"`
	ResultCount int       `json:"result_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// BorrowCount is one row of the most-borrowed report.
type BorrowCount struct {
	BookID int64  `json:"book_id"`
	Title  string `json:"title"`
	Total  int    `json:"total_borrows"`
}

// LoanDuration is the mean time between borrow and return for a title.
type LoanDuration struct {
	BookID  int64   `json:"book_id"`
	Title   string  `json:"title"`
	AvgDays float64 `json:"avg_days"`
}

// QueryGap is a query that repeatedly returned nothing.
type QueryGap struct {
	Query    string `json:"query"`
	Attempts int    `json:"attempts"`
}

// Dashboard aggregates the circulation reports shown to librarians.
type Dashboard struct {
	Pending      []Loan         `json:"pending_requests"`
	Active       []Loan         `json:"active_loans"`
	MostBorrowed []BorrowCount  `json:"most_borrowed"`
	AvgDuration  []LoanDuration `json:"avg_duration"`
	Gaps         []QueryGap     `json:"gap_analysis"`
}
