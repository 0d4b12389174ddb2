package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/punchamoorthee/libraryops/internal/models"
	"github.com/punchamoorthee/libraryops/internal/service"
	"github.com/punchamoorthee/libraryops/internal/store"
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateBookHandler(w http.ResponseWriter, r *http.Request) {
	var req service.NewBook
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	book, err := h.catalog.AddBook(r.Context(), req)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/books/%d", book.ID))
	respondWithJSON(w, http.StatusCreated, book)
}

// ListBooksHandler returns the catalog in ID order, or the newest books
// first with ?sort=newest. ?limit= caps either listing.
func (h *Handler) ListBooksHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}

	var books []domain.Book
	switch sort := r.URL.Query().Get("sort"); sort {
	case "newest":
		books, err = h.catalog.RecentBooks(r.Context(), int(limit))
	case "", "id":
		books, err = h.catalog.ListBooks(r.Context())
		if err == nil && limit > 0 && int64(len(books)) > limit {
			books = books[:limit]
		}
	default:
		err = &domain.ValidationError{Fields: map[string]string{"sort": "must be one of id newest"}}
	}
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, books)
}

func (h *Handler) GetBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	book, err := h.catalog.GetBook(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, book)
}

func (h *Handler) UpdateBookHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	var req service.BookTextUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	book, err := h.catalog.UpdateBookText(r.Context(), id, req)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, book)
}

func (h *Handler) SimilarBooksHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	res, err := h.search.Similar(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateStudentHandler(w http.ResponseWriter, r *http.Request) {
	var req service.NewStudent
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	student, err := h.catalog.RegisterStudent(r.Context(), req)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/students/%d", student.ID))
	respondWithJSON(w, http.StatusCreated, student)
}

func (h *Handler) GetStudentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	student, err := h.catalog.GetStudent(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, student)
}

func (h *Handler) CreateLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	loan, err := h.loans.CreateLoan(r.Context(), req.BookID, req.StudentID)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/loans/%d", loan.ID))
	respondWithJSON(w, http.StatusCreated, models.NewLoanResponse(*loan, h.loans.Now()))
}

func (h *Handler) GetLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	loan, err := h.loans.GetLoan(r.Context(), id)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewLoanResponse(*loan, h.loans.Now()))
}

// ListLoansHandler filters by ?status=, ?student_id=, ?book_id= and ?limit=.
func (h *Handler) ListLoansHandler(w http.ResponseWriter, r *http.Request) {
	var f store.LoanFilter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseLoanStatus(raw)
		if err != nil {
			respondWithDomainError(w, r, &domain.ValidationError{Fields: map[string]string{"status": err.Error()}})
			return
		}
		f.Status = status
	}
	var err error
	if f.StudentID, err = queryInt(r, "student_id"); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	if f.BookID, err = queryInt(r, "book_id"); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	f.Limit = int(limit)

	loans, err := h.loans.ListLoans(r.Context(), f)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewLoanResponses(loans, h.loans.Now()))
}

func (h *Handler) OverdueLoansHandler(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.Overdue(r.Context())
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewLoanResponses(loans, h.loans.Now()))
}

func (h *Handler) TransitionLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	var req models.TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	loan, err := h.loans.TransitionLoan(r.Context(), id, domain.LoanStatus(req.Status))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewLoanResponse(*loan, h.loans.Now()))
}

func (h *Handler) BulkTransitionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.BulkTransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	res := h.loans.BulkTransition(r.Context(), req.LoanIDs, domain.LoanStatus(req.Status))
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) RateLoanHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	var req models.RatingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	loan, err := h.loans.RateLoan(r.Context(), id, req.Rating)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, models.NewLoanResponse(*loan, h.loans.Now()))
}

// SearchHandler runs ?q= through the semantic search and records the query.
// ?user_id= attributes the query to a user.
func (h *Handler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respondWithDomainError(w, r, &domain.ValidationError{Fields: map[string]string{"q": "is required"}})
		return
	}
	uid, err := queryInt(r, "user_id")
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	var userID *int64
	if uid > 0 {
		userID = &uid
	}

	res, err := h.search.Search(r.Context(), userID, q)
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) AnalyticsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	d, err := h.catalog.Dashboard(r.Context(), int(limit))
	if err != nil {
		respondWithDomainError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}
