package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddBook(t *testing.T) {
	f := newFixture(t)
	cover := "https://covers.example.org/dune.jpg"
	b, err := f.catalog.AddBook(context.Background(), NewBook{
		Title:       "Dune",
		Author:      "Frank Herbert",
		ISBN:        "9780441013593",
		Description: "Desert planet politics",
		Tags:        "sf, classic",
		Category:    "Fiction",
		TotalCopies: 4,
		CoverURL:    &cover,
	})
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, 4, b.AvailableCopies)
	assert.False(t, b.CreatedAt.IsZero())

	_, err = f.catalog.AddBook(context.Background(), NewBook{Title: "Dune", Author: "X", ISBN: "9780441013593"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}

func TestAddBookValidation(t *testing.T) {
	f := newFixture(t)
	bad := "not a url"
	_, err := f.catalog.AddBook(context.Background(), NewBook{
		Author:      "Someone",
		ISBN:        "123",
		TotalCopies: -1,
		CoverURL:    &bad,
	})
	require.ErrorIs(t, err, domain.ErrInvalidInput)

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "is required", ve.Fields["title"])
	assert.Equal(t, "must be at least 10", ve.Fields["isbn"])
	assert.Equal(t, "must be 0 or more", ve.Fields["total_copies"])
	assert.Equal(t, "must be a valid URL", ve.Fields["cover_url"])
	assert.NotContains(t, ve.Fields, "author")
}

func TestUpdateBookText(t *testing.T) {
	f := newFixture(t)
	b := f.book(t, 2)

	desc := "A new description"
	tags := "ml, python"
	updated, err := f.catalog.UpdateBookText(context.Background(), b.ID, BookTextUpdate{Description: &desc, Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, b.Title, updated.Title)
	assert.Equal(t, desc, updated.Description)
	assert.Equal(t, tags, updated.Tags)
	assert.Equal(t, 2, updated.AvailableCopies)

	empty := ""
	_, err = f.catalog.UpdateBookText(context.Background(), b.ID, BookTextUpdate{Title: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.catalog.UpdateBookText(context.Background(), 999, BookTextUpdate{Description: &desc})
	assert.ErrorIs(t, err, domain.ErrBookNotFound)
}

func TestRegisterStudent(t *testing.T) {
	f := newFixture(t)
	s := f.student(t)
	got, err := f.catalog.GetStudent(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.AcademicID, got.AcademicID)

	_, err = f.catalog.RegisterStudent(context.Background(), NewStudent{UserID: 99, AcademicID: s.AcademicID, Major: "Math"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = f.catalog.RegisterStudent(context.Background(), NewStudent{AcademicID: "S1"})
	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "user_id")
	assert.Contains(t, ve.Fields, "major")
}

func TestDashboard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	popular := f.book(t, 3)
	other := f.book(t, 3)

	var loans []*domain.Loan
	for _, bookID := range []int64{popular.ID, popular.ID, other.ID} {
		l, err := f.loans.CreateLoan(ctx, bookID, f.student(t).ID)
		require.NoError(t, err)
		loans = append(loans, l)
		f.now = f.now.Add(time.Minute)
	}
	_, err := f.loans.Approve(ctx, loans[0].ID)
	require.NoError(t, err)
	f.now = f.now.Add(3 * 24 * time.Hour)
	_, err = f.loans.Return(ctx, loans[0].ID)
	require.NoError(t, err)
	_, err = f.loans.Approve(ctx, loans[2].ID)
	require.NoError(t, err)

	for _, q := range []string{"quantum", "quantum", "poetry"} {
		require.NoError(t, f.store.AppendSearchLog(ctx, &domain.SearchLog{Query: q}))
	}
	require.NoError(t, f.store.AppendSearchLog(ctx, &domain.SearchLog{Query: "dune", ResultCount: 3}))

	d, err := f.catalog.Dashboard(ctx, 0)
	require.NoError(t, err)

	require.Len(t, d.Pending, 1)
	assert.Equal(t, loans[1].ID, d.Pending[0].ID)
	require.Len(t, d.Active, 1)
	assert.Equal(t, loans[2].ID, d.Active[0].ID)

	require.NotEmpty(t, d.MostBorrowed)
	assert.Equal(t, popular.ID, d.MostBorrowed[0].BookID)
	assert.Equal(t, 2, d.MostBorrowed[0].Total)

	require.Len(t, d.AvgDuration, 1)
	assert.InDelta(t, 3.0, d.AvgDuration[0].AvgDays, 1e-9)

	assert.Equal(t, []domain.QueryGap{{Query: "quantum", Attempts: 2}, {Query: "poetry", Attempts: 1}}, d.Gaps)
}
