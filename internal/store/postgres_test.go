package store

import (
	"testing"

	"github.com/punchamoorthee/libraryops/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestListLoansQuery(t *testing.T) {
	q := listLoansQuery(LoanFilter{})
	assert.Contains(t, q, "$2::bigint = 0")
	assert.Contains(t, q, "$3::bigint = 0")
	assert.Contains(t, q, "ORDER BY requested_at DESC, id LIMIT ALL")

	q = listLoansQuery(LoanFilter{Status: domain.StatusActive, Limit: 10})
	assert.Contains(t, q, "ORDER BY due_at, id LIMIT 10")

	q = listLoansQuery(LoanFilter{Status: domain.StatusPending})
	assert.Contains(t, q, "ORDER BY requested_at, id LIMIT ALL")
}
