package circulation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

func Test_Book_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		book    circulation.Book
		wantErr bool
	}{
		{name: "available without borrower", book: circulation.Book{ISBN: "1", Status: circulation.StatusAvailable}},
		{name: "borrowed with borrower", book: circulation.Book{ISBN: "1", Status: circulation.StatusBorrowed, Borrower: "Alice"}},
		{name: "borrowed without borrower", book: circulation.Book{ISBN: "1", Status: circulation.StatusBorrowed}, wantErr: true},
		{name: "available with borrower", book: circulation.Book{ISBN: "1", Status: circulation.StatusAvailable, Borrower: "Alice"}, wantErr: true},
		{name: "unknown status", book: circulation.Book{ISBN: "1", Status: "lost"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.book.Validate()

			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func Test_Loan_IsOverdue(t *testing.T) {
	// arrange
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	returned := due.Add(48 * time.Hour)
	open := circulation.Loan{DueDate: due}
	closed := circulation.Loan{DueDate: due, ReturnedAt: &returned}

	// assert
	assert.True(t, open.IsOverdue(due.Add(time.Hour)))
	assert.False(t, open.IsOverdue(due.Add(-time.Hour)))
	assert.False(t, closed.IsOverdue(due.Add(72*time.Hour)), "closed loans are never overdue")
}

func Test_Error_MatchesKindSentinelAndCause(t *testing.T) {
	// arrange
	cause := errors.New("connection reset")
	err := error(&circulation.Error{Kind: circulation.KindStore, Op: "issue", Message: "record store failed", Err: cause})

	// assert
	assert.ErrorIs(t, err, circulation.ErrStore)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, circulation.ErrConflict)
	assert.Equal(t, circulation.KindStore, circulation.KindOf(err))
	assert.Equal(t, "issue: record store failed: connection reset", err.Error())
	assert.Equal(t, circulation.ErrorKind(0), circulation.KindOf(cause))
	assert.Equal(t, "inconsistent_state", circulation.KindInconsistentState.String())
}

func Test_ConsistencyLevel_DefaultsToStrong(t *testing.T) {
	// arrange
	ctx := context.Background()

	// assert
	assert.Equal(t, circulation.StrongConsistency, circulation.GetConsistencyLevel(ctx))
	assert.Equal(t, circulation.EventualConsistency, circulation.GetConsistencyLevel(circulation.WithEventualConsistency(ctx)))
	assert.Equal(t, "eventual", circulation.EventualConsistency.String())
}
