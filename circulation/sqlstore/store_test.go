package sqlstore_test

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/sqlstore"
	"github.com/AntonStoeckl/library-circulation-go/testutil/sqltest"
	"github.com/AntonStoeckl/library-circulation-go/testutil/storecontract"
	"github.com/AntonStoeckl/library-circulation-go/testutil/testdoubles"
)

func Test_SQLiteStore_FulfillsRecordStoreContract(t *testing.T) {
	storecontract.Run(t, func(t *testing.T) circulation.RecordStore {
		return sqltest.OpenSQLiteStore(t)
	})
}

func Test_SQLiteStore_WithTablePrefix_FulfillsRecordStoreContract(t *testing.T) {
	storecontract.Run(t, func(t *testing.T) circulation.RecordStore {
		return sqltest.OpenSQLiteStore(t, sqlstore.WithTablePrefix("lib_"))
	})
}

func Test_PostgresStore_FulfillsRecordStoreContract(t *testing.T) {
	storecontract.Run(t, func(t *testing.T) circulation.RecordStore {
		return sqltest.OpenPostgresStore(t)
	})
}

func Test_WithTablePrefix_RejectsInvalidPrefixes(t *testing.T) {
	testCases := []struct {
		name     string
		prefix   string
		expected error
	}{
		{name: "empty", prefix: "", expected: circulation.ErrEmptyTableNameSupplied},
		{name: "uppercase", prefix: "Lib_", expected: sqlstore.ErrInvalidTablePrefix},
		{name: "injection", prefix: "x; DROP TABLE books; --", expected: sqlstore.ErrInvalidTablePrefix},
		{name: "leading digit", prefix: "1lib", expected: sqlstore.ErrInvalidTablePrefix},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			db, err := sql.Open("sqlite3", ":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { _ = db.Close() })

			// act
			_, err = sqlstore.NewSQLiteStore(db, sqlstore.WithTablePrefix(tc.prefix))

			// assert
			assert.ErrorIs(t, err, tc.expected)
		})
	}
}

func Test_NewSQLiteStore_RejectsNilDatabase(t *testing.T) {
	_, err := sqlstore.NewSQLiteStore(nil)

	assert.ErrorIs(t, err, circulation.ErrNilDatabaseConnection)
}

func Test_SchemaStatements_UseDialectAndPrefix(t *testing.T) {
	// arrange
	store := sqltest.OpenSQLiteStore(t, sqlstore.WithTablePrefix("lib_"))

	// act
	statements := store.SchemaStatements()

	// assert
	assert.Equal(t, sqlstore.DialectSQLite, store.Dialect())
	require.NotEmpty(t, statements)
	ddl := strings.Join(statements, "\n")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS lib_books")
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS lib_transactions")
	assert.Contains(t, ddl, "AUTOINCREMENT")
	assert.NotContains(t, ddl, "JSONB")
}

func Test_Migrate_IsIdempotent(t *testing.T) {
	store := sqltest.OpenSQLiteStore(t)

	assert.NoError(t, store.Migrate(context.Background()))
}

func Test_Truncate_RemovesAllRecords(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := sqltest.OpenSQLiteStore(t)
	require.NoError(t, store.InsertBook(ctx, storecontract.FixtureBook("978-1")))
	require.NoError(t, store.InsertMember(ctx, storecontract.FixtureMember("m-1", "0170000001")))

	// act
	err := store.Truncate(ctx)

	// assert
	require.NoError(t, err)
	books, err := store.ListBooksByStatus(ctx, circulation.StatusAvailable)
	require.NoError(t, err)
	assert.Empty(t, books)
	members, err := store.ListMembers(ctx)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func Test_Schema_RejectsBorrowedBookWithoutBorrower(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := sqltest.OpenSQLiteStore(t)
	book := storecontract.FixtureBook("978-1")
	book.Status = circulation.StatusBorrowed

	// act
	err := store.InsertBook(ctx, book)

	// assert
	assert.ErrorIs(t, err, sqlstore.ErrExecutingFailed)
}

func Test_Store_ReportsObservability(t *testing.T) {
	// arrange
	ctx := context.Background()
	logSpy := testdoubles.NewLogHandlerSpy(false)
	metricsSpy := testdoubles.NewMetricsCollectorSpy()
	tracingSpy := testdoubles.NewTracingCollectorSpy()
	store := sqltest.OpenSQLiteStore(
		t,
		sqlstore.WithLogger(slog.New(logSpy)),
		sqlstore.WithMetrics(metricsSpy),
		sqlstore.WithTracing(tracingSpy),
	)
	require.NoError(t, store.InsertBook(ctx, storecontract.FixtureBook("978-1")))

	// act
	duplicateErr := store.InsertBook(ctx, storecontract.FixtureBook("978-1"))

	// assert
	assert.ErrorIs(t, duplicateErr, circulation.ErrDuplicateRecord)
	assert.True(t, metricsSpy.HasDuration("circulation_store_duration_seconds",
		map[string]string{"operation": "insert_book", "status": "success"}))
	assert.Equal(t, 1, metricsSpy.CountCounter("circulation_store_errors_total",
		map[string]string{"operation": "insert_book", "error_type": "duplicate"}))
	assert.True(t, tracingSpy.HasSpan("circulation_store.insert_book", "success"))
	assert.True(t, tracingSpy.HasSpan("circulation_store.insert_book", "error"))
	assert.True(t, logSpy.HasLogWithMessage(slog.LevelDebug, "executed sql for: insert_book").
		WithDurationMS().
		Assert())
}

type requestIDKey struct{}

func Test_Store_PrefersContextualLogger(t *testing.T) {
	// arrange
	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-42")
	logSpy := testdoubles.NewLogHandlerSpy(false)
	contextualSpy := testdoubles.NewContextualLoggerSpy()
	store := sqltest.OpenSQLiteStore(
		t,
		sqlstore.WithLogger(slog.New(logSpy)),
		sqlstore.WithContextualLogger(contextualSpy),
	)
	logSpy.Reset()

	// act
	_, err := store.ListBooksByStatus(ctx, circulation.StatusAvailable)

	// assert
	require.NoError(t, err)
	assert.True(t, contextualSpy.HasRecordWithContextValue("debug", "executed sql for: list_books", requestIDKey{}, "req-42"))
	assert.Zero(t, logSpy.RecordCount())
}

func newSQLiteEngine(t *testing.T, options ...circulation.Option) (*circulation.Engine, *sqlstore.Store) {
	t.Helper()

	store := sqltest.OpenSQLiteStore(t)
	engine, err := circulation.NewEngine(store, options...)
	require.NoError(t, err)

	return engine, store
}

func Test_Engine_OnSQLite_IssueAndReturnRoundTrip(t *testing.T) {
	// arrange
	ctx := context.Background()
	engine, store := newSQLiteEngine(t)
	_, err := engine.AddBook(ctx, circulation.NewBook{ISBN: "978-0132350884", Title: "Clean Code", Author: "Robert C. Martin"})
	require.NoError(t, err)
	_, err = engine.AddMember(ctx, circulation.NewMember{Name: "Ann", Mobile: "0170000001", Email: "ann@example.org"})
	require.NoError(t, err)

	// act
	issued, issueErr := engine.Issue(ctx, "978-0132350884", circulation.IssueRequest{
		Mobile: "0170000001", Borrower: "Ann", DueDate: "2024-04-01",
	})
	returned, returnErr := engine.Return(ctx, "978-0132350884", circulation.ReturnRequest{Mobile: "0170000001"})

	// assert
	require.NoError(t, issueErr)
	require.NoError(t, returnErr)
	assert.Equal(t, circulation.StatusBorrowed, issued.Book.Status)
	assert.Equal(t, circulation.StatusAvailable, returned.Book.Status)
	assert.Empty(t, returned.Book.Borrower)
	require.NotNil(t, returned.Loan)
	assert.False(t, returned.Loan.IsOpen())

	txs, err := store.ListTransactionsByISBN(ctx, "978-0132350884")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, circulation.TransactionIssue, txs[0].TransactionType)
	assert.Equal(t, "Ann", txs[0].Details.BorrowerName)
	require.NotNil(t, txs[0].Details.DueDate)
	assert.Equal(t, circulation.TransactionReturn, txs[1].TransactionType)

	member, err := store.FindMemberByMobile(ctx, "0170000001")
	require.NoError(t, err)
	assert.Empty(t, member.BookID)
	assert.Nil(t, member.IssueDate)
}

func Test_Engine_OnSQLite_ConcurrentIssueYieldsOneSuccess(t *testing.T) {
	// arrange
	ctx := context.Background()
	engine, store := newSQLiteEngine(t)
	_, err := engine.AddBook(ctx, circulation.NewBook{ISBN: "978-1", Title: "Title", Author: "Author"})
	require.NoError(t, err)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup

	// act
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = engine.Issue(ctx, "978-1", circulation.IssueRequest{
				Mobile: "01700000" + strconv.Itoa(10+i), Borrower: "Borrower", DueDate: "2024-04-01",
			})
		}()
	}
	wg.Wait()

	// assert
	successes, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case circulation.KindOf(err) == circulation.KindConflict:
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)

	txs, err := store.ListTransactionsByISBN(ctx, "978-1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func Test_Engine_OnSQLite_DeleteGuardsBorrowedBook(t *testing.T) {
	// arrange
	ctx := context.Background()
	engine, _ := newSQLiteEngine(t, circulation.WithDependentWriteTimeout(2*time.Second))
	_, err := engine.AddBook(ctx, circulation.NewBook{ISBN: "978-1", Title: "Title", Author: "Author"})
	require.NoError(t, err)
	_, err = engine.Issue(ctx, "978-1", circulation.IssueRequest{Mobile: "0170000001", Borrower: "Ann", DueDate: "2024-04-01"})
	require.NoError(t, err)

	// act
	_, err = engine.DeleteBook(ctx, "978-1")

	// assert
	assert.ErrorIs(t, err, circulation.ErrConflict)
	book, getErr := engine.GetBook(ctx, "978-1")
	require.NoError(t, getErr)
	assert.Equal(t, circulation.StatusBorrowed, book.Status)
}
