package shell_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/library/shell"
	"github.com/AntonStoeckl/library-circulation-go/testutil/testdoubles"
)

// lockBusy mimics the engine error for a per-book lock held by someone else.
var lockBusy = &circulation.Error{
	Kind:    circulation.KindConflict,
	Op:      circulation.OperationIssue,
	Message: "book is locked",
	Err:     circulation.ErrLockNotAcquired,
}

var storeDown = &circulation.Error{
	Kind:    circulation.KindStore,
	Op:      circulation.OperationGetBook,
	Message: "record store failed",
	Err:     errors.New("connection refused"),
}

func Test_RetryWithExponentialBackoff_SucceedsWithoutRetry(t *testing.T) {
	callCount := 0

	err := shell.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func Test_RetryWithExponentialBackoff_RetriesTransientErrors(t *testing.T) {
	testCases := []struct {
		name string
		err  error
	}{
		{name: "lock not acquired", err: lockBusy},
		{name: "store failure", err: storeDown},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			callCount := 0
			metricsSpy := testdoubles.NewMetricsCollectorSpy()

			// act
			err := shell.RetryWithExponentialBackoff(
				context.Background(),
				func(context.Context) error {
					callCount++
					if callCount < 3 {
						return tc.err
					}
					return nil
				},
				shell.WithBaseDelay(time.Millisecond),
				shell.WithMetrics(metricsSpy, circulation.OperationIssue),
			)

			// assert
			assert.NoError(t, err)
			assert.Equal(t, 3, callCount)
			assert.Equal(t, 2, metricsSpy.CountCounter(shell.RetryAttemptsMetric, map[string]string{"operation": "issue"}))
			assert.True(t, metricsSpy.HasDuration(shell.RetryDelayMetric, map[string]string{"attempt_number": "2"}))
		})
	}
}

func Test_RetryWithExponentialBackoff_FailsFastOnPermanentErrors(t *testing.T) {
	permanent := []error{
		&circulation.Error{Kind: circulation.KindConflict, Op: "issue", Message: "book 978-1 is already borrowed"},
		&circulation.Error{Kind: circulation.KindValidation, Op: "issue", Message: "missing or invalid fields"},
		&circulation.Error{Kind: circulation.KindNotFound, Op: "issue", Message: "book not found"},
		&circulation.Error{Kind: circulation.KindInconsistentState, Op: "issue", Message: "ledger write failed"},
		&circulation.Error{Kind: circulation.KindStore, Op: "issue", Message: "aborted", Err: context.Canceled},
		errors.New("unclassified"),
	}

	for _, permanentErr := range permanent {
		t.Run(permanentErr.Error(), func(t *testing.T) {
			callCount := 0

			err := shell.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
				callCount++
				return permanentErr
			})

			assert.ErrorIs(t, err, permanentErr)
			assert.Equal(t, 1, callCount)
		})
	}
}

func Test_RetryWithExponentialBackoff_ReportsExhaustion(t *testing.T) {
	// arrange
	callCount := 0
	metricsSpy := testdoubles.NewMetricsCollectorSpy()

	// act
	err := shell.RetryWithExponentialBackoff(
		context.Background(),
		func(context.Context) error {
			callCount++
			return lockBusy
		},
		shell.WithMaxAttempts(3),
		shell.WithBaseDelay(time.Millisecond),
		shell.WithJitterFactor(0),
		shell.WithMetrics(metricsSpy, circulation.OperationIssue),
	)

	// assert
	assert.ErrorIs(t, err, circulation.ErrLockNotAcquired)
	assert.Equal(t, 3, callCount)
	assert.Equal(t, 1, metricsSpy.CountCounter(shell.RetryExhaustedMetric,
		map[string]string{"operation": "issue", "final_error_type": "lock_not_acquired"}))
}

func Test_RetryWithExponentialBackoff_StopsOnCanceledContext(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	// act
	err := shell.RetryWithExponentialBackoff(
		ctx,
		func(context.Context) error {
			callCount++
			cancel()
			return storeDown
		},
		shell.WithBaseDelay(time.Second),
	)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, circulation.ErrStore)
	assert.Equal(t, 1, callCount)
}

func Test_RetryWithExponentialBackoff_RejectsInvalidOptions(t *testing.T) {
	testCases := []struct {
		name     string
		option   shell.RetryOption
		expected error
	}{
		{name: "zero attempts", option: shell.WithMaxAttempts(0), expected: shell.ErrInvalidMaxAttempts},
		{name: "negative delay", option: shell.WithBaseDelay(-time.Millisecond), expected: shell.ErrNegativeBaseDelay},
		{name: "jitter above one", option: shell.WithJitterFactor(1.5), expected: shell.ErrInvalidJitterFactor},
		{name: "nil collector", option: shell.WithMetrics(nil, "issue"), expected: shell.ErrNilMetricsCollector},
		{name: "empty operation", option: shell.WithMetrics(testdoubles.NewMetricsCollectorSpy(), ""), expected: shell.ErrEmptyOperation},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			callCount := 0

			err := shell.RetryWithExponentialBackoff(context.Background(), func(context.Context) error {
				callCount++
				return nil
			}, tc.option)

			require.ErrorIs(t, err, tc.expected)
			assert.Equal(t, 0, callCount)
		})
	}
}
