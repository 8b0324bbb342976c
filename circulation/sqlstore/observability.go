package sqlstore

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

const (
	metricStoreDuration = "circulation_store_duration_seconds"
	metricStoreErrors   = "circulation_store_errors_total"
	spanNamePrefix      = "circulation_store."

	logMsgSQLExecuted     = "executed sql for: "
	logMsgStatementFailed = "sql statement failed"
	logMsgCloseRowsFailed = "failed to close database rows"
	logAttrQuery          = "query"
	logAttrDurationMS     = "duration_ms"
	logAttrError          = "error"
	logAttrOperation      = "operation"
	labelOperation        = "operation"
	labelStatus           = "status"
	labelErrorType        = "error_type"
	statusSuccess         = "success"
	statusError           = "error"
	errorTypeDuplicate    = "duplicate"
	errorTypeCanceled     = "canceled"
	errorTypeTimeout      = "timeout"
	errorTypeDatabase     = "database"
	operationInsertBook   = "insert_book"
	operationFindBook     = "find_book"
	operationListBooks    = "list_books"
	operationSwapStatus   = "swap_status"
	operationDeleteBook   = "delete_book"
	operationInsertMember = "insert_member"
	operationFindMember   = "find_member"
	operationListMembers  = "list_members"
	operationUpdateMember = "update_member"
	operationDeleteMember = "delete_member"
	operationInsertLoan   = "insert_loan"
	operationFindLoan     = "find_loan"
	operationCloseLoan    = "close_loan"
	operationListLoans    = "list_loans"
	operationAppendTx     = "append_transaction"
	operationListTx       = "list_transactions"
	operationMigrate      = "migrate"
)

// observe starts a span for a store operation and returns the function that records its outcome.
func (s *Store) observe(ctx context.Context, operation string) (context.Context, func(err error)) {
	start := time.Now()

	var span circulation.SpanContext
	if s.tracingCollector != nil {
		ctx, span = s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{labelOperation: operation})
	}

	return ctx, func(err error) {
		status := statusSuccess
		if err != nil {
			status = statusError
		}

		if s.metricsCollector != nil {
			labels := map[string]string{labelOperation: operation, labelStatus: status}
			s.recordDuration(ctx, time.Since(start), labels)

			if err != nil {
				s.incrementErrors(ctx, map[string]string{labelOperation: operation, labelErrorType: errorType(err)})
			}
		}

		if s.tracingCollector != nil && span != nil {
			attrs := map[string]string{}
			if err != nil {
				attrs[labelErrorType] = errorType(err)
			}

			s.tracingCollector.FinishSpan(span, status, attrs)
		}
	}
}

func (s *Store) recordDuration(ctx context.Context, duration time.Duration, labels map[string]string) {
	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricStoreDuration, duration, labels)
		return
	}

	s.metricsCollector.RecordDuration(metricStoreDuration, duration, labels)
}

func (s *Store) incrementErrors(ctx context.Context, labels map[string]string) {
	if contextual, ok := s.metricsCollector.(circulation.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricStoreErrors, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metricStoreErrors, labels)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, circulation.ErrDuplicateRecord):
		return errorTypeDuplicate
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeTimeout
	default:
		return errorTypeDatabase
	}
}

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery, operation string, duration time.Duration) {
	s.logDebug(ctx, logMsgSQLExecuted+operation, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
}

func (s *Store) logDebug(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(ctx context.Context, msg string, args ...any) {
	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if s.logger != nil {
		s.logger.Error(msg, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
