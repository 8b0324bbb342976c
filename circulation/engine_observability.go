package circulation

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

const (
	// Metric names.
	MetricOperationDuration = "circulation_operation_duration_seconds"
	MetricOperationCalls    = "circulation_operation_calls_total"
	MetricConflicts         = "circulation_conflicts_total"
	MetricInconsistentState = "circulation_inconsistent_state_total"

	// Span names are "circulation." + operation name.
	spanNamePrefix = "circulation."

	// Operation names, used as metric labels, span attributes and error Op values.
	OperationIssue              = "issue"
	OperationReturn             = "return"
	OperationDeleteBook         = "delete_book"
	OperationAddBook            = "add_book"
	OperationGetBook            = "get_book"
	OperationListAvailableBooks = "list_available_books"
	OperationListMembers        = "list_members"
	OperationGetMember          = "get_member"
	OperationAddMember          = "add_member"
	OperationUpdateMember       = "update_member"
	OperationDeleteMember       = "delete_member"
	OperationListTransactions   = "list_transactions"
	OperationListLoans          = "list_loans"

	// Status values for metrics and spans.
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusConflict = "conflict"

	// Attribute and label keys.
	AttrOperation  = "operation"
	AttrStatus     = "status"
	AttrErrorKind  = "error_kind"
	AttrISBN       = "isbn"
	AttrDurationMS = "duration_ms"
	AttrError      = "error"
	AttrBorrower   = "borrower"
	AttrMemberID   = "member_id"
	AttrCount      = "count"

	logMsgOperationCompleted = "circulation operation completed"
	logMsgOperationRejected  = "circulation operation rejected"
	logMsgOperationFailed    = "circulation operation failed"
	logMsgInconsistentState  = "circulation records left in an inconsistent state"
	logMsgLockAcquired       = "book lock acquired"
	logMsgUnlockFailed       = "failed to release book lock"
)

// observation tracks one engine operation for logs, metrics and tracing.
type observation struct {
	engine    *Engine
	ctx       context.Context
	operation string
	span      SpanContext
	start     time.Time
	attrs     []any
}

func (e *Engine) startObservation(ctx context.Context, operation string, attrs ...any) (context.Context, *observation) {
	var span SpanContext

	if e.tracingCollector != nil {
		spanAttrs := map[string]string{AttrOperation: operation}
		for i := 0; i+1 < len(attrs); i += 2 {
			if key, ok := attrs[i].(string); ok {
				if value, ok := attrs[i+1].(string); ok {
					spanAttrs[key] = value
				}
			}
		}

		ctx, span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	return ctx, &observation{
		engine:    e,
		ctx:       ctx,
		operation: operation,
		span:      span,
		start:     time.Now(),
		attrs:     attrs,
	}
}

// finish records the outcome of the operation. It must be called exactly once.
func (o *observation) finish(err error, extraAttrs ...any) {
	duration := time.Since(o.start)
	status := statusFor(err)

	o.recordMetrics(status, err, duration)
	o.finishSpan(status, err, duration)

	args := append([]any{AttrOperation, o.operation, AttrDurationMS, toMilliseconds(duration)}, o.attrs...)
	args = append(args, extraAttrs...)

	if err == nil {
		o.engine.logInfo(o.ctx, logMsgOperationCompleted, args...)
		return
	}

	args = append(args, AttrErrorKind, KindOf(err).String(), AttrError, err.Error())

	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict:
		o.engine.logInfo(o.ctx, logMsgOperationRejected, args...)
	case KindInconsistentState:
		o.engine.logError(o.ctx, logMsgInconsistentState, args...)
	default:
		o.engine.logError(o.ctx, logMsgOperationFailed, args...)
	}
}

func (o *observation) recordMetrics(status string, err error, duration time.Duration) {
	if o.engine.metricsCollector == nil {
		return
	}

	labels := map[string]string{AttrOperation: o.operation, AttrStatus: status}
	if err != nil {
		labels[AttrErrorKind] = KindOf(err).String()
	}

	o.engine.recordDuration(o.ctx, MetricOperationDuration, duration, labels)
	o.engine.incrementCounter(o.ctx, MetricOperationCalls, labels)

	switch KindOf(err) {
	case KindConflict:
		o.engine.incrementCounter(o.ctx, MetricConflicts, map[string]string{AttrOperation: o.operation})
	case KindInconsistentState:
		o.engine.incrementCounter(o.ctx, MetricInconsistentState, map[string]string{AttrOperation: o.operation})
	}
}

func (o *observation) finishSpan(status string, err error, duration time.Duration) {
	if o.engine.tracingCollector == nil || o.span == nil {
		return
	}

	attrs := map[string]string{AttrDurationMS: formatMilliseconds(duration)}
	if err != nil {
		attrs[AttrErrorKind] = KindOf(err).String()
	}

	o.engine.tracingCollector.FinishSpan(o.span, status, attrs)
}

func statusFor(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrConflict):
		return StatusConflict
	default:
		return StatusError
	}
}

func (e *Engine) recordDuration(ctx context.Context, metric string, duration time.Duration, labels map[string]string) {
	if contextual, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metric, duration, labels)
}

func (e *Engine) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if contextual, ok := e.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metric, labels)
}

func (e *Engine) logDebug(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logInfo(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarn(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logError(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Error(msg, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func formatMilliseconds(d time.Duration) string {
	return strconv.FormatFloat(toMilliseconds(d), 'f', 2, 64)
}
