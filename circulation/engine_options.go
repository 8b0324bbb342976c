package circulation

import "time"

// Option configures an Engine.
type Option func(*Engine) error

// WithClock sets the time source for transaction dates, issue dates and return dates.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) error {
		if clock == nil {
			return ErrNilClock
		}

		e.clock = clock

		return nil
	}
}

// WithIDGenerator sets the generator for record ids of books, members, loans and transactions.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) error {
		if newID == nil {
			return ErrNilIDGenerator
		}

		e.newID = newID

		return nil
	}
}

// WithBookLocker adds a per-book lock around the check-and-write span of Issue, Return and DeleteBook.
// The compare-and-swap in the RecordStore stays in place; the lock is an additional guard.
func WithBookLocker(locker BookLocker) Option {
	return func(e *Engine) error {
		e.locker = locker
		return nil
	}
}

// WithUnconditionalDelete lets DeleteBook remove borrowed books as well.
func WithUnconditionalDelete() Option {
	return func(e *Engine) error {
		e.unconditionalDelete = true
		return nil
	}
}

// WithDependentWriteTimeout bounds the writes that follow a committed status change.
// Those writes run detached from the caller's cancellation.
func WithDependentWriteTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		if timeout <= 0 {
			return ErrNonPositiveTimeout
		}

		e.dependentWriteTimeout = timeout

		return nil
	}
}

// WithLogger sets the logger for the Engine.
//
// Debug level: lock acquisition and release
// Info level: completed and rejected operations
// Error level: store failures and inconsistent states.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, which takes precedence over WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
