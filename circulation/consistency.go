package circulation

import "context"

// ConsistencyLevel tells a RecordStore whether a read may be served by a replica.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary database. The engine uses it for the
	// read-check-write paths of Issue, Return and DeleteBook.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica. The engine uses it for listings.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key under which the consistency level is stored.
const ConsistencyLevelKey contextKey = "circulation.consistency_level"

// WithStrongConsistency returns a context that routes store reads to the primary database.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows store reads from a replica.
//
//	ctx = circulation.WithEventualConsistency(ctx)
//	books, err := store.ListBooksByStatus(ctx, circulation.StatusAvailable)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from ctx, defaulting to StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation for logging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
