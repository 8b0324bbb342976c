// Package oteladapters provides OpenTelemetry implementations of the observability interfaces
// of the circulation engine and its stores: ContextualLogger, ContextualMetricsCollector and TracingCollector.
package oteladapters
