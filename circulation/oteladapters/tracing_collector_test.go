package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/circulation/oteladapters"
)

func newRecordedCollector() (*oteladapters.TracingCollector, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	return oteladapters.NewTracingCollector(provider.Tracer("circulation-test")), recorder
}

func attributeValue(span sdktrace.ReadOnlySpan, key string) (string, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_RecordsSpanWithStatusAndAttributes(t *testing.T) {
	testCases := []struct {
		status       string
		expectedCode codes.Code
	}{
		{status: circulation.StatusSuccess, expectedCode: codes.Ok},
		{status: circulation.StatusError, expectedCode: codes.Error},
		{status: circulation.StatusConflict, expectedCode: codes.Error},
		{status: "canceled", expectedCode: codes.Error},
		{status: "timeout", expectedCode: codes.Error},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			collector, recorder := newRecordedCollector()

			// act
			_, span := collector.StartSpan(context.Background(), "circulation.issue", map[string]string{"isbn": "978-1"})
			span.AddAttribute("borrower", "Ann")
			collector.FinishSpan(span, tc.status, map[string]string{"error_kind": "conflict"})

			// assert
			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, "circulation.issue", ended[0].Name())
			assert.Equal(t, tc.expectedCode, ended[0].Status().Code)

			for key, want := range map[string]string{"isbn": "978-1", "borrower": "Ann", "error_kind": "conflict"} {
				got, found := attributeValue(ended[0], key)
				assert.True(t, found, key)
				assert.Equal(t, want, got)
			}
		})
	}
}

func Test_TracingCollector_KeepsUnknownStatusAsAttribute(t *testing.T) {
	collector, recorder := newRecordedCollector()

	_, span := collector.StartSpan(context.Background(), "circulation.return", nil)
	collector.FinishSpan(span, "partial", nil)

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Contains(t, ended[0].Attributes(), attribute.String("status", "partial"))
}

func Test_TracingCollector_PropagatesParentSpan(t *testing.T) {
	// arrange
	collector, recorder := newRecordedCollector()

	// act
	ctx, parent := collector.StartSpan(context.Background(), "circulation.issue", nil)
	_, child := collector.StartSpan(ctx, "circulation_store.swap_status", nil)
	collector.FinishSpan(child, circulation.StatusSuccess, nil)
	collector.FinishSpan(parent, circulation.StatusSuccess, nil)

	// assert
	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	assert.Equal(t, ended[1].SpanContext().TraceID(), ended[0].SpanContext().TraceID())
}
