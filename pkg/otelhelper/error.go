package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SetFailure marks span as failed and tags it with the failure kind.
func SetFailure(span trace.Span, err error, kind string, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String(FailureKindKey, kind))
	span.AddEvent("execution_failed", trace.WithAttributes(attrs...))
}
