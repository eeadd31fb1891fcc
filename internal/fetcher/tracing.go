package fetcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/tracing"
)

// StartGetMessageSpan starts a span for one pull request
func StartGetMessageSpan(ctx context.Context, mq storage.MessageQueue, group string, queueOffset int64, maxCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer("tieredstore.fetcher")
	ctx, span := tracer.Start(ctx, "fetcher.get_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String(tracing.AttrTopic, mq.Topic),
		attribute.String(tracing.AttrBroker, mq.BrokerName),
		attribute.Int(tracing.AttrQueue, int(mq.QueueID)),
		attribute.String(tracing.AttrGroup, group),
		attribute.Int64(tracing.AttrQueueOffset, queueOffset),
		attribute.Int(tracing.AttrMaxCount, maxCount),
		attribute.String(tracing.AttrOperation, "get_message"),
	)
	return ctx, span
}

// StartQuerySpan starts a span for a by-key index query
func StartQuerySpan(ctx context.Context, topic, key string) (context.Context, trace.Span) {
	tracer := otel.Tracer("tieredstore.fetcher")
	ctx, span := tracer.Start(ctx, "fetcher.query_message",
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	span.SetAttributes(
		attribute.String(tracing.AttrTopic, topic),
		attribute.String(tracing.AttrKey, key),
		attribute.String(tracing.AttrOperation, "query_message"),
	)
	return ctx, span
}

// finishGetMessageSpan records the outcome on the span
func finishGetMessageSpan(span trace.Span, result *storage.GetMessageResult) {
	span.SetAttributes(
		attribute.String(tracing.AttrStatus, result.Status.String()),
		attribute.Int(tracing.AttrMessageCount, result.MessageCount()),
	)
	span.End()
}
