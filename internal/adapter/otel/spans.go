package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "contextengine"

// StartRetrievalSpan starts a span wrapping one retrieve_relevant_context
// call, covering the whole pipeline.
func StartRetrievalSpan(ctx context.Context, conversationID, query string, tokenBudget int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "retrieval",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.String("query", query),
			attribute.Int("token_budget", tokenBudget),
		),
	)
}

// StartStageSpan starts a span for a single pipeline stage (tokenize,
// generate, expand, rank, compress) within a retrieval span.
func StartStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, stage)
}

// StartJobSpan starts a span for one background AI job dispatch.
func StartJobSpan(ctx context.Context, jobID, taskType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "job",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.task_type", taskType),
		),
	)
}

// JobSpans adapts StartJobSpan to the jobmanager.Spans port, which wants a
// plain close func instead of a trace.Span so that package stays free of an
// otel import.
type JobSpans struct{}

// StartJobSpan satisfies jobmanager.Spans.
func (JobSpans) StartJobSpan(ctx context.Context, jobID, taskType string) (context.Context, func()) {
	spanCtx, span := StartJobSpan(ctx, jobID, taskType)
	return spanCtx, func() { span.End() }
}

// RetrievalSpans adapts StartRetrievalSpan/StartStageSpan to the
// retrieval.Spans port.
type RetrievalSpans struct{}

// StartRetrievalSpan satisfies retrieval.Spans.
func (RetrievalSpans) StartRetrievalSpan(ctx context.Context, conversationID, query string, tokenBudget int) (context.Context, func()) {
	spanCtx, span := StartRetrievalSpan(ctx, conversationID, query, tokenBudget)
	return spanCtx, func() { span.End() }
}

// StartStageSpan satisfies retrieval.Spans.
func (RetrievalSpans) StartStageSpan(ctx context.Context, stage string) (context.Context, func()) {
	spanCtx, span := StartStageSpan(ctx, stage)
	return spanCtx, func() { span.End() }
}
