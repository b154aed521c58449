package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "contextengine"

// Metrics holds all retrieval-engine metric instruments.
type Metrics struct {
	RetrievalsStarted   metric.Int64Counter
	RetrievalsCompleted metric.Int64Counter
	RetrievalDuration   metric.Float64Histogram
	SnippetsReturned    metric.Int64Histogram

	JobsDispatched  metric.Int64Counter
	JobsCompleted   metric.Int64Counter
	JobsFailed      metric.Int64Counter
	JobsRateLimited metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RetrievalsStarted, err = meter.Int64Counter("contextengine.retrievals.started",
		metric.WithDescription("Number of retrieve_relevant_context calls started"))
	if err != nil {
		return nil, err
	}

	m.RetrievalsCompleted, err = meter.Int64Counter("contextengine.retrievals.completed",
		metric.WithDescription("Number of retrieve_relevant_context calls completed"))
	if err != nil {
		return nil, err
	}

	m.RetrievalDuration, err = meter.Float64Histogram("contextengine.retrieval.duration_seconds",
		metric.WithDescription("Retrieval pipeline duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.SnippetsReturned, err = meter.Int64Histogram("contextengine.retrieval.snippets_returned",
		metric.WithDescription("Number of snippets returned after compression"))
	if err != nil {
		return nil, err
	}

	m.JobsDispatched, err = meter.Int64Counter("contextengine.jobs.dispatched",
		metric.WithDescription("Number of background AI jobs dispatched"))
	if err != nil {
		return nil, err
	}

	m.JobsCompleted, err = meter.Int64Counter("contextengine.jobs.completed",
		metric.WithDescription("Number of background AI jobs completed"))
	if err != nil {
		return nil, err
	}

	m.JobsFailed, err = meter.Int64Counter("contextengine.jobs.failed",
		metric.WithDescription("Number of background AI jobs that reached a failed terminal status"))
	if err != nil {
		return nil, err
	}

	m.JobsRateLimited, err = meter.Int64Counter("contextengine.jobs.rate_limited",
		metric.WithDescription("Number of background AI jobs that hit a rate limit"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordJobDispatched satisfies jobmanager.Metrics.
func (m *Metrics) RecordJobDispatched(ctx context.Context) { m.JobsDispatched.Add(ctx, 1) }

// RecordJobCompleted satisfies jobmanager.Metrics.
func (m *Metrics) RecordJobCompleted(ctx context.Context) { m.JobsCompleted.Add(ctx, 1) }

// RecordJobFailed satisfies jobmanager.Metrics.
func (m *Metrics) RecordJobFailed(ctx context.Context) { m.JobsFailed.Add(ctx, 1) }

// RecordJobRateLimited satisfies jobmanager.Metrics.
func (m *Metrics) RecordJobRateLimited(ctx context.Context) { m.JobsRateLimited.Add(ctx, 1) }

// RecordRetrievalStarted satisfies mcp.RetrievalMetrics.
func (m *Metrics) RecordRetrievalStarted(ctx context.Context) { m.RetrievalsStarted.Add(ctx, 1) }

// RecordRetrievalCompleted satisfies mcp.RetrievalMetrics.
func (m *Metrics) RecordRetrievalCompleted(ctx context.Context, durationSeconds float64, snippetsReturned int) {
	m.RetrievalsCompleted.Add(ctx, 1)
	m.RetrievalDuration.Record(ctx, durationSeconds)
	m.SnippetsReturned.Record(ctx, int64(snippetsReturned))
}
