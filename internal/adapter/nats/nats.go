// Package nats implements job-lifecycle event publishing using NATS
// JetStream. The job manager publishes one message per status transition;
// nothing in this engine subscribes back, so the adapter is publish-only.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/contextengine/retrieval/internal/domain/job"
	"github.com/contextengine/retrieval/internal/logger"
	"github.com/contextengine/retrieval/internal/resilience"
)

const (
	streamName      = "CONTEXTENGINE"
	subjectJobs     = "jobs.status"
	headerRequestID = "X-Request-ID"
)

// Queue publishes job lifecycle events to NATS JetStream.
type Queue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	breaker *resilience.Breaker
}

// StatusEvent is the payload published whenever the job manager transitions
// a job's status.
type StatusEvent struct {
	JobID            string    `json:"jobId"`
	TargetEntityID   string    `json:"targetEntityId"`
	TargetEntityType string    `json:"targetEntityType"`
	TaskType         string    `json:"taskType"`
	Status           string    `json:"status"`
	Attempts         int       `json:"attempts"`
	LastError        string    `json:"lastError,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Connect establishes a connection to NATS and ensures the JetStream stream
// backing job-status events exists.
func Connect(ctx context.Context, url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     streamName,
		Subjects: []string{"jobs.>"},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}

	slog.Info("nats connected", "url", url, "stream", streamName)
	return &Queue{nc: nc, js: js}, nil
}

// SetBreaker attaches a circuit breaker to the publish path, so a stalled
// NATS server degrades the job manager's event publishing instead of
// blocking job dispatch.
func (q *Queue) SetBreaker(b *resilience.Breaker) {
	q.breaker = b
}

// PublishJobStatus publishes a job's new status to the jobs.status subject.
// Failures are the caller's to log; the job manager's core loop never fails
// a job transition because the event publish failed.
func (q *Queue) PublishJobStatus(ctx context.Context, j *job.Job) error {
	evt := StatusEvent{
		JobID:            j.JobID,
		TargetEntityID:   j.TargetEntityID,
		TargetEntityType: string(j.TargetEntityType),
		TaskType:         string(j.TaskType),
		Status:           string(j.Status),
		Attempts:         j.Attempts,
		LastError:        j.LastError,
		Timestamp:        j.UpdatedAt,
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal job status event: %w", err)
	}

	msg := &nats.Msg{Subject: subjectJobs, Data: data}
	if reqID := logger.RequestID(ctx); reqID != "" {
		msg.Header = nats.Header{}
		msg.Header.Set(headerRequestID, reqID)
	}

	publish := func() error {
		_, err := q.js.PublishMsg(ctx, msg)
		if err != nil {
			return fmt.Errorf("nats publish %s: %w", subjectJobs, err)
		}
		return nil
	}

	if q.breaker != nil {
		return q.breaker.Execute(publish)
	}
	return publish()
}

// Drain gracefully drains any pending publishes, then closes the connection.
func (q *Queue) Drain() error {
	if err := q.nc.Drain(); err != nil {
		return fmt.Errorf("nats drain: %w", err)
	}
	return nil
}

// Close shuts down the NATS connection immediately.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// IsConnected reports whether the NATS connection is active.
func (q *Queue) IsConnected() bool {
	return q.nc.IsConnected()
}
