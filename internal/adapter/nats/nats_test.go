package nats

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/contextengine/retrieval/internal/domain/job"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

func TestQueue_PublishJobStatus(t *testing.T) {
	q := testConnect(t)
	ctx := context.Background()

	consumer, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: subjectJobs,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("create consumer: %v", err)
	}

	received := make(chan []byte, 1)
	sub, err := consumer.Consume(func(msg jetstream.Msg) {
		received <- msg.Data()
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	defer sub.Stop()

	j := &job.Job{
		JobID:            "job-1",
		TargetEntityID:   "entity-1",
		TargetEntityType: job.TargetCodeEntity,
		TaskType:         job.TaskEnrichEntitySummaryKeywords,
		Status:           job.StatusCompleted,
		Attempts:         1,
		UpdatedAt:        time.Now(),
	}
	if err := q.PublishJobStatus(ctx, j); err != nil {
		t.Fatalf("PublishJobStatus: %v", err)
	}

	select {
	case data := <-received:
		if len(data) == 0 {
			t.Error("expected non-empty event payload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job status event")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)

	if !q.IsConnected() {
		t.Error("IsConnected() = false after Connect, want true")
	}
}
