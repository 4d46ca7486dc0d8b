package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/stockledger/jobs"
)

var errJobsNotConfigured = errors.New("jobs cli: queue not configured")

// JobsCLI triggers background jobs by hand and reports queue depth.
type JobsCLI struct {
	queue     *jobs.Client
	inspector *asynq.Inspector
	now       func() time.Time
}

// NewJobsCLI connects to the queue's Redis. Nothing is dialled until the
// first command runs.
func NewJobsCLI(opts asynq.RedisClientOpt) *JobsCLI {
	return &JobsCLI{
		queue:     jobs.NewClient(opts, nil),
		inspector: asynq.NewInspector(opts),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Close releases both Redis connections.
func (c *JobsCLI) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.queue != nil {
		errs = append(errs, c.queue.Close())
	}
	return errors.Join(errs...)
}

// Trigger enqueues the named task with its default payload.
func (c *JobsCLI) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.queue == nil {
		return nil, errJobsNotConfigured
	}
	switch name {
	case jobs.TaskLedgerIntegrity:
		return c.queue.EnqueueLedgerIntegrity(ctx, jobs.LedgerIntegrityPayload{ScheduledFor: c.now()})
	case jobs.TaskIdempotencyCleanup:
		return c.queue.Enqueue(ctx, jobs.NewIdempotencyCleanupTask())
	}
	return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
}

// InspectQueue reports the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errJobsNotConfigured
	}
	return jobs.ReadQueueStats(c.inspector)
}
