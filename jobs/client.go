package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sellerledger/sellerledger/internal/snapshot"
)

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// ScheduleRebuild enqueues a snapshot rebuild for one SKU from the given
// date forward.
func (c *Client) ScheduleRebuild(ctx context.Context, accountID int64, sku string, from time.Time) error {
	task, err := NewSnapshotRebuildTask(SnapshotRebuildPayload{
		AccountID: accountID,
		SKUs:      []string{sku},
		From:      from,
	})
	if err != nil {
		return err
	}
	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	return err
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// SyncScheduler rebuilds snapshots inline. Used when no redis queue is
// configured.
type SyncScheduler struct {
	Rebuilder *snapshot.Rebuilder
}

// ScheduleRebuild replays the SKU immediately up to today.
func (s *SyncScheduler) ScheduleRebuild(ctx context.Context, accountID int64, sku string, from time.Time) error {
	return s.Rebuilder.RebuildMany(ctx, accountID, []string{sku}, from, time.Now().UTC())
}
