package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSnapshotRebuild recomputes cost snapshots for a set of SKUs.
	TaskSnapshotRebuild = "cogs:snapshot_rebuild"
	// TaskNightlyApply runs COGS application for the previous day.
	TaskNightlyApply = "cogs:nightly_apply"
)

// SnapshotRebuildPayload names the SKUs and date range to replay. An empty
// SKU list means every SKU with ledger activity; a zero To means today.
type SnapshotRebuildPayload struct {
	AccountID int64     `json:"account_id"`
	SKUs      []string  `json:"skus,omitempty"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to,omitempty"`
}

// NewSnapshotRebuildTask constructs an Asynq task for a snapshot rebuild.
func NewSnapshotRebuildTask(payload SnapshotRebuildPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotRebuild, body, asynq.Queue(QueueDefault)), nil
}

// NightlyApplyPayload carries scheduling metadata. Method and accounts come
// from worker configuration; the payload only timestamps the trigger.
type NightlyApplyPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewNightlyApplyTask constructs the nightly apply task.
func NewNightlyApplyTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(NightlyApplyPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNightlyApply, body, asynq.Queue(QueueDefault)), nil
}
