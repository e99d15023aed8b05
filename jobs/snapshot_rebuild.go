package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sellerledger/sellerledger/internal/snapshot"
)

// NewSnapshotRebuildHandler processes TaskSnapshotRebuild tasks.
func NewSnapshotRebuildHandler(logger *slog.Logger, rebuilder *snapshot.Rebuilder) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SnapshotRebuildPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		to := payload.To
		if to.IsZero() {
			to = time.Now().UTC()
		}
		logger.Info("snapshot rebuild task",
			slog.Int64("account_id", payload.AccountID),
			slog.Int("skus", len(payload.SKUs)),
			slog.Time("from", payload.From))
		if len(payload.SKUs) == 0 {
			return rebuilder.RebuildAll(ctx, payload.AccountID, payload.From, to)
		}
		return rebuilder.RebuildMany(ctx, payload.AccountID, payload.SKUs, payload.From, to)
	}
}
