package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sellerledger/sellerledger/internal/applyrun"
	"github.com/sellerledger/sellerledger/internal/costing"
	"github.com/sellerledger/sellerledger/internal/shared"
)

// NewNightlyApplyHandler processes TaskNightlyApply tasks: every configured
// account gets yesterday's shipped lines costed with the configured method.
// An account whose run lock is held is skipped and picked up the next night.
func NewNightlyApplyHandler(logger *slog.Logger, svc *applyrun.Service, accounts []int64, method costing.Method) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NightlyApplyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		at := payload.ScheduledFor
		if at.IsZero() {
			at = time.Now().UTC()
		}
		day := time.Date(at.UTC().Year(), at.UTC().Month(), at.UTC().Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)

		var firstErr error
		for _, accountID := range accounts {
			run, _, err := svc.ApplyCOGS(ctx, applyrun.ApplyInput{
				AccountID: accountID,
				FromDate:  day,
				ToDate:    day,
				Method:    method,
			})
			if err != nil {
				if errors.Is(err, shared.ErrRunInProgress) {
					logger.Warn("nightly apply skipped, run in progress", slog.Int64("account_id", accountID))
					continue
				}
				logger.Error("nightly apply failed", slog.Int64("account_id", accountID), slog.Any("error", err))
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			logger.Info("nightly apply completed",
				slog.Int64("account_id", accountID),
				slog.String("run_id", run.ID.String()),
				slog.Int("total", run.Total),
				slog.Int("failed", run.Failed))
		}
		return firstErr
	}
}
