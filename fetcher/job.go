package fetcher

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/onnwee/clip-tender/backend/config"
	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

// StartClipFetchJob launches a background loop that periodically enqueues a
// fetch-clips-by-creator message, so fetch passes flow through the same queue
// and handler path as externally submitted work. Runs once immediately, then
// every cfg.FetchInterval.
func StartClipFetchJob(ctx context.Context, dbx *sql.DB, pub queue.Sender, cfg *config.Config) {
	interval := cfg.FetchInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	enqueue := func() {
		if n, err := db.CountNeverFetchedCreators(ctx, dbx); err == nil {
			telemetry.SetFetchBacklog(n)
		}
		msg, err := queue.New(queue.KindFetchClipsByCreator, queue.FetchClipsPayload{
			BatchSize:     cfg.FetchBatchSize,
			MaxQuotaUsage: cfg.FetchQuotaPerPass,
			MemberType:    cfg.FetchMemberType,
		})
		if err != nil {
			slog.Error("build clip fetch message", "error", err)
			return
		}
		if err := pub.SendBatch(ctx, []queue.Message{msg}); err != nil {
			slog.Error("enqueue clip fetch pass", "error", err)
			return
		}
		slog.Info("clip fetch pass enqueued", "batch_size", cfg.FetchBatchSize, "interval", interval.String())
	}
	go func() {
		enqueue()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("clip fetch job stopping")
				return
			case <-ticker.C:
				enqueue()
			}
		}
	}()
}
