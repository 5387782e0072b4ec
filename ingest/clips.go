package ingest

import (
	"context"
	"fmt"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

func (r *Router) handleUpsertClips(ctx context.Context, msgs []queue.Message) error {
	payloads, ok := decodeSubBatch[queue.UpsertClipPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	var clips []db.Clip
	var trs []db.ClipTranslation
	for _, p := range payloads {
		if p.LanguageCode != "" && p.LanguageCode != DefaultLanguageCode {
			trs = append(trs, db.ClipTranslation{
				ClipRawID:    p.RawID,
				LanguageCode: p.LanguageCode,
				Title:        p.Title,
				Description:  p.Description,
			})
			continue
		}
		if p.RawChannelID == "" {
			// Canonical-row writes need the channel; the tag check only
			// enforces it when languageCode is absent, not when it is "default".
			telemetry.LoggerWithCorr(ctx).Warn("dropping clip sub-batch: canonical upsert without channel id",
				"raw_id", p.RawID, "count", len(msgs))
			telemetry.IncDropped(len(msgs))
			return nil
		}
		clips = append(clips, db.Clip{
			RawID:           p.RawID,
			RawChannelID:    p.RawChannelID,
			Title:           p.Title,
			Description:     p.Description,
			ViewCount:       p.ViewCount,
			ThumbnailURL:    p.ThumbnailURL,
			DurationSeconds: p.DurationSeconds,
			PublishedAt:     p.PublishedAt,
		})
	}
	if err := db.BatchUpsertClips(ctx, r.DB, clips); err != nil {
		return err
	}
	return db.BatchUpsertClipTranslations(ctx, r.DB, trs)
}

// handleFetchClips runs one cursor pass per message: fetch clips for the next
// slice of creators, upsert them, and advance the fetch markers. When the pass
// filled its batch another fetch message is enqueued so the backlog keeps
// draining without waiting for the scheduler.
func (r *Router) handleFetchClips(ctx context.Context, msgs []queue.Message) error {
	if r.Fetcher == nil {
		telemetry.LoggerWithCorr(ctx).Warn("clip fetcher not configured, dropping fetch batch", "count", len(msgs))
		telemetry.IncDropped(len(msgs))
		return nil
	}
	payloads, ok := decodeSubBatch[queue.FetchClipsPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	log := telemetry.LoggerWithCorr(ctx)
	for i, p := range payloads {
		m := msgs[i]
		res, err := r.Fetcher.FetchNextBatch(ctx, p.BatchSize, p.MemberType, p.MaxQuotaUsage)
		if err != nil {
			return fmt.Errorf("clip fetch pass: %w", err)
		}
		if err := db.BatchUpsertClips(ctx, r.DB, res.Clips); err != nil {
			return fmt.Errorf("store fetched clips: %w", err)
		}
		if err := db.UpdateLastFetched(ctx, r.DB, res.ProcessedCreatorIDs); err != nil {
			// The clips are already stored; a marker failure only means these
			// creators get re-selected sooner than they should.
			log.Error("advancing fetch markers failed", "creators", len(res.ProcessedCreatorIDs), "error", err)
		}
		if res.HasMore && r.Queue != nil {
			// Re-enqueue the original message unchanged to process the next slice.
			if err := r.Queue.SendBatch(ctx, []queue.Message{m}); err != nil {
				log.Error("enqueue follow-up fetch pass", "error", err)
			}
		}
	}
	return nil
}
