package ingest

import (
	"context"
	"fmt"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

func (r *Router) handleUpsertStreams(ctx context.Context, msgs []queue.Message) error {
	payloads, ok := decodeSubBatch[queue.UpsertStreamPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	var streams []db.Stream
	var trs []db.StreamTranslation
	for _, p := range payloads {
		if p.LanguageCode != "" && p.LanguageCode != DefaultLanguageCode {
			trs = append(trs, db.StreamTranslation{
				StreamRawID:  p.RawID,
				LanguageCode: p.LanguageCode,
				Title:        p.Title,
				Description:  p.Description,
			})
			continue
		}
		if p.RawChannelID == "" {
			// Canonical-row writes need the channel; the tag check only
			// enforces it when languageCode is absent, not when it is "default".
			telemetry.LoggerWithCorr(ctx).Warn("dropping stream sub-batch: canonical upsert without channel id",
				"raw_id", p.RawID, "count", len(msgs))
			telemetry.IncDropped(len(msgs))
			return nil
		}
		streams = append(streams, db.Stream{
			RawID:        p.RawID,
			RawChannelID: p.RawChannelID,
			Title:        p.Title,
			Description:  p.Description,
			Status:       p.Status,
			ViewCount:    p.ViewCount,
			ThumbnailURL: p.ThumbnailURL,
			StartedAt:    p.StartedAt,
			EndedAt:      p.EndedAt,
		})
	}
	if err := db.BatchUpsertStreams(ctx, r.DB, streams); err != nil {
		return err
	}
	return db.BatchUpsertStreamTranslations(ctx, r.DB, trs)
}

// handleTranslateStreams mirrors handleTranslateCreators: one translation call
// per target language, failed groups skipped, successes re-enqueued as
// upsert-stream messages carrying the target languageCode.
func (r *Router) handleTranslateStreams(ctx context.Context, msgs []queue.Message) error {
	if r.Translator == nil {
		telemetry.LoggerWithCorr(ctx).Warn("translator not configured, dropping translate-stream batch", "count", len(msgs))
		telemetry.IncDropped(len(msgs))
		return nil
	}
	payloads, ok := decodeSubBatch[queue.TranslateStreamPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	byLang := map[string][]queue.TranslateStreamPayload{}
	for _, p := range payloads {
		byLang[p.TargetLanguageCode] = append(byLang[p.TargetLanguageCode], p)
	}
	for lang, group := range byLang {
		texts := make([]string, 0, len(group)*2)
		for _, p := range group {
			texts = append(texts, p.Title, p.Description)
		}
		out, err := r.Translator.Translate(ctx, texts, lang)
		if err != nil || len(out) != len(texts) {
			telemetry.LoggerWithCorr(ctx).Error("stream translation group failed",
				"target_lang", lang, "streams", len(group), "error", err)
			telemetry.IncTranslateFailure()
			continue
		}
		upserts := make([]queue.UpsertStreamPayload, 0, len(group))
		for i, p := range group {
			upserts = append(upserts, queue.UpsertStreamPayload{
				RawID:        p.RawID,
				Title:        out[2*i],
				Description:  out[2*i+1],
				LanguageCode: lang,
			})
		}
		err = queue.EnqueueChunked(ctx, r.Queue, upserts, reenqueueChunkSize,
			func(p queue.UpsertStreamPayload) (queue.Message, error) {
				return queue.New(queue.KindUpsertStream, p)
			})
		if err != nil {
			return fmt.Errorf("re-enqueue translated streams (%s): %w", lang, err)
		}
	}
	return nil
}
