package ingest

import (
	"context"
	"fmt"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

func (r *Router) handleUpsertCreators(ctx context.Context, msgs []queue.Message) error {
	payloads, ok := decodeSubBatch[queue.UpsertCreatorPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	var creators []db.Creator
	var trs []db.CreatorTranslation
	for _, p := range payloads {
		if p.LanguageCode != "" && p.LanguageCode != DefaultLanguageCode {
			trs = append(trs, db.CreatorTranslation{
				CreatorID:    p.ID,
				LanguageCode: p.LanguageCode,
				Name:         p.Name,
				Description:  p.Description,
			})
			continue
		}
		c := db.Creator{
			ID:           p.ID,
			MemberType:   p.MemberType,
			Name:         p.Name,
			Description:  p.Description,
			ThumbnailURL: p.ThumbnailURL,
		}
		for _, ch := range p.Channels {
			c.Channels = append(c.Channels, db.Channel{
				ID:        ch.ID,
				CreatorID: p.ID,
				Platform:  ch.Platform,
				RawID:     ch.RawID,
				Title:     ch.Title,
			})
		}
		creators = append(creators, c)
	}
	if err := db.BatchUpsertCreators(ctx, r.DB, creators); err != nil {
		return err
	}
	return db.BatchUpsertCreatorTranslations(ctx, r.DB, trs)
}

// handleTranslateCreators groups requests by target language, translates each
// group in one call, and re-enqueues the results as upsert-creator messages
// carrying the target languageCode. A failed group is logged and skipped so
// the remaining languages still complete.
func (r *Router) handleTranslateCreators(ctx context.Context, msgs []queue.Message) error {
	if r.Translator == nil {
		telemetry.LoggerWithCorr(ctx).Warn("translator not configured, dropping translate-creator batch", "count", len(msgs))
		telemetry.IncDropped(len(msgs))
		return nil
	}
	payloads, ok := decodeSubBatch[queue.TranslateCreatorPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	byLang := map[string][]queue.TranslateCreatorPayload{}
	for _, p := range payloads {
		byLang[p.TargetLanguageCode] = append(byLang[p.TargetLanguageCode], p)
	}
	for lang, group := range byLang {
		texts := make([]string, 0, len(group)*2)
		for _, p := range group {
			texts = append(texts, p.Name, p.Description)
		}
		out, err := r.Translator.Translate(ctx, texts, lang)
		if err != nil || len(out) != len(texts) {
			telemetry.LoggerWithCorr(ctx).Error("creator translation group failed",
				"target_lang", lang, "creators", len(group), "error", err)
			telemetry.IncTranslateFailure()
			continue
		}
		upserts := make([]queue.UpsertCreatorPayload, 0, len(group))
		for i, p := range group {
			upserts = append(upserts, queue.UpsertCreatorPayload{
				ID:           p.ID,
				Name:         out[2*i],
				Description:  out[2*i+1],
				LanguageCode: lang,
			})
		}
		err = queue.EnqueueChunked(ctx, r.Queue, upserts, reenqueueChunkSize,
			func(p queue.UpsertCreatorPayload) (queue.Message, error) {
				return queue.New(queue.KindUpsertCreator, p)
			})
		if err != nil {
			return fmt.Errorf("re-enqueue translated creators (%s): %w", lang, err)
		}
	}
	return nil
}
