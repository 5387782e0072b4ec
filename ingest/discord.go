package ingest

import (
	"context"

	"github.com/onnwee/clip-tender/backend/db"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
)

func (r *Router) handleUpsertDiscordServers(ctx context.Context, msgs []queue.Message) error {
	payloads, ok := decodeSubBatch[queue.UpsertDiscordServerPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	var servers []db.DiscordServer
	for _, p := range payloads {
		servers = append(servers, db.DiscordServer{
			ID:                p.ID,
			Name:              p.Name,
			LanguageCode:      p.LanguageCode,
			AnnounceChannelID: p.AnnounceChannelID,
		})
	}
	return db.BatchUpsertDiscordServers(ctx, r.DB, servers)
}

// handleDeleteMessages is best-effort: a message that is already gone fails
// with a permanent API error, so failures are logged instead of failing the
// delivery and retrying forever.
func (r *Router) handleDeleteMessages(ctx context.Context, msgs []queue.Message) error {
	if r.Discord == nil {
		telemetry.LoggerWithCorr(ctx).Warn("discord client not configured, dropping delete batch", "count", len(msgs))
		telemetry.IncDropped(len(msgs))
		return nil
	}
	payloads, ok := decodeSubBatch[queue.DeleteMessagePayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	log := telemetry.LoggerWithCorr(ctx)
	for _, p := range payloads {
		if err := r.Discord.DeleteMessage(ctx, p.ChannelID, p.MessageID); err != nil {
			log.Error("discord message delete failed",
				"channel_id", p.ChannelID, "message_id", p.MessageID, "error", err)
		}
	}
	return nil
}

// handleDiscordSends posts announcements at-most-once: a failed send is logged
// rather than failing the delivery, because redelivery would duplicate every
// send that already succeeded.
func (r *Router) handleDiscordSends(ctx context.Context, msgs []queue.Message) error {
	if r.Discord == nil {
		telemetry.LoggerWithCorr(ctx).Warn("discord client not configured, dropping send batch", "count", len(msgs))
		telemetry.IncDropped(len(msgs))
		return nil
	}
	payloads, ok := decodeSubBatch[queue.DiscordSendPayload](ctx, r, msgs)
	if !ok {
		return nil
	}
	log := telemetry.LoggerWithCorr(ctx)
	for _, p := range payloads {
		id, err := r.Discord.SendMessage(ctx, p.ChannelID, p.Content)
		if err != nil {
			log.Error("discord send failed", "channel_id", p.ChannelID, "error", err)
			continue
		}
		log.Info("discord message sent", "channel_id", p.ChannelID, "message_id", id)
	}
	return nil
}
