// Package ingest routes delivery batches from the queue to per-kind handlers:
// storage upserts, translation fan-out, discord announcements, and creator
// clip fetch passes. Handlers are written to be idempotent so JetStream
// redelivery after a failure is safe.
package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/clip-tender/backend/fetcher"
	"github.com/onnwee/clip-tender/backend/queue"
	"github.com/onnwee/clip-tender/backend/telemetry"
	"github.com/onnwee/clip-tender/backend/translate"
)

// DefaultLanguageCode marks canonical-row writes. An upsert payload carrying
// any other languageCode writes only the translation sub-record, never the
// canonical row.
const DefaultLanguageCode = "default"

// reenqueueChunkSize bounds chunked re-enqueues of translated records.
const reenqueueChunkSize = 50

// ClipFetcher runs one creator fetch pass. *fetcher.Cursor is the production
// implementation.
type ClipFetcher interface {
	FetchNextBatch(ctx context.Context, batchSize int, memberType string, maxQuota int) (*fetcher.Result, error)
}

// DiscordSender posts and deletes announcement messages. *discordapi.Client is
// the production implementation.
type DiscordSender interface {
	SendMessage(ctx context.Context, channelID, content string) (string, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Router owns the per-kind handlers and their shared dependencies.
type Router struct {
	DB         *sql.DB
	Queue      queue.Sender
	Translator translate.Translator
	Discord    DiscordSender
	Fetcher    ClipFetcher

	validate *validator.Validate
}

// NewRouter wires a router. Any dependency a deployment does not need may be
// nil; the corresponding handler then rejects its messages.
func NewRouter(dbx *sql.DB, q queue.Sender, tr translate.Translator, ds DiscordSender, cf ClipFetcher) *Router {
	return &Router{
		DB:         dbx,
		Queue:      q,
		Translator: tr,
		Discord:    ds,
		Fetcher:    cf,
		validate:   validator.New(),
	}
}

// Route dispatches one delivery batch. Messages are grouped by kind and the
// groups run in a fixed order so rows land before the rows that reference
// them: creators first, then discord servers, then streams, then clips.
// Handlers run sequentially and the first handler error aborts the delivery so
// the queue redelivers it whole. Messages of unknown kind are dropped with a
// log line; they would fail identically on every redelivery.
func (r *Router) Route(ctx context.Context, msgs []queue.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "ingest", "route",
		attribute.Int("messages", len(msgs)))
	defer span.End()

	groups := map[queue.Kind][]queue.Message{}
	for _, m := range msgs {
		groups[m.Kind] = append(groups[m.Kind], m)
	}

	order := []struct {
		kind   queue.Kind
		handle func(context.Context, []queue.Message) error
	}{
		{queue.KindUpsertCreator, r.handleUpsertCreators},
		{queue.KindTranslateCreator, r.handleTranslateCreators},
		{queue.KindUpsertDiscordServer, r.handleUpsertDiscordServers},
		{queue.KindDeleteMessageInChannel, r.handleDeleteMessages},
		{queue.KindDiscordSendMessage, r.handleDiscordSends},
		{queue.KindUpsertStream, r.handleUpsertStreams},
		{queue.KindTranslateStream, r.handleTranslateStreams},
		{queue.KindUpsertClip, r.handleUpsertClips},
		{queue.KindFetchClipsByCreator, r.handleFetchClips},
	}

	for _, step := range order {
		batch := groups[step.kind]
		if len(batch) == 0 {
			continue
		}
		if err := step.handle(ctx, batch); err != nil {
			telemetry.RecordError(span, err)
			return fmt.Errorf("handle %s: %w", step.kind, err)
		}
		telemetry.IncKind(string(step.kind), len(batch))
		delete(groups, step.kind)
	}

	for kind, batch := range groups {
		telemetry.LoggerWithCorr(ctx).Warn("dropping messages of unknown kind",
			"kind", string(kind), "count", len(batch))
		telemetry.IncDropped(len(batch))
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

// decodeSubBatch unmarshals and validates every payload of one kind group
// before any of them is handled. One malformed or invalid payload poisons the
// whole group: the group is logged, counted dropped, and skipped, and no
// sibling is stored or translated. The returned slice is index-aligned with
// msgs.
func decodeSubBatch[T any](ctx context.Context, r *Router, msgs []queue.Message) ([]T, bool) {
	out := make([]T, len(msgs))
	for i, m := range msgs {
		if err := json.Unmarshal(m.Data, &out[i]); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("dropping sub-batch with malformed payload",
				"kind", string(m.Kind), "index", i, "count", len(msgs), "error", err)
			telemetry.IncDropped(len(msgs))
			return nil, false
		}
		if err := r.validate.Struct(&out[i]); err != nil {
			telemetry.LoggerWithCorr(ctx).Warn("dropping sub-batch with invalid payload",
				"kind", string(m.Kind), "index", i, "count", len(msgs), "error", err)
			telemetry.IncDropped(len(msgs))
			return nil, false
		}
	}
	return out, true
}
