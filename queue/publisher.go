package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/clip-tender/backend/telemetry"
)

const (
	// DefaultSizeLimit targets ~240KB per outbound payload, leaving headroom
	// under the queue's 256KB hard limit.
	DefaultSizeLimit = 240_000

	// chunkHeadroom tightens the ceiling for chunked enqueues so fields added
	// by the transform cannot push a leaf batch over the wire limit.
	chunkHeadroom = 10_000
)

// jetStreamPublisher is the slice of nats.JetStreamContext the publisher needs.
type jetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// Sender is the outbound queue surface handlers publish through. *Publisher is
// the JetStream implementation.
type Sender interface {
	SendBatch(ctx context.Context, msgs []Message) error
	// SendChunked publishes msgs under the tightened ceiling used for chunked
	// re-enqueues.
	SendChunked(ctx context.Context, msgs []Message) error
}

// Publisher sends message batches to a JetStream subject, recursively halving
// any batch whose serialized form exceeds the size limit.
type Publisher struct {
	js        jetStreamPublisher
	subject   string
	sizeLimit int
}

// NewPublisher wraps a JetStream context. sizeLimit <= 0 selects DefaultSizeLimit.
func NewPublisher(js nats.JetStreamContext, subject string, sizeLimit int) *Publisher {
	if sizeLimit <= 0 {
		sizeLimit = DefaultSizeLimit
	}
	return &Publisher{js: js, subject: subject, sizeLimit: sizeLimit}
}

// SendBatch publishes msgs as one payload when it fits the size limit, otherwise
// splits at the midpoint and sends both halves concurrently. A single message
// over the limit is published as-is; splitting cannot help it.
func (p *Publisher) SendBatch(ctx context.Context, msgs []Message) error {
	return p.sendBatch(ctx, msgs, p.sizeLimit)
}

func (p *Publisher) sendBatch(ctx context.Context, msgs []Message, limit int) error {
	if len(msgs) == 0 {
		return nil
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	if len(data) <= limit || len(msgs) == 1 {
		if len(data) > limit {
			slog.Warn("single message exceeds payload size limit, publishing as-is",
				slog.Int("bytes", len(data)), slog.Int("limit", limit), slog.String("kind", string(msgs[0].Kind)))
		}
		if _, err := p.js.Publish(p.subject, data, nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish batch of %d: %w", len(msgs), err)
		}
		telemetry.ObservePublishedBatch(len(msgs), len(data))
		return nil
	}
	telemetry.IncBatchSplits()
	mid := (len(msgs) + 1) / 2
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.sendBatch(gctx, msgs[:mid], limit) })
	g.Go(func() error { return p.sendBatch(gctx, msgs[mid:], limit) })
	return g.Wait()
}

// SendChunked publishes msgs through the batch splitter with a tightened size
// ceiling, leaving headroom for fields a re-enqueue transform may have added.
func (p *Publisher) SendChunked(ctx context.Context, msgs []Message) error {
	limit := p.sizeLimit - chunkHeadroom
	if limit < 1 {
		limit = p.sizeLimit
	}
	return p.sendBatch(ctx, msgs, limit)
}

// EnqueueChunked partitions items into contiguous chunks of chunkSize, applies
// transform to every item, and sends each chunk concurrently through the batch
// splitter. Empty input is a no-op.
func EnqueueChunked[T any](ctx context.Context, s Sender, items []T, chunkSize int, transform func(T) (Message, error)) error {
	if len(items) == 0 {
		return nil
	}
	if chunkSize <= 0 || chunkSize > len(items) {
		chunkSize = len(items)
	}
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(items); start += chunkSize {
		chunk := items[start:min(start+chunkSize, len(items))]
		g.Go(func() error {
			msgs := make([]Message, 0, len(chunk))
			for _, it := range chunk {
				m, err := transform(it)
				if err != nil {
					return fmt.Errorf("transform item for enqueue: %w", err)
				}
				msgs = append(msgs, m)
			}
			return s.SendChunked(gctx, msgs)
		})
	}
	return g.Wait()
}
