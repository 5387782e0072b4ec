package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/onnwee/clip-tender/backend/telemetry"
)

// Connect opens a NATS connection and its JetStream context.
func Connect(url string) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url, nats.Name("clip-tender-ingest"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream context: %w", err)
	}
	return nc, js, nil
}

// EnsureStream provisions the ingest stream if it does not exist yet. Safe to
// call on every boot.
func EnsureStream(js nats.JetStreamContext, stream, subject string) error {
	if _, err := js.StreamInfo(stream); err == nil {
		return nil
	}
	_, err := js.AddStream(&nats.StreamConfig{
		Name:      stream,
		Subjects:  []string{subject},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("add stream %s: %w", stream, err)
	}
	return nil
}

// RouteFunc processes one delivery batch. A returned error fails the whole
// delivery and triggers queue-level redelivery.
type RouteFunc func(ctx context.Context, msgs []Message) error

// Consumer pulls payload batches from a durable JetStream consumer and hands
// the decoded messages to the router. Acks on success, naks on failure.
type Consumer struct {
	sub   *nats.Subscription
	route RouteFunc
	batch int
}

// NewConsumer binds a durable pull subscription on subject.
func NewConsumer(js nats.JetStreamContext, subject, durable string, batch int, route RouteFunc) (*Consumer, error) {
	if batch <= 0 {
		batch = 64
	}
	sub, err := js.PullSubscribe(subject, durable)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s: %w", subject, err)
	}
	return &Consumer{sub: sub, route: route, batch: batch}, nil
}

// Start runs the fetch/route/ack loop until ctx is canceled.
func (c *Consumer) Start(ctx context.Context) {
	slog.Info("ingest consumer starting", slog.Int("delivery_batch", c.batch))
	for {
		if ctx.Err() != nil {
			slog.Info("ingest consumer stopped")
			return
		}
		natsMsgs, err := c.sub.Fetch(c.batch, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			slog.Warn("fetch from ingest stream failed", slog.Any("err", err))
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
			continue
		}
		c.deliver(ctx, natsMsgs)
	}
}

// deliver decodes the pulled payloads into one delivery batch and routes it.
// Payloads that are not valid JSON are acked and dropped; they would loop
// forever on redelivery.
func (c *Consumer) deliver(ctx context.Context, natsMsgs []*nats.Msg) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	logger := telemetry.LoggerWithCorr(ctx)

	var batch []Message
	var routable []*nats.Msg
	for _, nm := range natsMsgs {
		msgs, err := DecodeBatch(nm.Data)
		if err != nil {
			logger.Warn("dropping undecodable payload", slog.Any("err", err), slog.Int("bytes", len(nm.Data)))
			telemetry.IncDropped(1)
			_ = nm.Ack()
			continue
		}
		batch = append(batch, msgs...)
		routable = append(routable, nm)
	}
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := c.route(ctx, batch); err != nil {
		logger.Error("delivery batch failed, requesting redelivery", slog.Any("err", err), slog.Int("messages", len(batch)))
		for _, nm := range routable {
			_ = nm.Nak()
		}
		return
	}
	for _, nm := range routable {
		_ = nm.Ack()
	}
	telemetry.ObserveDelivery(len(batch), time.Since(start))
	logger.Debug("delivery batch processed", slog.Int("messages", len(batch)), slog.Duration("took", time.Since(start)))
}
