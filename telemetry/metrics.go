// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	MessagesProcessed *prometheus.CounterVec // by kind
	MessagesDropped   prometheus.Counter
	BatchesPublished  prometheus.Counter
	BatchSplits       prometheus.Counter
	DeliveryBatches   prometheus.Counter
	FetchCycles       prometheus.Counter
	ClipsFetched      prometheus.Counter
	CreatorsFetched   prometheus.Counter
	TranslateFailures prometheus.Counter

	// Histograms
	PublishedBatchBytes prometheus.Observer
	DeliveryDuration    prometheus.Observer

	// Gauges
	QuotaUsedGauge    prometheus.Gauge
	FetchBacklogGauge prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "ingest_messages_processed_total", Help: "Messages processed by the router, by kind"}, []string{"kind"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "ingest_messages_dropped_total", Help: "Messages dropped for unknown kind or undecodable payload"})
		BatchesPublished = promauto.NewCounter(prometheus.CounterOpts{Name: "ingest_batches_published_total", Help: "Outbound payload batches published to the queue"})
		BatchSplits = promauto.NewCounter(prometheus.CounterOpts{Name: "ingest_batch_splits_total", Help: "Times an outbound batch was halved to satisfy the size limit"})
		DeliveryBatches = promauto.NewCounter(prometheus.CounterOpts{Name: "ingest_delivery_batches_total", Help: "Delivery batches routed to completion"})
		FetchCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_fetch_cycles_total", Help: "Creator fetch cursor passes"})
		ClipsFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_fetch_clips_total", Help: "Clips fetched from remote platforms"})
		CreatorsFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "clip_fetch_creators_total", Help: "Creators successfully processed by the fetch cursor"})
		TranslateFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "ingest_translate_group_failures_total", Help: "Translation language groups that failed and were skipped"})
		PublishedBatchBytes = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ingest_published_batch_bytes", Help: "Serialized size of published batches", Buckets: prometheus.ExponentialBuckets(256, 4, 10)})
		DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ingest_delivery_duration_seconds", Help: "Delivery batch routing duration seconds", Buckets: prometheus.DefBuckets})
		QuotaUsedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_fetch_quota_used", Help: "Remote API quota units used today"})
		FetchBacklogGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "clip_fetch_backlog", Help: "Creators still awaiting a fetch pass"})
	})
}

// IncKind records a processed message count for a kind. Safe before Init.
func IncKind(kind string, n int) {
	if MessagesProcessed != nil {
		MessagesProcessed.WithLabelValues(kind).Add(float64(n))
	}
}

// IncDropped records dropped messages. Safe before Init.
func IncDropped(n int) {
	if MessagesDropped != nil {
		MessagesDropped.Add(float64(n))
	}
}

// IncBatchSplits records one batch halving. Safe before Init.
func IncBatchSplits() {
	if BatchSplits != nil {
		BatchSplits.Inc()
	}
}

// ObservePublishedBatch records one published payload. Safe before Init.
func ObservePublishedBatch(messages, bytes int) {
	if BatchesPublished != nil {
		BatchesPublished.Inc()
	}
	if PublishedBatchBytes != nil {
		PublishedBatchBytes.Observe(float64(bytes))
	}
}

// ObserveDelivery records one routed delivery batch. Safe before Init.
func ObserveDelivery(messages int, d time.Duration) {
	if DeliveryBatches != nil {
		DeliveryBatches.Inc()
	}
	if DeliveryDuration != nil {
		DeliveryDuration.Observe(d.Seconds())
	}
}

// IncFetchCycle records one clip fetch pass. Safe before Init.
func IncFetchCycle() {
	if FetchCycles != nil {
		FetchCycles.Inc()
	}
}

// AddClipsFetched records clips discovered during a fetch pass. Safe before Init.
func AddClipsFetched(n int) {
	if ClipsFetched != nil {
		ClipsFetched.Add(float64(n))
	}
}

// AddCreatorsFetched records creators processed during a fetch pass. Safe before Init.
func AddCreatorsFetched(n int) {
	if CreatorsFetched != nil {
		CreatorsFetched.Add(float64(n))
	}
}

// IncTranslateFailure records one failed translation group. Safe before Init.
func IncTranslateFailure() {
	if TranslateFailures != nil {
		TranslateFailures.Inc()
	}
}

// SetQuotaUsed records today's consumed quota units. Safe before Init.
func SetQuotaUsed(n int64) {
	if QuotaUsedGauge != nil {
		QuotaUsedGauge.Set(float64(n))
	}
}

// SetFetchBacklog records creators awaiting a fetch pass. Safe before Init.
func SetFetchBacklog(n int) {
	if FetchBacklogGauge != nil {
		FetchBacklogGauge.Set(float64(n))
	}
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
