package usecase

import (
	"context"
	"encoding/json"
	"time"

	"StockWatchdog/internal/domain/models"
	domrepo "StockWatchdog/internal/domain/repository"
	pkgkafka "StockWatchdog/pkg/kafka"
)

// KafkaRawRecordsHandler consumes raw payloads published by external ingestors,
// normalizes them and forwards the records to the sink and cache.
type KafkaRawRecordsHandler struct {
	topic      string
	normalizer *Normalizer
	sink       *RecordSink
	cache      domrepo.RecordCache
	ttl        time.Duration
	metrics    domrepo.Metrics
}

func NewKafkaRawRecordsHandler(
	topic string,
	normalizer *Normalizer,
	sink *RecordSink,
	cache domrepo.RecordCache,
	ttl time.Duration,
	metrics domrepo.Metrics,
) *KafkaRawRecordsHandler {
	return &KafkaRawRecordsHandler{
		topic:      topic,
		normalizer: normalizer,
		sink:       sink,
		cache:      cache,
		ttl:        ttl,
		metrics:    metrics,
	}
}

func (h *KafkaRawRecordsHandler) Topic() string { return h.topic }

// Handle decodes a models.RawPayload. Malformed JSON and structural errors are
// permanent, so the consumer sends them to the DLQ without retrying.
func (h *KafkaRawRecordsHandler) Handle(ctx context.Context, b []byte) error {
	var p models.RawPayload
	if err := json.Unmarshal(b, &p); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return &pkgkafka.PermanentError{Err: err}
	}
	if !p.FetchedAt.IsZero() {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(p.FetchedAt).Seconds())
	}

	rec, err := h.normalizer.Normalize(p)
	if err != nil {
		h.metrics.RecordDropped("structural")
		return &pkgkafka.PermanentError{Err: err}
	}
	h.metrics.RecordNormalized(rec.Source())
	for _, w := range rec.Warnings() {
		h.metrics.RecordWarning(w.Field, w.Severity)
	}

	if err := h.sink.Process(ctx, rec); err != nil {
		return err
	}
	if h.cache != nil && h.ttl > 0 {
		if err := h.cache.Set(ctx, rec, h.ttl); err != nil {
			h.metrics.RecordError("cache_set")
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRawRecordsHandler)(nil)
