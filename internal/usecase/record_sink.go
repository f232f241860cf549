package usecase

import (
	"context"
	"fmt"
	"time"

	"StockWatchdog/internal/domain/models"
	drepo "StockWatchdog/internal/domain/repository"
)

const (
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// RecordSink routes finished records to the configured backend.
type RecordSink struct {
	pub     drepo.RecordPublisher
	store   drepo.RecordStorage
	metrics drepo.Metrics
	backend string
}

func NewRecordSink(pub drepo.RecordPublisher, store drepo.RecordStorage, metrics drepo.Metrics, backend string) *RecordSink {
	return &RecordSink{pub: pub, store: store, metrics: metrics, backend: backend}
}

func (s *RecordSink) Backend() string { return s.backend }

// Process hands one record to the backend.
func (s *RecordSink) Process(ctx context.Context, r *models.DualTruthRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	return s.ProcessBatch(ctx, []*models.DualTruthRecord{r})
}

// ProcessBatch hands records to the backend in one call.
func (s *RecordSink) ProcessBatch(ctx context.Context, records []*models.DualTruthRecord) error {
	if len(records) == 0 {
		return nil
	}
	start := time.Now()

	var err error
	switch {
	case s.backend == BackendKafka && s.pub != nil:
		err = s.pub.PublishBatch(ctx, records)
	case s.backend == BackendClickHouse && s.store != nil:
		err = s.store.StoreBatch(ctx, records)
	default:
		err = fmt.Errorf("backend %q is not configured", s.backend)
	}
	if err != nil {
		s.metrics.RecordError("sink")
		return fmt.Errorf("sink %d records: %w", len(records), err)
	}
	s.metrics.RecordLatency("sink_"+s.backend, time.Since(start).Seconds())
	return nil
}

// Close closes underlying resources if available.
func (s *RecordSink) Close() {
	if s.pub != nil {
		_ = s.pub.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
