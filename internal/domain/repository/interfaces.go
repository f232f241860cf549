package repository

import (
	"context"
	"time"

	"StockWatchdog/internal/domain/models"
)

// Ingestor fetches one symbol's raw fields from an upstream data source.
type Ingestor interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (models.RawPayload, error)
}

// RecordPublisher fans normalized records out to downstream consumers.
type RecordPublisher interface {
	Publish(ctx context.Context, r *models.DualTruthRecord) error
	PublishBatch(ctx context.Context, records []*models.DualTruthRecord) error
	Close() error
}

// RecordStorage persists records; a later Store for the same (symbol, source) supersedes the earlier one.
type RecordStorage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, r *models.DualTruthRecord) error
	StoreBatch(ctx context.Context, records []*models.DualTruthRecord) error
	Health(ctx context.Context) error
	Close() error
}

type UsageLog interface {
	Init(ctx context.Context) error
	Log(ctx context.Context, e models.UsageEntry) error
	Close() error
}

// RecordCache holds the latest record per key for a bounded time.
type RecordCache interface {
	Get(ctx context.Context, key models.RecordKey) (*models.DualTruthRecord, bool, error)
	Set(ctx context.Context, r *models.DualTruthRecord, ttl time.Duration) error
}

type Metrics interface {
	RecordNormalized(source string)
	RecordWarning(field string, severity models.Severity)
	RecordDropped(reason string)
	RecordAdmission(api string, d models.Decision)
	RecordBackoff(api string, d time.Duration)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
