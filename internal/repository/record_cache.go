package repository

import (
	"context"
	"errors"
	"time"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
	"StockWatchdog/pkg/cache"
)

// StoreRecordCache keeps the latest record per (symbol, source) in a cache.Store.
// Records are stored with their cached forms, so a hit never recomputes them.
type StoreRecordCache struct {
	store cache.Store
}

func NewStoreRecordCache(store cache.Store) repository.RecordCache {
	return &StoreRecordCache{store: store}
}

func recordKey(k models.RecordKey) string {
	return cache.GenerateKey("record", k.Symbol, k.Source)
}

func (c *StoreRecordCache) Get(ctx context.Context, key models.RecordKey) (*models.DualTruthRecord, bool, error) {
	var r models.DualTruthRecord
	err := cache.GetJSON(ctx, c.store, recordKey(key), &r)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *StoreRecordCache) Set(ctx context.Context, r *models.DualTruthRecord, ttl time.Duration) error {
	return cache.SetJSON(ctx, c.store, recordKey(r.Key()), r, ttl)
}
