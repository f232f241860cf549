package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
)

// UsageTableDDL returns the CREATE TABLE statement for the upstream API usage log.
func UsageTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	ts DateTime64(3, 'UTC'),
	api LowCardinality(String),
	symbol String,
	status UInt16,
	success UInt8,
	latency_ms UInt32
) ENGINE = MergeTree ORDER BY (api, ts) TTL toDateTime(ts) + INTERVAL 90 DAY`, table)
}

// ClickHouseUsageLog appends one row per feedback call.
type ClickHouseUsageLog struct {
	db    *sql.DB
	table string
}

func NewClickHouseUsageLog(db *sql.DB, table string) repository.UsageLog {
	return &ClickHouseUsageLog{db: db, table: table}
}

func (l *ClickHouseUsageLog) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, UsageTableDDL(l.table)); err != nil {
		return fmt.Errorf("create %s: %w", l.table, err)
	}
	return nil
}

func (l *ClickHouseUsageLog) Log(ctx context.Context, e models.UsageEntry) error {
	q := fmt.Sprintf("INSERT INTO %s (ts, api, symbol, status, success, latency_ms) VALUES (?, ?, ?, ?, ?, ?)", l.table)
	if _, err := l.db.ExecContext(ctx, q, usageRow(e)...); err != nil {
		return fmt.Errorf("insert %s: %w", l.table, err)
	}
	return nil
}

func (l *ClickHouseUsageLog) Close() error { return nil }

func usageRow(e models.UsageEntry) []interface{} {
	var success uint8
	if e.Success {
		success = 1
	}
	latency := e.LatencyMs
	if latency < 0 {
		latency = 0
	}
	return []interface{}{
		time.UnixMilli(e.Timestamp).UTC(),
		e.API,
		e.Symbol,
		uint16(e.Status),
		success,
		uint32(latency),
	}
}
