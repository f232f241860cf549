package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
)

// Persisted precision: plain columns and the percent form at one decimal,
// the decimal-fraction form at four.
const (
	plainPlaces    = 1
	percentPlaces  = 1
	fractionPlaces = 4
)

// RecordsTableDDL returns the CREATE TABLE statement for the latest-record table.
// ReplacingMergeTree keeps the row with the highest version per (symbol, source).
func RecordsTableDDL(table string, schema models.Schema) string {
	cols := []string{
		"symbol String",
		"source LowCardinality(String)",
		"fetched_at DateTime64(3, 'UTC')",
		"version UInt64",
	}
	for _, spec := range schema {
		if spec.Kind == models.KindRate {
			cols = append(cols,
				spec.Field+"_original Nullable(String)",
				spec.Field+"_percent Nullable(Decimal(18, 1))",
				spec.Field+"_decimal Nullable(Decimal(18, 4))",
			)
			continue
		}
		cols = append(cols, spec.Field+" Nullable(Decimal(38, 1))")
	}
	cols = append(cols,
		"raw_json String",
		"warnings_json String",
		"warning_count UInt16",
		"max_severity LowCardinality(String)",
	)
	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = ReplacingMergeTree(version) ORDER BY (symbol, source)",
		table, strings.Join(cols, ", "),
	)
}

func recordColumns(schema models.Schema) []string {
	cols := []string{"symbol", "source", "fetched_at", "version"}
	for _, spec := range schema {
		if spec.Kind == models.KindRate {
			cols = append(cols, spec.Field+"_original", spec.Field+"_percent", spec.Field+"_decimal")
			continue
		}
		cols = append(cols, spec.Field)
	}
	return append(cols, "raw_json", "warnings_json", "warning_count", "max_severity")
}

// recordRow maps a record onto recordColumns order.
// The version column is the fetch time in epoch milliseconds; a time before
// the epoch would wrap and outrank every later fetch, so it is refused.
func recordRow(schema models.Schema, r *models.DualTruthRecord) ([]interface{}, error) {
	ms := r.FetchedAt().UnixMilli()
	if r.FetchedAt().IsZero() || ms < 0 {
		return nil, fmt.Errorf("record %s/%s: fetched_at %s is not a valid version", r.Symbol(), r.Source(), r.FetchedAt())
	}
	row := []interface{}{
		r.Symbol(),
		r.Source(),
		r.FetchedAt().UTC(),
		uint64(ms),
	}
	for _, spec := range schema {
		v := r.CanonicalForm(spec.Field)
		if spec.Kind == models.KindRate {
			var original interface{}
			if raw, ok := r.RawForm(spec.Field); ok && raw != "" {
				original = raw
			}
			row = append(row,
				original,
				rounded(v, func(d decimal.Decimal) decimal.Decimal { return d.Shift(2) }, percentPlaces),
				rounded(v, nil, fractionPlaces),
			)
			continue
		}
		row = append(row, rounded(v, nil, plainPlaces))
	}

	raw := make([]models.RawMetric, 0)
	for _, f := range r.Fields() {
		m, _ := r.RawMetric(f)
		raw = append(raw, m)
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode raw: %w", err)
	}
	warnings := r.Warnings()
	if warnings == nil {
		warnings = []models.Warning{}
	}
	warnJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	return append(row, string(rawJSON), string(warnJSON), uint16(len(warnings)), string(r.MaxSeverity())), nil
}

func rounded(v decimal.NullDecimal, scale func(decimal.Decimal) decimal.Decimal, places int32) *decimal.Decimal {
	if !v.Valid {
		return nil
	}
	d := v.Decimal
	if scale != nil {
		d = scale(d)
	}
	d = d.Round(places)
	return &d
}

// ClickHouseRecordStorage implements RecordStorage on ClickHouse.
type ClickHouseRecordStorage struct {
	db     *sql.DB
	table  string
	schema models.Schema
}

func NewClickHouseRecordStorage(db *sql.DB, table string, schema models.Schema) repository.RecordStorage {
	if schema == nil {
		schema = models.DefaultSchema()
	}
	return &ClickHouseRecordStorage{db: db, table: table, schema: schema}
}

func (s *ClickHouseRecordStorage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, RecordsTableDDL(s.table, s.schema)); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

func (s *ClickHouseRecordStorage) Store(ctx context.Context, r *models.DualTruthRecord) error {
	return s.StoreBatch(ctx, []*models.DualTruthRecord{r})
}

// StoreBatch inserts rows with multi-row VALUES, chunked to bound statement size.
func (s *ClickHouseRecordStorage) StoreBatch(ctx context.Context, records []*models.DualTruthRecord) error {
	const chunkSize = 500
	cols := recordColumns(s.schema)
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	for start := 0; start < len(records); start += chunkSize {
		end := start + chunkSize
		if end > len(records) {
			end = len(records)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*len(cols))
		for _, r := range records[start:end] {
			if r == nil || r.Symbol() == "" {
				continue
			}
			row, err := recordRow(s.schema, r)
			if err != nil {
				return fmt.Errorf("record %s: %w", r.Key(), err)
			}
			values = append(values, placeholder)
			args = append(args, row...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", s.table, strings.Join(cols, ", "), strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseRecordStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (s *ClickHouseRecordStorage) Close() error { return nil }
