package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
	pkgkafka "StockWatchdog/pkg/kafka"
)

func TestKafkaRawRecordsHandler(t *testing.T) {
	store := &memStorage{}
	m := newFakeMetrics()
	h := NewKafkaRawRecordsHandler("metrics.raw", newTestNormalizer(anomaly.DefaultPolicy()),
		NewRecordSink(nil, store, m, BackendClickHouse), nil, 0, m)

	b, _ := json.Marshal(payload("9432.T", map[string]models.RawField{
		models.FieldDividendYield: {Value: "70.0", Format: models.FormatPercent},
	}))
	if err := h.Handle(context.Background(), b); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(store.records) != 1 || store.records[0].Symbol() != "9432" {
		t.Fatalf("stored %+v", store.records)
	}
	if m.normalized != 1 || m.warnings != 1 {
		t.Fatalf("metrics normalized=%d warnings=%d", m.normalized, m.warnings)
	}
}

func TestKafkaRawRecordsHandlerPermanentErrors(t *testing.T) {
	m := newFakeMetrics()
	h := NewKafkaRawRecordsHandler("metrics.raw", newTestNormalizer(anomaly.DefaultPolicy()),
		NewRecordSink(nil, &memStorage{}, m, BackendClickHouse), nil, 0, m)

	bad, _ := json.Marshal(payload("XYZ", nil))
	for _, msg := range [][]byte{[]byte("{not json"), bad} {
		err := h.Handle(context.Background(), msg)
		var perm *pkgkafka.PermanentError
		if !errors.As(err, &perm) {
			t.Fatalf("expected permanent error for %s, got %v", msg, err)
		}
	}
}

func TestKafkaRawRecordsHandlerMissingFetchedAt(t *testing.T) {
	store := &memStorage{}
	m := newFakeMetrics()
	h := NewKafkaRawRecordsHandler("metrics.raw", newTestNormalizer(anomaly.DefaultPolicy()),
		NewRecordSink(nil, store, m, BackendClickHouse), nil, 0, m)

	msg := []byte(`{"symbol":"9432","source":"yahoo_finance","fields":{"dividend_yield":{"value":"4.76","format":"percent"}}}`)
	err := h.Handle(context.Background(), msg)
	var perm *pkgkafka.PermanentError
	if !errors.As(err, &perm) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if len(store.records) != 0 {
		t.Fatalf("record without fetched_at was stored: %+v", store.records)
	}
}

func TestKafkaRawRecordsHandlerSinkErrorIsRetryable(t *testing.T) {
	m := newFakeMetrics()
	h := NewKafkaRawRecordsHandler("metrics.raw", newTestNormalizer(anomaly.DefaultPolicy()),
		NewRecordSink(nil, &memStorage{err: errors.New("down")}, m, BackendClickHouse), nil, 0, m)
	b, _ := json.Marshal(payload("9432", nil))
	err := h.Handle(context.Background(), b)
	var perm *pkgkafka.PermanentError
	if err == nil || errors.As(err, &perm) {
		t.Fatalf("sink failure should be retryable, got %v", err)
	}
}

func TestRecordSinkUnknownBackend(t *testing.T) {
	s := NewRecordSink(nil, nil, newFakeMetrics(), "s3")
	rec, _ := newTestNormalizer(anomaly.DefaultPolicy()).Normalize(payload("9432", nil))
	if err := s.Process(context.Background(), rec); err == nil {
		t.Fatalf("expected error for unconfigured backend")
	}
}
