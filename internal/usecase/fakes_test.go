package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
	"StockWatchdog/internal/service/normalize"
)

var fetchedAt = time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)

func newTestNormalizer(p anomaly.Policy) *Normalizer {
	return NewNormalizer(normalize.New(), anomaly.New(p), nil)
}

type fakeMetrics struct {
	mu         sync.Mutex
	normalized int
	warnings   int
	dropped    map[string]int
	admissions map[string]int
	errors     map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{dropped: map[string]int{}, admissions: map[string]int{}, errors: map[string]int{}}
}

func (m *fakeMetrics) RecordNormalized(string) {
	m.mu.Lock()
	m.normalized++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordWarning(string, models.Severity) {
	m.mu.Lock()
	m.warnings++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordDropped(reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordAdmission(_ string, d models.Decision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Allowed {
		m.admissions["allowed"]++
		return
	}
	m.admissions[string(d.Reason)]++
}

func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	m.errors[kind]++
	m.mu.Unlock()
}

func (m *fakeMetrics) RecordBackoff(string, time.Duration) {}
func (m *fakeMetrics) RecordLatency(string, float64)       {}

type fakeIngestor struct {
	mu       sync.Mutex
	calls    int
	payloads map[string]models.RawPayload
	err      error
	errs     map[string]error
	onFetch  func()
}

func (f *fakeIngestor) Name() string { return "yahoo_finance" }

func (f *fakeIngestor) Fetch(_ context.Context, symbol string) (models.RawPayload, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch()
	}
	if err, ok := f.errs[symbol]; ok {
		return models.RawPayload{}, err
	}
	if f.err != nil {
		return models.RawPayload{}, f.err
	}
	p, ok := f.payloads[symbol]
	if !ok {
		return models.RawPayload{}, errors.New("no such symbol")
	}
	return p, nil
}

type memStorage struct {
	mu      sync.Mutex
	records []*models.DualTruthRecord
	err     error
}

func (s *memStorage) Init(context.Context) error { return nil }
func (s *memStorage) Store(ctx context.Context, r *models.DualTruthRecord) error {
	return s.StoreBatch(ctx, []*models.DualTruthRecord{r})
}
func (s *memStorage) StoreBatch(_ context.Context, rs []*models.DualTruthRecord) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.records = append(s.records, rs...)
	s.mu.Unlock()
	return nil
}
func (s *memStorage) Health(context.Context) error { return nil }
func (s *memStorage) Close() error                 { return nil }

type memUsage struct {
	mu      sync.Mutex
	entries []models.UsageEntry
}

func (u *memUsage) Init(context.Context) error { return nil }
func (u *memUsage) Log(_ context.Context, e models.UsageEntry) error {
	u.mu.Lock()
	u.entries = append(u.entries, e)
	u.mu.Unlock()
	return nil
}
func (u *memUsage) Close() error { return nil }

func payload(symbol string, fields map[string]models.RawField) models.RawPayload {
	return models.RawPayload{Symbol: symbol, Source: "yahoo_finance", FetchedAt: fetchedAt, Fields: fields}
}
