package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"StockWatchdog/internal/domain/models"
	drepo "StockWatchdog/internal/domain/repository"
	"StockWatchdog/internal/service/anomaly"
	xhttp "StockWatchdog/pkg/http"
	applogger "StockWatchdog/pkg/logger"
)

// AdmissionGate is the rate gate as the coordinator sees it.
type AdmissionGate interface {
	Admit(api string, p models.Priority) models.Decision
	RecordSuccess(api string)
	RecordFailure(api string, status int) time.Duration
	Status(api string) models.BudgetStatus
	Snapshot() []models.BudgetStatus
}

// ErrDenied is returned when the rate gate refuses a fetch; the result carries the decision.
var ErrDenied = errors.New("fetch denied by rate gate")

// FetchCoordinator wires cache, rate gate, ingestor, normalizer and sink together.
// The gate lock is never held while the upstream call is in flight.
type FetchCoordinator struct {
	ingestor   drepo.Ingestor
	gate       AdmissionGate
	normalizer *Normalizer
	sink       *RecordSink
	cache      drepo.RecordCache
	usage      drepo.UsageLog
	metrics    drepo.Metrics
	log        *applogger.Logger
	ttl        time.Duration
	workers    int
	now        func() time.Time
}

type CoordinatorOption func(*FetchCoordinator)

// WithCache enables the record cache; ttl <= 0 leaves it disabled.
func WithCache(c drepo.RecordCache, ttl time.Duration) CoordinatorOption {
	return func(f *FetchCoordinator) {
		if c != nil && ttl > 0 {
			f.cache = c
			f.ttl = ttl
		}
	}
}

func WithUsageLog(u drepo.UsageLog) CoordinatorOption {
	return func(f *FetchCoordinator) { f.usage = u }
}

func WithSink(s *RecordSink) CoordinatorOption {
	return func(f *FetchCoordinator) { f.sink = s }
}

func WithLogger(l *applogger.Logger) CoordinatorOption {
	return func(f *FetchCoordinator) {
		if l != nil {
			f.log = l
		}
	}
}

// WithBatchWorkers bounds concurrent upstream calls in FetchBatch.
func WithBatchWorkers(n int) CoordinatorOption {
	return func(f *FetchCoordinator) {
		if n > 0 {
			f.workers = n
		}
	}
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(f *FetchCoordinator) { f.now = now }
}

func NewFetchCoordinator(
	ingestor drepo.Ingestor,
	gate AdmissionGate,
	normalizer *Normalizer,
	metrics drepo.Metrics,
	opts ...CoordinatorOption,
) *FetchCoordinator {
	f := &FetchCoordinator{
		ingestor:   ingestor,
		gate:       gate,
		normalizer: normalizer,
		metrics:    metrics,
		log:        applogger.Nop(),
		workers:    4,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// API is the rate-gate budget name used for upstream calls.
func (f *FetchCoordinator) API() string { return f.ingestor.Name() }

// Gate exposes the admission gate for the feedback endpoints.
func (f *FetchCoordinator) Gate() AdmissionGate { return f.gate }

// Fetch returns the record for one symbol: from cache unless refresh is set,
// otherwise through an admitted upstream call.
func (f *FetchCoordinator) Fetch(ctx context.Context, symbol string, p models.Priority, refresh bool) models.FetchResult {
	res := models.FetchResult{Symbol: symbol}
	canonical, err := f.normalizer.CanonicalSymbol(symbol)
	if err != nil {
		f.metrics.RecordDropped("invalid_symbol")
		res.Error = err.Error()
		return res
	}
	res.Symbol = canonical

	if !refresh {
		if rec, ok := f.cached(ctx, canonical); ok {
			res.Record = rec
			res.Cached = true
			return res
		}
	}

	rec, d, err := f.fetchAndNormalize(ctx, canonical, p)
	res.Decision = &d
	res.Record = rec
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

// Cached returns the latest cached record without touching the upstream API.
func (f *FetchCoordinator) Cached(ctx context.Context, symbol string) (*models.DualTruthRecord, bool, error) {
	canonical, err := f.normalizer.CanonicalSymbol(symbol)
	if err != nil {
		return nil, false, err
	}
	rec, ok := f.cached(ctx, canonical)
	return rec, ok, nil
}

func (f *FetchCoordinator) cached(ctx context.Context, symbol string) (*models.DualTruthRecord, bool) {
	if f.cache == nil {
		return nil, false
	}
	rec, ok, err := f.cache.Get(ctx, models.RecordKey{Symbol: symbol, Source: f.API()})
	if err != nil {
		f.metrics.RecordError("cache_get")
		f.log.Warn("cache get", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, false
	}
	return rec, ok
}

func (f *FetchCoordinator) fetchAndNormalize(ctx context.Context, symbol string, p models.Priority) (*models.DualTruthRecord, models.Decision, error) {
	api := f.API()
	d := f.gate.Admit(api, p)
	f.metrics.RecordAdmission(api, d)
	if !d.Allowed {
		return nil, d, fmt.Errorf("%w: %s, retry after %s", ErrDenied, d.Reason, d.RetryAfter)
	}

	reqID := uuid.NewString()
	log := f.log.With(applogger.String("request_id", reqID), applogger.String("symbol", symbol), applogger.String("api", api))

	start := f.now()
	payload, err := f.ingestor.Fetch(ctx, symbol)
	latency := f.now().Sub(start)
	f.metrics.RecordLatency("upstream_fetch", latency.Seconds())

	if ctx.Err() != nil {
		return nil, d, fmt.Errorf("fetch %s: %w", symbol, ctx.Err())
	}
	status := xhttp.StatusOf(err)
	if err == nil {
		status = 200
	}
	fb := models.FeedbackRequest{
		API:       api,
		Success:   err == nil,
		Status:    status,
		Symbol:    symbol,
		LatencyMs: latency.Milliseconds(),
	}
	// Status 0 without a transport error is a local failure such as a bad body.
	backoff := err != nil && models.BacksOff(status) && (status != 0 || xhttp.IsTransportError(err))
	f.report(ctx, fb, backoff)
	if err != nil {
		f.metrics.RecordError("upstream")
		log.Warn("upstream fetch failed", applogger.Int("status", status), applogger.Bool("backoff", backoff), applogger.Error(err))
		return nil, d, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	rec, err := f.normalizer.Normalize(payload)
	if err != nil {
		f.metrics.RecordDropped("structural")
		log.Warn("record dropped", applogger.Error(err))
		return nil, d, err
	}
	f.observe(rec)

	if f.sink != nil {
		if err := f.sink.Process(ctx, rec); err != nil {
			log.Error("sink record", applogger.Error(err))
			return rec, d, err
		}
	}
	if f.cache != nil {
		if err := f.cache.Set(ctx, rec, f.ttl); err != nil {
			f.metrics.RecordError("cache_set")
			log.Warn("cache set", applogger.Error(err))
		}
	}
	log.Debug("record normalized", applogger.Int("warnings", len(rec.Warnings())), applogger.Duration("latency", latency))
	return rec, d, nil
}

func (f *FetchCoordinator) observe(rec *models.DualTruthRecord) {
	f.metrics.RecordNormalized(rec.Source())
	for _, w := range rec.Warnings() {
		f.metrics.RecordWarning(w.Field, w.Severity)
	}
}

// Feedback reports the outcome of an admitted call to the gate and the usage log.
// Callers fetching outside the coordinator use it through the HTTP API.
// Failures only back off for the statuses models.BacksOff names.
func (f *FetchCoordinator) Feedback(ctx context.Context, fb models.FeedbackRequest) models.BudgetStatus {
	return f.report(ctx, fb, !fb.Success && models.BacksOff(fb.Status))
}

func (f *FetchCoordinator) report(ctx context.Context, fb models.FeedbackRequest, backoff bool) models.BudgetStatus {
	switch {
	case fb.Success:
		f.gate.RecordSuccess(fb.API)
	case backoff:
		wait := f.gate.RecordFailure(fb.API, fb.Status)
		f.metrics.RecordBackoff(fb.API, wait)
	}
	if f.usage != nil {
		err := f.usage.Log(ctx, models.UsageEntry{
			API:       fb.API,
			Symbol:    fb.Symbol,
			Status:    fb.Status,
			Success:   fb.Success,
			LatencyMs: fb.LatencyMs,
			Timestamp: f.now().UnixMilli(),
		})
		if err != nil {
			f.metrics.RecordError("usage_log")
			f.log.Warn("usage log", applogger.String("api", fb.API), applogger.Error(err))
		}
	}
	return f.gate.Status(fb.API)
}

// FetchBatch fetches symbols concurrently; one symbol's failure never affects another.
// Results keep the input order.
func (f *FetchCoordinator) FetchBatch(ctx context.Context, symbols []string, p models.Priority, refresh bool) []models.FetchResult {
	out := make([]models.FetchResult, len(symbols))
	sem := make(chan struct{}, f.workers)
	var wg sync.WaitGroup
	for i, s := range symbols {
		wg.Add(1)
		go func(i int, s string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = models.FetchResult{Symbol: s, Error: ctx.Err().Error()}
				return
			}
			defer func() { <-sem }()
			out[i] = f.Fetch(ctx, s, p, refresh)
		}(i, s)
	}
	wg.Wait()
	return out
}

// Run refreshes symbols every interval until ctx is done and logs a warning summary per round.
func (f *FetchCoordinator) Run(ctx context.Context, symbols []string, interval time.Duration, p models.Priority) {
	if len(symbols) == 0 || interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		f.refresh(ctx, symbols, p)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (f *FetchCoordinator) refresh(ctx context.Context, symbols []string, p models.Priority) {
	results := f.FetchBatch(ctx, symbols, p, true)
	records := make([]*models.DualTruthRecord, 0, len(results))
	failed := 0
	for _, r := range results {
		if r.Record != nil {
			records = append(records, r.Record)
		}
		if r.Error != "" {
			failed++
		}
	}
	sum := anomaly.Summarize(records)
	f.log.Info("refresh complete",
		applogger.Int("symbols", len(symbols)),
		applogger.Int("failed", failed),
		applogger.Int("with_warnings", sum.SymbolsWithWarnings),
		applogger.Int("warnings", sum.TotalWarnings),
	)
}
