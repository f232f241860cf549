package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/service/anomaly"
	"StockWatchdog/internal/service/normalize"
	"StockWatchdog/internal/service/ratelimit"
	"StockWatchdog/internal/usecase"
	"StockWatchdog/pkg/config"
	"StockWatchdog/pkg/metrics"
)

// slowIngestor blocks until the fetch is canceled, then takes a while to unwind.
type slowIngestor struct {
	started chan struct{}
	once    atomic.Bool
	done    atomic.Bool
}

func (s *slowIngestor) Name() string { return "yahoo_finance" }

func (s *slowIngestor) Fetch(ctx context.Context, _ string) (models.RawPayload, error) {
	if s.once.CompareAndSwap(false, true) {
		close(s.started)
	}
	<-ctx.Done()
	time.Sleep(50 * time.Millisecond)
	s.done.Store(true)
	return models.RawPayload{}, ctx.Err()
}

func TestStartPollerWaitsForRun(t *testing.T) {
	ing := &slowIngestor{started: make(chan struct{})}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	n := usecase.NewNormalizer(normalize.New(), anomaly.New(anomaly.DefaultPolicy()), nil)
	coord := usecase.NewFetchCoordinator(ing, ratelimit.New(ratelimit.DefaultBudget()), n, m)

	cfg := &config.Config{Upstream: config.UpstreamConfig{
		Symbols:  []string{"9432"},
		Interval: time.Hour,
		Priority: "low",
	}}
	a := New(cfg, nil, coord, nil, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	wait := a.startPoller(ctx)
	select {
	case <-ing.started:
	case <-time.After(5 * time.Second):
		t.Fatalf("poller never fetched")
	}
	cancel()
	wait()
	if !ing.done.Load() {
		t.Fatalf("wait returned while the poller was still fetching")
	}
}

func TestStartPollerWithoutSymbols(t *testing.T) {
	a := New(&config.Config{}, nil, nil, nil, nil, nil, nil, nil)
	a.startPoller(context.Background())()
}
