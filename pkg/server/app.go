package server

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/usecase"
	"StockWatchdog/pkg/cache"
	pkgch "StockWatchdog/pkg/clickhouse"
	"StockWatchdog/pkg/config"
	xhttp "StockWatchdog/pkg/http"
	pkgkafka "StockWatchdog/pkg/kafka"
	applogger "StockWatchdog/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	coord       *usecase.FetchCoordinator
	sink        *usecase.RecordSink
	consumer    *pkgkafka.Consumer
	kh          pkgkafka.MessageHandler
	chClient    *pkgch.Client
	store       cache.Store
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies. consumer, kh, chClient
// and store may be nil when the matching component is disabled.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	coord *usecase.FetchCoordinator,
	sink *usecase.RecordSink,
	consumer *pkgkafka.Consumer,
	kh pkgkafka.MessageHandler,
	chClient *pkgch.Client,
	store cache.Store,
) *App {
	if log == nil {
		log = applogger.Nop()
	}
	return &App{
		cfg:      cfg,
		log:      log,
		coord:    coord,
		sink:     sink,
		consumer: consumer,
		kh:       kh,
		chClient: chClient,
		store:    store,
	}
}

// SetHTTPHandler allows DI to inject an HTTP handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsPath := ""
	if a.cfg.Metrics.Enabled {
		metricsPath = a.cfg.Metrics.Path
	}
	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, nil),
		xhttp.WithLogger(a.log),
	)

	waitPoller := a.startPoller(ctx)

	// Start consumer if configured
	if a.consumer != nil && a.kh != nil {
		a.consumer.RegisterHandler(a.kh)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.kh.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancel()
		waitPoller()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	cancel()
	// the poller may still be writing to the sink
	waitPoller()
	return a.shutdown(context.Background())
}

// startPoller starts the scheduled refresh of the watch list. The returned
// func blocks until the poller has returned, which happens once ctx is done.
func (a *App) startPoller(ctx context.Context) func() {
	var wg sync.WaitGroup
	syms := a.cfg.Upstream.Symbols
	if len(syms) == 0 || a.coord == nil {
		return wg.Wait
	}
	p, err := models.ParsePriority(a.cfg.Upstream.Priority)
	if err != nil {
		a.log.Warn("invalid upstream priority, using low", applogger.Error(err))
		p = models.PriorityLow
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.coord.Run(ctx, syms, a.cfg.Upstream.Interval, p)
	}()
	a.log.Info("poller started",
		applogger.Strings("symbols", syms),
		applogger.Duration("interval", a.cfg.Upstream.Interval),
		applogger.String("api", a.coord.API()),
	)
	return wg.Wait
}

// shutdown stops inbound traffic first, then drains and closes the backends.
func (a *App) shutdown(ctx context.Context) error {
	a.log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	// publisher and storage
	if a.sink != nil {
		a.sink.Close()
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}
