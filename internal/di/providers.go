package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"StockWatchdog/internal/domain/models"
	"StockWatchdog/internal/domain/repository"
	"StockWatchdog/internal/handler/api"
	internalrepo "StockWatchdog/internal/repository"
	"StockWatchdog/internal/service/anomaly"
	"StockWatchdog/internal/service/normalize"
	"StockWatchdog/internal/service/ratelimit"
	"StockWatchdog/internal/service/upstream"
	"StockWatchdog/internal/usecase"
	"StockWatchdog/pkg/cache"
	pkgch "StockWatchdog/pkg/clickhouse"
	"StockWatchdog/pkg/config"
	xhttp "StockWatchdog/pkg/http"
	pkgkafka "StockWatchdog/pkg/kafka"
	applogger "StockWatchdog/pkg/logger"
	"StockWatchdog/pkg/metrics"
	"StockWatchdog/pkg/server"
)

const (
	recordsTable = "normalized_metrics"
	usageTable   = "api_usage_log"
)

// ProvideLogger builds the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideSchema returns the accepted field schema.
func ProvideSchema() models.Schema {
	return models.DefaultSchema()
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client and makes sure both tables exist.
func ProvideClickHouseClient(cfg *config.Config, schema models.Schema) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
		internalrepo.RecordsTableDDL(client.Table(recordsTable), schema),
		internalrepo.UsageTableDDL(client.Table(usageTable)),
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer; nil unless records go to Kafka.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if cfg.Backend.Type != usecase.BackendKafka {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a consumer for the raw payload topic; nil when no topic is set.
func ProvideKafkaConsumer(cfg *config.Config, log *applogger.Logger) (*pkgkafka.Consumer, error) {
	if cfg.Kafka.RawTopic == "" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(log),
		pkgkafka.WithConsumerRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideRecordPublisher creates the Kafka record publisher when a producer exists.
func ProvideRecordPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.RecordPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaRecordPublisher(producer, cfg.Kafka.Topic)
}

// ProvideRecordStorage creates ClickHouse record storage for the clickhouse backend.
func ProvideRecordStorage(chClient *pkgch.Client, cfg *config.Config, schema models.Schema) repository.RecordStorage {
	if cfg.Backend.Type != usecase.BackendClickHouse {
		return nil
	}
	return internalrepo.NewClickHouseRecordStorage(chClient.DB(), chClient.Table(recordsTable), schema)
}

func ProvideUsageLog(chClient *pkgch.Client) repository.UsageLog {
	return internalrepo.NewClickHouseUsageLog(chClient.DB(), chClient.Table(usageTable))
}

// ProvideCacheStore builds the in-process cache, layered over Redis when enabled.
func ProvideCacheStore(cfg *config.Config) (cache.Store, error) {
	if !cfg.Redis.Enabled {
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Cache.MaxEntries),
			cache.WithMemoryDefaultTTL(cfg.Cache.TTL),
		), nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return cache.NewLayeredCache(rc,
		cache.WithLayeredMemorySize(cfg.Cache.MaxEntries),
		cache.WithLayeredL1TTL(time.Minute),
	), nil
}

func ProvideRecordCache(store cache.Store) repository.RecordCache {
	return internalrepo.NewStoreRecordCache(store)
}

// ProvideRateGate builds the gate with the default budget plus per-API overrides.
func ProvideRateGate(cfg *config.Config) *ratelimit.Gate {
	opts := make([]ratelimit.Option, 0, len(cfg.RateGate.APIs))
	for name, b := range cfg.RateGate.APIs {
		opts = append(opts, ratelimit.WithBudget(name, budget(b)))
	}
	return ratelimit.New(budget(cfg.RateGate.Default), opts...)
}

func budget(b config.BudgetConfig) ratelimit.Budget {
	return ratelimit.Budget{
		Limit:            b.Limit,
		Window:           b.Window,
		ReservedFraction: b.ReservedFraction,
		CriticalFraction: b.CriticalFraction,
		BackoffBase:      b.BackoffBase,
		BackoffMax:       b.BackoffMax,
		BurstLimit:       b.BurstLimit,
		BurstWindow:      b.BurstWindow,
	}
}

func ProvideUnitNormalizer(cfg *config.Config) *normalize.UnitNormalizer {
	return normalize.New(
		normalize.WithSuffixes(cfg.Normalizer.Suffixes...),
		normalize.WithCodeLength(cfg.Normalizer.CodeLength),
		normalize.WithProviderSuffix(cfg.Normalizer.ProviderSuffix),
	)
}

func ProvideValidator(cfg *config.Config) *anomaly.Validator {
	a := cfg.Anomaly
	return anomaly.New(anomaly.PolicyFromConfig(anomaly.Config{
		YieldMinPct:        a.YieldMinPct,
		YieldMaxPct:        a.YieldMaxPct,
		CorrectionDivisor:  a.CorrectionDivisor,
		PEAdvisoryMax:      a.PEAdvisoryMax,
		PBMax:              a.PBMax,
		RateMinPct:         a.RateMinPct,
		RateMaxPct:         a.RateMaxPct,
		MarketCapTolerance: a.MarketCapTolerance,
		TurnoverSpike:      a.TurnoverSpike,
	}))
}

func ProvideNormalizer(un *normalize.UnitNormalizer, v *anomaly.Validator, schema models.Schema) *usecase.Normalizer {
	return usecase.NewNormalizer(un, v, schema)
}

// ProvideIngestor creates the HTTP quote ingestor for the configured upstream.
func ProvideIngestor(cfg *config.Config, un *normalize.UnitNormalizer) repository.Ingestor {
	return upstream.NewHTTPIngestor(cfg.Upstream.Name, cfg.Upstream.BaseURL, un,
		upstream.WithClient(xhttp.NewClient(xhttp.WithTimeout(cfg.Upstream.Timeout))),
		upstream.WithAPIKey(cfg.Upstream.APIKey),
		upstream.WithRoot(cfg.Upstream.Root),
	)
}

func ProvideRecordSink(
	pub repository.RecordPublisher,
	store repository.RecordStorage,
	m *metrics.Recorder,
	cfg *config.Config,
) (*usecase.RecordSink, error) {
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			return nil, fmt.Errorf("record storage: %w", err)
		}
	}
	return usecase.NewRecordSink(pub, store, m, cfg.Backend.Type), nil
}

func ProvideFetchCoordinator(
	cfg *config.Config,
	log *applogger.Logger,
	ingestor repository.Ingestor,
	gate *ratelimit.Gate,
	n *usecase.Normalizer,
	m *metrics.Recorder,
	rc repository.RecordCache,
	usage repository.UsageLog,
	sink *usecase.RecordSink,
) *usecase.FetchCoordinator {
	return usecase.NewFetchCoordinator(ingestor, gate, n, m,
		usecase.WithCache(rc, cfg.Cache.TTL),
		usecase.WithUsageLog(usage),
		usecase.WithSink(sink),
		usecase.WithLogger(log.With(applogger.String("component", "coordinator"))),
	)
}

// ProvideKafkaRawRecordsHandler normalizes payloads published on the raw topic.
func ProvideKafkaRawRecordsHandler(
	cfg *config.Config,
	n *usecase.Normalizer,
	sink *usecase.RecordSink,
	rc repository.RecordCache,
	m *metrics.Recorder,
) *usecase.KafkaRawRecordsHandler {
	return usecase.NewKafkaRawRecordsHandler(cfg.Kafka.RawTopic, n, sink, rc, cfg.Cache.TTL, m)
}

func ProvideHTTPHandler(
	log *applogger.Logger,
	n *usecase.Normalizer,
	coord *usecase.FetchCoordinator,
	m *metrics.Recorder,
) *api.RecordsEchoHandler {
	return api.NewRecordsEchoHandler(log.With(applogger.String("component", "http")), n, coord, m)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	coord *usecase.FetchCoordinator,
	sink *usecase.RecordSink,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaRawRecordsHandler,
	chClient *pkgch.Client,
	store cache.Store,
	h *api.RecordsEchoHandler,
) *server.App {
	var handler pkgkafka.MessageHandler
	if consumer != nil {
		handler = kh
	}
	app := server.New(cfg, log, coord, sink, consumer, handler, chClient, store)
	app.SetHTTPHandler(h)
	return app
}
