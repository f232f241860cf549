//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"StockWatchdog/pkg/config"
	"StockWatchdog/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideSchema,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCacheStore,

		// Repositories
		ProvideRecordPublisher,
		ProvideRecordStorage,
		ProvideUsageLog,
		ProvideRecordCache,

		// Services
		ProvideRateGate,
		ProvideUnitNormalizer,
		ProvideValidator,
		ProvideIngestor,

		// Use cases
		ProvideNormalizer,
		ProvideRecordSink,
		ProvideFetchCoordinator,
		ProvideKafkaRawRecordsHandler,

		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
