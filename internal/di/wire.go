//go:build wireinject
// +build wireinject

package di

import (
	"TradeVeil/pkg/config"
	"TradeVeil/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Repositories
		ProvideJournal,
		ProvidePublisher,
		ProvideBarStream,

		// Gates and strategy state
		ProvideCooldownRegistry,
		ProvideValidator,
		ProvideConcurrencyLedger,
		ProvideWinRateTracker,

		// Scheduling and use cases
		ProvideScheduler,
		ProvideDispatcher,
		ProvideEngine,
		ProvideBarCollector,
		ProvideFillsHandler,
		ProvideRetryQueue,

		// HTTP surface
		ProvideExportHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
