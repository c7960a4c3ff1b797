//go:build wireinject
// +build wireinject

package di

import (
	"FlowSentry/pkg/config"
	"FlowSentry/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,

		// Repositories
		ProvideClusterStore,
		ProvideTickArchive,
		ProvideMarketStream,

		// Detection core
		ProvideClassifiers,
		ProvideClusterEngine,
		ProvideFeedbackEngine,
		ProvideAlertSinks,
		ProvideDetector,

		// Ingest
		ProvideTickPipeline,
		ProvideTickArchiver,
		ProvideEventCollector,
		ProvideKafkaHandlers,

		// API
		ProvideSignalsUseCase,
		ProvideOutcomesUseCase,
		ProvideHTTPHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
