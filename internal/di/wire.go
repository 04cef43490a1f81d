//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SignalForge/pkg/config"
	"SignalForge/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application
// with a cleanup that closes the infrastructure clients.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideCache,
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,

		// Services and repositories
		ProvideLLM,
		ProvideWebResearch,
		ProvideMarketData,
		ProvideAllowList,
		ProvideCostTable,
		ProvideMemoryReader,
		ProvideResultPublisher,

		// Use cases
		ProvideAnalyzer,
		ProvideKafkaItemsHandler,

		// Transport
		ProvideRateLimiter,
		ProvideAnalyzeHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return nil, nil, nil
}
