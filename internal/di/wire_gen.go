//go:build !wireinject
// +build !wireinject

package di

import (
	"SignalForge/pkg/config"
	"SignalForge/pkg/server"
)

// InitializeApp is the injector declared in wire.go, written out by hand
// in the shape wire emits; keep the two in step. If a provider fails, the
// resources opened before it are released. On success the caller owns
// cleanup and must run it after App.Run returns.
func InitializeApp(cfg *config.Config) (*server.App, func(), error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	service, cleanup, err := ProvideCache(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	client, cleanup2, err := ProvideClickHouseClient(cfg, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	producer, cleanup3, err := ProvideKafkaProducer(cfg, logger)
	if err != nil {
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	consumer, cleanup4, err := ProvideKafkaConsumer(cfg, logger)
	if err != nil {
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	llm, err := ProvideLLM(cfg, logger)
	if err != nil {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	webResearch, err := ProvideWebResearch(cfg, logger)
	if err != nil {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	marketData := ProvideMarketData(cfg, service, logger)
	resolver, err := ProvideAllowList(cfg)
	if err != nil {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
		return nil, nil, err
	}
	table := ProvideCostTable(cfg)
	memoryReader := ProvideMemoryReader(client, resolver, cfg, logger)
	metrics := ProvideMetrics()
	analyzer := ProvideAnalyzer(cfg, llm, marketData, webResearch, resolver, table, memoryReader, metrics, logger)
	resultPublisher := ProvideResultPublisher(producer, cfg)
	kafkaItemsHandler := ProvideKafkaItemsHandler(cfg, analyzer, resultPublisher, metrics, logger)
	limiter := ProvideRateLimiter(cfg)
	analyzeEchoHandler := ProvideAnalyzeHandler(logger, analyzer, resolver, limiter)
	httpServer := ProvideHTTPServer(cfg, analyzeEchoHandler, logger)
	app := ProvideApp(cfg, logger, httpServer, consumer, kafkaItemsHandler)
	return app, func() {
		cleanup4()
		cleanup3()
		cleanup2()
		cleanup()
	}, nil
}
