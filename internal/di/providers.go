package di

import (
	"context"
	"fmt"
	"time"

	"SignalForge/internal/domain/repository"
	"SignalForge/internal/handler/api"
	internalrepo "SignalForge/internal/repository"
	"SignalForge/internal/service/allowlist"
	"SignalForge/internal/service/cost"
	"SignalForge/internal/service/finnhub"
	"SignalForge/internal/service/llm"
	"SignalForge/internal/service/ratelimit"
	"SignalForge/internal/service/research"
	"SignalForge/internal/service/symbols"
	"SignalForge/internal/usecase"
	"SignalForge/pkg/cache"
	pkgch "SignalForge/pkg/clickhouse"
	"SignalForge/pkg/config"
	xhttp "SignalForge/pkg/http"
	pkgkafka "SignalForge/pkg/kafka"
	applogger "SignalForge/pkg/logger"
	"SignalForge/pkg/metrics"
	"SignalForge/pkg/server"
)

const initTimeout = 10 * time.Second

// ProvideLogger builds the process logger from the log section.
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

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

func ProvideLLM(cfg *config.Config, l *applogger.Logger) (repository.LLM, error) {
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	client, err := llm.New(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("llm client: %w", err)
	}
	return client, nil
}

// ProvideWebResearch returns nil when research is disabled; Stage 2 then
// skips web queries.
func ProvideWebResearch(cfg *config.Config, l *applogger.Logger) (repository.WebResearch, error) {
	if !cfg.Research.Enabled {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	s, err := research.NewGeminiSearcher(ctx, cfg.Gemini.APIKey, cfg.Research.Model,
		l.With(applogger.String("component", "research")),
		research.WithMaxTokens(cfg.Research.MaxTokens),
		research.WithTimeout(cfg.Research.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("research client: %w", err)
	}
	return s, nil
}

// ProvideCache returns an in-memory cache, layered over Redis when enabled.
func ProvideCache(cfg *config.Config, l *applogger.Logger) (cache.Service, func(), error) {
	memOpts := []cache.MemoryOption{
		cache.WithMemoryMaxSize(5000),
		cache.WithMemoryCleanup(time.Minute),
		cache.WithMemoryDefaultTTL(cfg.Finnhub.CacheTTL),
	}
	var c cache.Service
	if !cfg.Redis.Enabled {
		c = cache.NewMemoryCache(memOpts...)
		return c, closer(l, "cache", c.Close), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()
	remote, err := cache.NewRedisCache(ctx,
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis cache: %w", err)
	}
	c = cache.NewLayeredCache(remote, 30*time.Second, memOpts...)
	return c, closer(l, "cache", c.Close), nil
}

// ProvideMarketData returns nil without a Finnhub key; every data request
// then degrades to missing data and web fallback.
func ProvideMarketData(cfg *config.Config, c cache.Service, l *applogger.Logger) repository.MarketData {
	if cfg.Finnhub.APIKey == "" {
		l.Warn("finnhub api key not set, market data disabled")
		return nil
	}
	return finnhub.New(cfg.Finnhub.APIKey, cfg.Finnhub.BaseURL, cfg.Finnhub.Timeout,
		finnhub.WithCache(c, cfg.Finnhub.CacheTTL),
		finnhub.WithRateLimit(cfg.Finnhub.RateLimit, cfg.Finnhub.RateBurst),
		finnhub.WithLogger(l.With(applogger.String("component", "finnhub"))),
	)
}

func ProvideAllowList(cfg *config.Config) (*allowlist.Resolver, error) {
	r, err := allowlist.Load(cfg.AllowList.Path)
	if err != nil {
		return nil, fmt.Errorf("allow-list: %w", err)
	}
	return r, nil
}

func ProvideCostTable(cfg *config.Config) *cost.Table {
	return cost.NewTable(cfg.Pricing)
}

// ProvideClickHouseClient returns nil when ClickHouse is disabled.
func ProvideClickHouseClient(cfg *config.Config, l *applogger.Logger) (*pkgch.Client, func(), error) {
	if !cfg.ClickHouse.Enabled {
		return nil, func() {}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	if cfg.ClickHouse.InitSchema {
		stmts := internalrepo.MemorySchema(cfg.ClickHouse.Database, cfg.ClickHouse.Table,
			cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic, cfg.Kafka.GroupID+"-memory")
		if !cfg.Kafka.Enabled {
			stmts = stmts[:2]
		}
		if err := client.InitSchema(ctx, stmts); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, closer(l, "clickhouse", client.Close), nil
}

// ProvideMemoryReader returns nil without ClickHouse; analyses then run
// without position memory.
func ProvideMemoryReader(ch *pkgch.Client, allow *allowlist.Resolver, cfg *config.Config, l *applogger.Logger) repository.MemoryReader {
	if ch == nil {
		return nil
	}
	v := symbols.NewValidator(allow.Resolve())
	return internalrepo.NewCHMemoryReader(ch, cfg.ClickHouse.Database, cfg.ClickHouse.Table, v.Canonical,
		l.With(applogger.String("component", "memory")))
}

// ProvideKafkaProducer returns nil when Kafka is disabled. The result
// publisher writes through it, so closing it flushes pending results.
func ProvideKafkaProducer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Producer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression("snappy"),
		pkgkafka.WithRequiredAcks(-1),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
		pkgkafka.WithBatchTimeout(50*time.Millisecond),
		pkgkafka.WithMaxAttempts(5),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, closer(l, "kafka producer", producer.Close), nil
}

func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.ResultPublisher {
	if producer == nil {
		return internalrepo.NopPublisher{}
	}
	return internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.ResultsTopic)
}

func ProvideAnalyzer(
	cfg *config.Config,
	client repository.LLM,
	market repository.MarketData,
	web repository.WebResearch,
	allow *allowlist.Resolver,
	costs *cost.Table,
	memory repository.MemoryReader,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Analyzer {
	return usecase.NewAnalyzer(usecase.PipelineConfigFrom(cfg), client, market, web, allow, costs,
		usecase.WithMemoryReader(memory),
		usecase.WithMetrics(m),
		usecase.WithLogger(l.With(applogger.String("component", "analyzer"))),
	)
}

func ProvideRateLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateBurst, 10*time.Minute)
}

func ProvideAnalyzeHandler(l *applogger.Logger, analyzer *usecase.Analyzer, allow *allowlist.Resolver, limiter *ratelimit.Limiter) *api.AnalyzeEchoHandler {
	return api.NewAnalyzeEchoHandler(l.With(applogger.String("component", "api")), analyzer, allow, limiter)
}

func ProvideHTTPServer(cfg *config.Config, h *api.AnalyzeEchoHandler, l *applogger.Logger) *xhttp.Server {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return xhttp.NewServer(h, l.With(applogger.String("component", "http")),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(metricsPath, nil),
	)
}

// ProvideKafkaConsumer returns nil when Kafka is disabled. App stops the
// consumer on shutdown; the cleanup only matters when startup fails.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, func(), error) {
	if !cfg.Kafka.Enabled {
		return nil, func() {}, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Workers*2),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
		pkgkafka.WithConsumerLogger(l),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka consumer: %w", err)
	}
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	return consumer, cleanup, nil
}

func ProvideKafkaItemsHandler(
	cfg *config.Config,
	analyzer *usecase.Analyzer,
	pub repository.ResultPublisher,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.KafkaItemsHandler {
	return usecase.NewKafkaItemsHandler(cfg.Kafka.ItemsTopic, analyzer, pub, m,
		l.With(applogger.String("component", "items_handler")))
}

// ProvideApp creates the application server. The sinks it writes to are
// closed by the injector's cleanup after Run returns.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	srv *xhttp.Server,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaItemsHandler,
) *server.App {
	return server.New(cfg, l, srv, server.WithConsumer(consumer, kh))
}

// closer adapts a Close method to a wire cleanup.
func closer(l *applogger.Logger, name string, closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			l.Warn(name+" close error", applogger.Error(err))
		}
	}
}
