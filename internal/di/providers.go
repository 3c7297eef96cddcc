package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"TradeVeil/internal/domain/repository"
	"TradeVeil/internal/domain/service"
	"TradeVeil/internal/gate"
	"TradeVeil/internal/handler/api"
	mid "TradeVeil/internal/middleware"
	internalrepo "TradeVeil/internal/repository"
	icache "TradeVeil/internal/service/cache"
	"TradeVeil/internal/service/stream"
	"TradeVeil/internal/stealth"
	"TradeVeil/internal/strategy"
	"TradeVeil/internal/usecase"
	pkgch "TradeVeil/pkg/clickhouse"
	"TradeVeil/pkg/config"
	pkgkafka "TradeVeil/pkg/kafka"
	applogger "TradeVeil/pkg/logger"
	"TradeVeil/pkg/metrics"
	"TradeVeil/pkg/queue"
	"TradeVeil/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	return applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and initializes the
// journal schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
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

	if err := client.InitSchema(ctx, internalrepo.SchemaStatements(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates the fills consumer configured from YAML.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideJournal creates the ClickHouse journal repository.
func ProvideJournal(chClient *pkgch.Client, cfg *config.Config, log *applogger.Logger) repository.Journal {
	j := internalrepo.NewCHJournal(chClient, cfg.ClickHouse.Database)
	if ch, ok := j.(*internalrepo.CHJournal); ok {
		ch.SetLogger(log)
	}
	return j
}

// ProvidePublisher creates the Kafka publisher repository.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.SignalsTopic, cfg.Kafka.DirectivesTopic)
}

// ProvideBarStream creates the WebSocket price feed.
func ProvideBarStream(cfg *config.Config, log *applogger.Logger) repository.BarStream {
	return stream.New(
		cfg.Feed.APIKey,
		cfg.Feed.WebSocketURL,
		cfg.Feed.Instruments,
		cfg.Feed.ReconnectDelay,
		cfg.Feed.PingInterval,
		log,
	)
}

// ProvideCooldownRegistry creates the per-instrument cooldown gate.
func ProvideCooldownRegistry(cfg *config.Config) *gate.CooldownRegistry {
	return gate.NewCooldownRegistry(cfg.Engine.CooldownInterval)
}

// ProvideValidator creates the signal validator.
func ProvideValidator(cfg *config.Config) *gate.Validator {
	return gate.NewValidator(cfg.Engine)
}

// ProvideConcurrencyLedger creates the admission ledger.
func ProvideConcurrencyLedger(cfg *config.Config, m repository.Metrics) *gate.ConcurrencyLedger {
	return gate.NewConcurrencyLedger(cfg.Stealth.PerInstrumentCap, cfg.Stealth.TotalCap, m)
}

// ProvideWinRateTracker creates the shared per-strategy win statistics.
func ProvideWinRateTracker() *strategy.WinRateTracker {
	return strategy.NewWinRateTracker()
}

// ProvideScheduler creates the stealth execution scheduler.
func ProvideScheduler(
	cfg *config.Config,
	ledger *gate.ConcurrencyLedger,
	m repository.Metrics,
	log *applogger.Logger,
) (*stealth.Scheduler, error) {
	return stealth.NewScheduler(cfg.Stealth, ledger, m, log)
}

// ProvideDispatcher creates the deferred-dispatch loop.
func ProvideDispatcher(
	scheduler *stealth.Scheduler,
	ledger *gate.ConcurrencyLedger,
	pub repository.Publisher,
	journal repository.Journal,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Dispatcher {
	return usecase.NewDispatcher(scheduler, ledger, pub, journal, m, log)
}

// ProvideEngine creates the signal decision engine.
func ProvideEngine(
	cfg *config.Config,
	cooldown *gate.CooldownRegistry,
	validator *gate.Validator,
	scheduler *stealth.Scheduler,
	stats *strategy.WinRateTracker,
	journal repository.Journal,
	pub repository.Publisher,
	dispatch *usecase.Dispatcher,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.Engine {
	return usecase.NewEngine(cfg, cooldown, validator, scheduler, stats, journal, pub, dispatch, m, log)
}

// ProvideBarCollector creates the feed collector with its validation pipeline.
func ProvideBarCollector(
	barStream repository.BarStream,
	engine *usecase.Engine,
	m repository.Metrics,
) *usecase.BarCollector {
	pipe := mid.NewBarPipeline(engine, m,
		mid.WithMaxRPS(20),
		mid.WithBufferSize(1000),
	)
	return usecase.NewBarCollector(barStream, engine, m, pipe)
}

// ProvideFillsHandler creates the handler for the fill-report topic.
func ProvideFillsHandler(
	cfg *config.Config,
	ledger *gate.ConcurrencyLedger,
	stats *strategy.WinRateTracker,
	scheduler *stealth.Scheduler,
	m repository.Metrics,
	log *applogger.Logger,
) *usecase.FillsHandler {
	return usecase.NewFillsHandler(cfg.Kafka.FillsTopic, ledger, stats, scheduler, m, log)
}

// ProvideRetryQueue creates the Redis-backed redispatch queue. Returns nil
// when Redis is disabled; the dispatcher then requeues in memory only.
func ProvideRetryQueue(
	cfg *config.Config,
	pub repository.Publisher,
	ledger *gate.ConcurrencyLedger,
	m repository.Metrics,
	log *applogger.Logger,
) *queue.RedisQueue {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	q := queue.NewRedisQueue(log, &queue.QueueConfig{
		Workers:    2,
		QueueSize:  256,
		RetryLimit: 3,
		RetryDelay: 5 * time.Second,
	}, client, queue.ModeProducerConsumer)
	q.RegisterJob(usecase.NewRedispatchJob(pub, ledger, m, log))
	return q
}

// ProvideExportHandler creates the read-side HTTP API. The response cache is
// Redis-backed when available, otherwise an in-process TTL cache.
func ProvideExportHandler(
	cfg *config.Config,
	log *applogger.Logger,
	journal repository.Journal,
	ledger *gate.ConcurrencyLedger,
	cooldown *gate.CooldownRegistry,
	barStream repository.BarStream,
) *api.ExportHandler {
	h := api.NewExportHandler(log, journal, ledger, cooldown, barStream)
	if cfg.Redis.Enabled {
		host, port := splitRedisAddr(cfg.Redis.Addr)
		if rc, err := icache.NewRedisCache(icache.RedisConfig{
			Host:     host,
			Port:     port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}); err == nil {
			h.SetCache(rc)
			return h
		}
	}
	h.SetCache(icache.NewTTLCache())
	return h
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.BarCollector,
	engine *usecase.Engine,
	dispatcher *usecase.Dispatcher,
	consumer *pkgkafka.Consumer,
	fills *usecase.FillsHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
	handler *api.ExportHandler,
	retryQueue *queue.RedisQueue,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	app := server.New(cfg, log, collector, engine, dispatcher, consumer, fills, producer, chClient)
	app.SetHTTPHandler(handler)
	if retryQueue != nil {
		app.SetRetryQueue(retryQueue)
	}
	return app
}

func splitRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		port = 6379
	}
	return host, port
}

var _ service.Scheduler = (*stealth.Scheduler)(nil)
