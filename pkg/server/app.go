package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"TradeVeil/internal/usecase"
	pkgch "TradeVeil/pkg/clickhouse"
	"TradeVeil/pkg/config"
	xhttp "TradeVeil/pkg/http"
	pkgkafka "TradeVeil/pkg/kafka"
	applogger "TradeVeil/pkg/logger"
	"TradeVeil/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	log         *applogger.Logger
	collector   *usecase.BarCollector
	engine      *usecase.Engine
	dispatcher  *usecase.Dispatcher
	consumer    *pkgkafka.Consumer
	fills       pkgkafka.MessageHandler
	producer    *pkgkafka.Producer
	chClient    *pkgch.Client
	retryQueue  *queue.RedisQueue
	httpServer  *xhttp.Server
	httpHandler xhttp.Handler
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	collector *usecase.BarCollector,
	engine *usecase.Engine,
	dispatcher *usecase.Dispatcher,
	consumer *pkgkafka.Consumer,
	fills pkgkafka.MessageHandler,
	producer *pkgkafka.Producer,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		log:        log,
		collector:  collector,
		engine:     engine,
		dispatcher: dispatcher,
		consumer:   consumer,
		fills:      fills,
		producer:   producer,
		chClient:   chClient,
	}
}

// kafkaLogPublisher adapts the kafka producer to the log collector's
// Publisher interface.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (k kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return k.producer.Publish(ctx, topic, nil, payload)
}

// SetHTTPHandler allows DI to inject the export API handler.
func (a *App) SetHTTPHandler(h xhttp.Handler) { a.httpHandler = h }

// SetRetryQueue allows DI to inject the durable redispatch queue.
func (a *App) SetRetryQueue(q *queue.RedisQueue) { a.retryQueue = q }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := a.log
	if l == nil {
		l, _ = applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stdout"})
		a.log = l
	}

	// Aggregate error logs onto kafka instead of spamming per-occurrence.
	if a.producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          "tradeveil.logs.errors",
			Publisher:      kafkaLogPublisher{producer: a.producer},
		})
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
	)

	// Dispatcher first so accepted signals always have somewhere to land.
	a.dispatcher.Start(ctx)
	l.Info("dispatcher started")

	// Durable retry for failed directive publishes.
	if a.retryQueue != nil {
		if err := a.retryQueue.Start(); err != nil {
			l.Error("retry queue start error", applogger.Error(err))
			return err
		}
		a.retryQueue.StartRetryProcessor()
		a.dispatcher.SetRetryQueue(a.retryQueue)
		l.Info("retry queue started")
	}

	// Feed collector (stream -> pipeline -> engine)
	go func() {
		if err := a.collector.Start(ctx); err != nil {
			l.Error("collector error", applogger.Error(err))
		}
	}()
	l.Info("collector started", applogger.Strings("instruments", a.cfg.Feed.Instruments))

	// Fill reports close ledger slots and feed the win-rate tracker.
	if a.consumer != nil && a.fills != nil {
		a.consumer.RegisterHandler(a.fills)
		go func() {
			if err := a.consumer.Start(); err != nil {
				l.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		l.Info("fills consumer started", applogger.String("topic", a.fills.Topic()))
	}

	if err := a.httpServer.Start(); err != nil {
		l.Error("http server start error", applogger.Error(err))
		return err
	}

	// Wait for interrupt
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services, feed side first so nothing new
// enters the engine while the dispatcher drains.
func (a *App) shutdown(ctx context.Context) error {
	l := a.log

	if err := a.collector.Shutdown(ctx); err != nil {
		l.Warn("collector stop error", applogger.Error(err))
	}

	a.engine.Stop()
	a.dispatcher.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		l.Error("http shutdown error", applogger.Error(err))
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			l.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.retryQueue != nil {
		if err := a.retryQueue.Stop(shutdownCtx); err != nil {
			l.Warn("retry queue stop error", applogger.Error(err))
		}
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			l.Warn("kafka producer close error", applogger.Error(err))
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	l.Info("shutdown complete")
	return nil
}
