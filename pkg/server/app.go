package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FlowSentry/internal/detector"
	domrepo "FlowSentry/internal/domain/repository"
	mid "FlowSentry/internal/middleware"
	"FlowSentry/internal/repository"
	"FlowSentry/internal/usecase"
	pkgch "FlowSentry/pkg/clickhouse"
	"FlowSentry/pkg/config"
	xhttp "FlowSentry/pkg/http"
	pkgkafka "FlowSentry/pkg/kafka"
	applogger "FlowSentry/pkg/logger"

	"github.com/labstack/echo/v4"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	log *applogger.Logger

	detector  *detector.Detector
	pipeline  *mid.TickPipeline
	collector *usecase.EventCollector   // websocket ingest, nil otherwise
	consumer  *pkgkafka.Consumer        // kafka ingest, nil otherwise
	handlers  []pkgkafka.MessageHandler // kafka topic handlers
	archiver  *usecase.TickArchiver     // nil when archiving is disabled
	chClient  *pkgch.Client             // nil when clickhouse is disabled
	producer  *pkgkafka.Producer        // nil without kafka
	sinks     []domrepo.AlertSink

	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	det *detector.Detector,
	pipeline *mid.TickPipeline,
	collector *usecase.EventCollector,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	archiver *usecase.TickArchiver,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	sinks []domrepo.AlertSink,
	httpHandler xhttp.Handler,
) *App {
	return &App{
		cfg:         cfg,
		log:         log,
		detector:    det,
		pipeline:    pipeline,
		collector:   collector,
		consumer:    consumer,
		handlers:    handlers,
		archiver:    archiver,
		chClient:    chClient,
		producer:    producer,
		sinks:       sinks,
		httpHandler: httpHandler,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Aggregate repeated error logs into Kafka when a logs topic is set.
	if a.producer != nil && a.cfg.Kafka.Topics.Logs != "" {
		a.log.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          a.cfg.Kafka.Topics.Logs,
			Publisher:      repository.NewKafkaLogPublisher(a.producer),
		})
	}

	if a.archiver != nil {
		a.archiver.Start(ctx)
	}
	a.pipeline.Start(ctx)

	switch {
	case a.collector != nil:
		if err := a.collector.Start(ctx); err != nil {
			a.log.Error("collector start error", applogger.Error(err))
			return err
		}
		a.log.Info("collector started", applogger.Strings("tickers", a.cfg.Detection.Tickers))
	case a.consumer != nil:
		for _, h := range a.handlers {
			a.consumer.RegisterHandler(h)
			a.log.Info("kafka handler registered", applogger.String("topic", h.Topic()))
		}
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer error", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.Strings("brokers", a.cfg.Kafka.Brokers))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(a.log, time.Second),
	)
	a.httpServer.Echo().GET("/healthz", a.health)

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.log.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown stops ingest first so no new events arrive, drains the detector,
// then flushes the archiver and closes infrastructure clients.
func (a *App) shutdown(ctx context.Context) error {
	if a.collector != nil {
		if err := a.collector.Shutdown(ctx); err != nil {
			a.log.Warn("collector stop error", applogger.Error(err))
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}
	a.pipeline.Stop()

	if err := a.detector.Shutdown(ctx); err != nil {
		a.log.Warn("detector drain error", applogger.Error(err))
	}

	if a.archiver != nil {
		a.archiver.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if a.httpServer != nil {
		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
		}
	}

	for _, sink := range a.sinks {
		if err := sink.Close(); err != nil {
			a.log.Warn("alert sink close error", applogger.String("sink", sink.Name()), applogger.Error(err))
		}
	}
	a.log.RemoveCollector()
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn("kafka producer close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
	return nil
}

// health reports liveness plus the state of attached infrastructure.
func (a *App) health(c echo.Context) error {
	status := map[string]string{"status": "ok"}
	code := http.StatusOK

	if a.collector != nil && !a.collector.IsConnected() {
		status["stream"] = "disconnected"
		code = http.StatusServiceUnavailable
	}
	if a.chClient != nil {
		if err := a.chClient.Health(c.Request().Context()); err != nil {
			status["clickhouse"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	return c.JSON(code, status)
}
