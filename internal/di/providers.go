package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"FlowSentry/internal/baseline"
	"FlowSentry/internal/classifier"
	"FlowSentry/internal/cluster"
	"FlowSentry/internal/detector"
	"FlowSentry/internal/domain/models"
	domrepo "FlowSentry/internal/domain/repository"
	domsvc "FlowSentry/internal/domain/service"
	"FlowSentry/internal/feedback"
	"FlowSentry/internal/handler/api"
	mid "FlowSentry/internal/middleware"
	internalrepo "FlowSentry/internal/repository"
	"FlowSentry/internal/service/alert"
	"FlowSentry/internal/service/marketdata"
	"FlowSentry/internal/usecase"
	pkgcache "FlowSentry/pkg/cache"
	pkgch "FlowSentry/pkg/clickhouse"
	"FlowSentry/pkg/config"
	xhttp "FlowSentry/pkg/http"
	pkgkafka "FlowSentry/pkg/kafka"
	applogger "FlowSentry/pkg/logger"
	"FlowSentry/pkg/metrics"
	"FlowSentry/pkg/server"
)

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	lc := &applogger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	}
	if lc.Level == "" {
		lc.Level = "info"
	}
	if lc.Format == "" {
		lc.Format = "json"
	}
	if lc.Output == "" {
		lc.Output = "stdout"
	}
	return applogger.New(lc)
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
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
	return client, nil
}

// ProvideClusterStore creates the persistent cluster store, or nil without
// ClickHouse. The schema is initialized here so every downstream consumer
// sees ready tables.
func ProvideClusterStore(chClient *pkgch.Client) (domrepo.ClusterStore, error) {
	if chClient == nil {
		return nil, nil
	}
	store := internalrepo.NewClickHouseClusterStore(chClient.DB(), "flow_clusters", "flow_feedback")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("cluster store schema: %w", err)
	}
	return store, nil
}

// ProvideTickArchive creates the raw tick archive, or nil when disabled.
func ProvideTickArchive(chClient *pkgch.Client, cfg *config.Config) (domrepo.TickArchive, error) {
	if chClient == nil || !cfg.ClickHouse.Archive.Enabled {
		return nil, nil
	}
	archive := internalrepo.NewClickHouseTickArchive(chClient.DB(), "flow_ticks_raw")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := archive.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("tick archive schema: %w", err)
	}
	return archive, nil
}

// ProvideKafkaProducer creates a Kafka producer, or nil when no brokers are
// configured. The producer serves the kafka alert backend and log shipping.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if len(cfg.Kafka.Brokers) == 0 {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer for kafka ingest, nil
// otherwise.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if cfg.Ingest.Source != "kafka" {
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
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NoopHook{})
	return consumer, nil
}

// ProvideCache creates the response cache: Redis when enabled, an in-process
// memory cache otherwise so the API keeps its short-TTL read caching.
func ProvideCache(cfg *config.Config) (pkgcache.Service, error) {
	if !cfg.Cache.Enabled {
		return pkgcache.NewMemoryCache(), nil
	}
	host, portStr, err := net.SplitHostPort(cfg.Cache.Addr)
	if err != nil {
		return nil, fmt.Errorf("cache addr: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("cache addr port: %w", err)
	}
	redisCache, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Cache.Password),
		pkgcache.WithRedisDB(cfg.Cache.DB),
	)
	if err != nil {
		return nil, err
	}
	return pkgcache.NewLayeredCache(redisCache), nil
}

// Classifiers groups the configured detection stages by input kind.
type Classifiers struct {
	Tick    []domsvc.TickClassifier
	News    []domsvc.NewsClassifier
	Options []domsvc.OptionsClassifier
}

// ProvideClassifiers builds every classifier from config thresholds. Zero
// values fall back to each classifier's defaults.
func ProvideClassifiers(cfg *config.Config) Classifiers {
	cl := cfg.Detection.Classifiers
	return Classifiers{
		Tick: []domsvc.TickClassifier{
			classifier.NewBlockTrade(cl.BlockTradeMultiple, cl.BlockTradeFloor),
			classifier.NewDarkVolume(cl.DarkVolumeRatio),
			classifier.NewPriceVolume(cl.PriceZScore, cl.VolumeZScore, cl.EmitSingleSpikes),
		},
		News: []domsvc.NewsClassifier{
			classifier.NewNewsMagnet(cl.NewsSentimentFloor),
		},
		Options: []domsvc.OptionsClassifier{
			classifier.NewOptionsFlow(cl.OptionsSweepVolume, cl.OptionsOIRatio),
		},
	}
}

// ProvideClusterEngine builds the temporal cluster engine from config.
func ProvideClusterEngine(cfg *config.Config) *cluster.Engine {
	cl := cfg.Detection.Cluster

	var weights map[models.AnomalyType]float64
	if len(cl.TypeWeights) > 0 {
		weights = make(map[models.AnomalyType]float64, len(cl.TypeWeights))
		for typ, w := range cl.TypeWeights {
			weights[models.AnomalyType(typ)] = w
		}
	}

	return cluster.NewEngine(cluster.Config{
		Window:            cl.Window,
		MinEvents:         cl.MinEvents,
		TypeWeights:       weights,
		MediumThreshold:   cl.MediumThreshold,
		HighThreshold:     cl.HighThreshold,
		CriticalThreshold: cl.CriticalThreshold,
	})
}

// ProvideFeedbackEngine builds the outcome feedback engine from config.
func ProvideFeedbackEngine(cfg *config.Config) *feedback.Engine {
	fb := cfg.Detection.Feedback
	return feedback.NewEngine(feedback.Config{
		MoveThreshold1m:        fb.MoveThreshold1m,
		MoveThreshold5m:        fb.MoveThreshold5m,
		MoveThreshold15m:       fb.MoveThreshold15m,
		MinSamples:             fb.MinSamples,
		RecalibrationThreshold: fb.RecalibrationThreshold,
		Window:                 fb.Window,
		MaxFalsePositiveRate:   fb.MaxFalsePositiveRate,
		IncreaseFactor:         fb.IncreaseFactor,
		DecreaseFactor:         fb.DecreaseFactor,
		History:                fb.History,
	})
}

// ProvideAlertSinks builds one sink per configured alerting backend.
func ProvideAlertSinks(cfg *config.Config, log *applogger.Logger, producer *pkgkafka.Producer) []domrepo.AlertSink {
	var sinks []domrepo.AlertSink
	for _, backend := range cfg.Alerting.Backends {
		switch backend {
		case "log":
			sinks = append(sinks, alert.NewLogSink(log))
		case "webhook":
			client := xhttp.NewClient(xhttp.WithTimeout(cfg.Alerting.Timeout))
			sinks = append(sinks, alert.NewWebhookSink(client, cfg.Alerting.WebhookURL))
		case "kafka":
			if producer != nil {
				sinks = append(sinks, internalrepo.NewKafkaAlertSink(producer, cfg.Kafka.Topics.Alerts))
			}
		}
	}
	return sinks
}

// ProvideDetector assembles the detection core.
func ProvideDetector(
	cfg *config.Config,
	log *applogger.Logger,
	m domrepo.Metrics,
	clusterer *cluster.Engine,
	fb *feedback.Engine,
	cs Classifiers,
	sinks []domrepo.AlertSink,
	store domrepo.ClusterStore,
) *detector.Detector {
	det := cfg.Detection
	return detector.New(
		detector.Config{
			Tickers:  det.Tickers,
			Baseline: baselineConfig(cfg),
			Buffers: detector.BufferSizes{
				Ticks:     det.Buffers.Ticks,
				News:      det.Buffers.News,
				Options:   det.Buffers.Options,
				Anomalies: det.Buffers.Anomalies,
				Clusters:  det.Buffers.Clusters,
			},
			RecentAnomalies: det.RecentAnomalies,
			WorkerQueue:     det.WorkerQueue,
			DispatchQueue:   det.DispatchQueue,
			DispatchWorkers: det.DispatchWorkers,
			DrainTimeout:    det.DrainTimeout,
		},
		log, m, clusterer, fb,
		cs.Tick, cs.News, cs.Options,
		sinks, store,
	)
}

// ProvideTickPipeline places the validation/throttle pipeline in front of
// the detector.
func ProvideTickPipeline(det *detector.Detector, m domrepo.Metrics) *mid.TickPipeline {
	return mid.NewTickPipeline(det, m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideTickArchiver creates the batching archiver, or nil without an
// archive backend.
func ProvideTickArchiver(archive domrepo.TickArchive, m domrepo.Metrics, cfg *config.Config) *usecase.TickArchiver {
	if archive == nil {
		return nil
	}
	return usecase.NewTickArchiver(archive, m, cfg.ClickHouse.Archive.BatchSize, cfg.ClickHouse.Archive.BatchTimeout)
}

// ProvideMarketStream creates the WebSocket stream for websocket ingest, nil
// otherwise.
func ProvideMarketStream(cfg *config.Config) domrepo.MarketStream {
	if cfg.Ingest.Source != "websocket" {
		return nil
	}
	return marketdata.New(
		cfg.Stream.APIKey,
		cfg.Stream.WebSocketURL,
		cfg.Detection.Tickers,
		cfg.Stream.ReconnectDelay,
		cfg.Stream.PingInterval,
	)
}

// ProvideEventCollector creates the stream collector for websocket ingest.
func ProvideEventCollector(stream domrepo.MarketStream, pipe *mid.TickPipeline, archiver *usecase.TickArchiver, m domrepo.Metrics) *usecase.EventCollector {
	if stream == nil {
		return nil
	}
	return usecase.NewEventCollector(stream, pipe, archiver, m)
}

// ProvideKafkaHandlers registers one handler per configured event topic.
func ProvideKafkaHandlers(cfg *config.Config, pipe *mid.TickPipeline, archiver *usecase.TickArchiver, det *detector.Detector, m domrepo.Metrics) []pkgkafka.MessageHandler {
	if cfg.Ingest.Source != "kafka" {
		return nil
	}
	var handlers []pkgkafka.MessageHandler
	if t := cfg.Kafka.Topics.Ticks; t != "" {
		handlers = append(handlers, usecase.NewKafkaTicksHandler(t, pipe, archiver, m))
	}
	if t := cfg.Kafka.Topics.News; t != "" {
		handlers = append(handlers, usecase.NewKafkaNewsHandler(t, det, m))
	}
	if t := cfg.Kafka.Topics.Options; t != "" {
		handlers = append(handlers, usecase.NewKafkaOptionsHandler(t, det, m))
	}
	return handlers
}

// ProvideSignalsUseCase serves API reads from the live detector and store.
func ProvideSignalsUseCase(det *detector.Detector, store domrepo.ClusterStore) *usecase.SignalsUseCase {
	return usecase.NewSignalsUseCase(det, store)
}

// ProvideOutcomesUseCase routes realized-move outcomes into the detector.
func ProvideOutcomesUseCase(det *detector.Detector) *usecase.OutcomesUseCase {
	return usecase.NewOutcomesUseCase(det)
}

// ProvideHTTPHandler creates the API handler.
func ProvideHTTPHandler(cfg *config.Config, log *applogger.Logger, signals *usecase.SignalsUseCase, outcomes *usecase.OutcomesUseCase, cacheSvc pkgcache.Service) xhttp.Handler {
	return api.NewEventsEchoHandler(log, signals, outcomes, cacheSvc, cfg.Cache.TTL)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	det *detector.Detector,
	pipe *mid.TickPipeline,
	collector *usecase.EventCollector,
	consumer *pkgkafka.Consumer,
	handlers []pkgkafka.MessageHandler,
	archiver *usecase.TickArchiver,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	sinks []domrepo.AlertSink,
	httpHandler xhttp.Handler,
) *server.App {
	return server.New(cfg, log, det, pipe, collector, consumer, handlers, archiver, chClient, producer, sinks, httpHandler)
}

func baselineConfig(cfg *config.Config) baseline.Config {
	return baseline.Config{
		Window:         cfg.Detection.Baseline.Window,
		UpdateInterval: cfg.Detection.Baseline.UpdateInterval,
		MaxSamples:     cfg.Detection.Baseline.MaxSamples,
	}
}
