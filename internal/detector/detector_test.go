package detector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/baseline"
	"FlowSentry/internal/classifier"
	"FlowSentry/internal/cluster"
	"FlowSentry/internal/domain/models"
	domrepo "FlowSentry/internal/domain/repository"
	domsvc "FlowSentry/internal/domain/service"
	"FlowSentry/internal/feedback"
	applogger "FlowSentry/pkg/logger"
	"FlowSentry/pkg/ringbuf"
)

type fakeMetrics struct {
	mu     sync.Mutex
	events int
	alerts int
	errors map[string]int
}

func (m *fakeMetrics) RecordEvent(kind, ticker string) {
	m.mu.Lock()
	m.events++
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordAnomaly(anomalyType, ticker string) {}
func (m *fakeMetrics) RecordCluster(conviction string) {}
func (m *fakeMetrics) RecordAlert(sink string) {
	m.mu.Lock()
	m.alerts++
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordError(kind string) {
	m.mu.Lock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *fakeMetrics) RecordLastPrice(ticker string, price float64) {}
func (m *fakeMetrics) RecordLatency(op string, seconds float64) {}

var _ domrepo.Metrics = (*fakeMetrics)(nil)

type captureSink struct {
	mu       sync.Mutex
	clusters []*models.ClusterEvent
}

func (s *captureSink) Name() string { return "capture" }
func (s *captureSink) Deliver(ctx context.Context, ev *models.ClusterEvent) error {
	s.mu.Lock()
	s.clusters = append(s.clusters, ev)
	s.mu.Unlock()
	return nil
}
func (s *captureSink) Close() error { return nil }

func (s *captureSink) delivered() []*models.ClusterEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.ClusterEvent(nil), s.clusters...)
}

type memStore struct {
	mu       sync.Mutex
	clusters []*models.ClusterEvent
	feedback []*models.FeedbackRecord
}

func (s *memStore) Init(ctx context.Context) error { return nil }
func (s *memStore) StoreCluster(ctx context.Context, ev *models.ClusterEvent) error {
	s.mu.Lock()
	s.clusters = append(s.clusters, ev)
	s.mu.Unlock()
	return nil
}
func (s *memStore) StoreFeedback(ctx context.Context, rec *models.FeedbackRecord) error {
	s.mu.Lock()
	s.feedback = append(s.feedback, rec)
	s.mu.Unlock()
	return nil
}
func (s *memStore) QueryClusters(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.ClusterEvent, error) {
	return nil, nil
}
func (s *memStore) Health(ctx context.Context) error { return nil }
func (s *memStore) Close() error                     { return nil }

func (s *memStore) stored() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clusters), len(s.feedback)
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func newTestDetector(t *testing.T, cfg Config, sink *captureSink, store domrepo.ClusterStore, fbCfg feedback.Config) (*Detector, *fakeMetrics) {
	t.Helper()
	metrics := &fakeMetrics{}
	var sinks []domrepo.AlertSink
	if sink != nil {
		sinks = append(sinks, sink)
	}
	d := New(
		cfg,
		testLogger(t),
		metrics,
		cluster.NewEngine(cluster.Config{}),
		feedback.NewEngine(fbCfg),
		[]domsvc.TickClassifier{
			classifier.NewBlockTrade(0, 0),
			classifier.NewDarkVolume(0),
			classifier.NewPriceVolume(0, 0, false),
		},
		[]domsvc.NewsClassifier{classifier.NewNewsMagnet(0)},
		[]domsvc.OptionsClassifier{classifier.NewOptionsFlow(0, 0)},
		sinks,
		store,
	)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })
	return d, metrics
}

// syncWorker registers a worker without a goroutine so tests can drive the
// per-ticker stages synchronously.
func syncWorker(d *Detector, ticker string) *worker {
	w := &worker{
		ticker:   ticker,
		baseline: baseline.New(ticker, d.cfg.Baseline),
		recent:   ringbuf.New[models.AnomalyEvent](d.cfg.RecentAnomalies),
		in:       make(chan event, d.cfg.WorkerQueue),
	}
	d.mu.Lock()
	d.workers[ticker] = w
	d.mu.Unlock()
	return w
}

func seedTick(i int, base time.Time) *models.MarketTick {
	// Alternating values around 100 / 10000 give tight non-zero stddevs.
	price := 99.9
	volume := 9900.0
	if i%2 == 1 {
		price = 100.1
		volume = 10100.0
	}
	return &models.MarketTick{
		Timestamp: base.Add(time.Duration(i) * 10 * time.Second),
		Ticker:    "AAPL",
		Price:     price,
		Volume:    volume,
		TradeSize: 100,
	}
}

func TestSweepScenarioFormsSingleHighConvictionCluster(t *testing.T) {
	sink := &captureSink{}
	store := &memStore{}
	d, _ := newTestDetector(t, Config{}, sink, store, feedback.Config{})
	w := syncWorker(d, "AAPL")

	base := time.Now().Add(-10 * time.Minute)
	for i := 0; i < 20; i++ {
		d.process(w, event{tick: seedTick(i, base)})
	}
	require.Empty(t, d.RecentAnomalies("AAPL", 0), "calm tape must stay silent")

	// Price and volume both break out, but the print is too small for a block.
	spikeAt := base.Add(200 * time.Second)
	d.process(w, event{tick: &models.MarketTick{
		Timestamp: spikeAt,
		Ticker:    "AAPL",
		Price:     106,
		Volume:    30000,
		TradeSize: 200,
	}})

	anomalies := d.RecentAnomalies("AAPL", 0)
	require.Len(t, anomalies, 1)
	assert.Equal(t, models.AnomalyPriceVolumeSpike, anomalies[0].Type)
	assert.Empty(t, d.RecentClusters("AAPL", models.ConvictionLow, 0), "one finding is not a cluster")

	// The sweep 30s later completes the cluster.
	d.process(w, event{opt: &models.OptionsFlow{
		Timestamp:    spikeAt.Add(30 * time.Second),
		Ticker:       "AAPL",
		ContractType: "call",
		Volume:       5000,
		OpenInterest: 20000,
		IsSweep:      true,
	}})

	clusters := d.RecentClusters("AAPL", models.ConvictionLow, 0)
	require.Len(t, clusters, 1)
	got := clusters[0]
	assert.Equal(t, "AAPL", got.Ticker)
	require.Len(t, got.Events, 2)
	assert.GreaterOrEqual(t, got.Conviction.Rank(), models.ConvictionHigh.Rank())

	types := map[models.AnomalyType]bool{}
	for _, ev := range got.Events {
		types[ev.Type] = true
	}
	assert.True(t, types[models.AnomalyPriceVolumeSpike])
	assert.True(t, types[models.AnomalyOptionsSweep])

	require.NoError(t, d.Shutdown(context.Background()))
	require.Len(t, sink.delivered(), 1, "alerted cluster must reach the sink")
	assert.Equal(t, got.ID, sink.delivered()[0].ID)
	storedClusters, _ := store.stored()
	assert.Equal(t, 1, storedClusters)
}

func TestLowConvictionClustersArePersistedNotAlerted(t *testing.T) {
	sink := &captureSink{}
	store := &memStore{}
	d, _ := newTestDetector(t, Config{}, sink, store, feedback.Config{})

	d.onCluster(&models.ClusterEvent{
		ID:         "medium-1",
		Timestamp:  time.Now(),
		Ticker:     "AAPL",
		Conviction: models.ConvictionMedium,
		Score:      0.65,
	})

	require.NoError(t, d.Shutdown(context.Background()))
	assert.Empty(t, sink.delivered())
	storedClusters, _ := store.stored()
	assert.Equal(t, 1, storedClusters)
}

func TestRecordOutcomeUnknownCluster(t *testing.T) {
	d, _ := newTestDetector(t, Config{}, nil, nil, feedback.Config{})
	_, err := d.RecordOutcome(context.Background(), "nope", models.RealizedMove{})
	assert.ErrorIs(t, err, ErrUnknownCluster)
}

func TestRecordOutcomePersistsFeedback(t *testing.T) {
	store := &memStore{}
	d, _ := newTestDetector(t, Config{}, nil, store, feedback.Config{})

	d.onCluster(&models.ClusterEvent{
		ID:         "c-1",
		Timestamp:  time.Now(),
		Ticker:     "AAPL",
		Conviction: models.ConvictionHigh,
		Events:     []models.AnomalyEvent{{Type: models.AnomalyOptionsSweep, Severity: 0.9}},
	})

	rec, err := d.RecordOutcome(context.Background(), "c-1", models.RealizedMove{Move5m: 0.8})
	require.NoError(t, err)
	assert.True(t, rec.WasCorrect)

	require.NoError(t, d.Shutdown(context.Background()))
	_, storedFeedback := store.stored()
	assert.Equal(t, 1, storedFeedback)
	assert.Equal(t, 1, d.Performance().Total)
}

func TestOutcomeFeedbackRecalibratesOwningClassifier(t *testing.T) {
	opts := classifier.NewOptionsFlow(1000, 0)
	metrics := &fakeMetrics{}
	d := New(
		Config{},
		testLogger(t),
		metrics,
		cluster.NewEngine(cluster.Config{}),
		feedback.NewEngine(feedback.Config{MinSamples: 5}),
		nil, nil,
		[]domsvc.OptionsClassifier{opts},
		nil, nil,
	)
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	// A 1100-contract print clears the 1000 threshold before recalibration.
	before, err := opts.DetectOptions(&models.OptionsFlow{Ticker: "AAPL", Volume: 1100}, &models.BaselineSnapshot{})
	require.NoError(t, err)
	require.NotNil(t, before)

	d.onCluster(&models.ClusterEvent{
		ID:         "noisy",
		Timestamp:  time.Now(),
		Ticker:     "AAPL",
		Conviction: models.ConvictionHigh,
		Events:     []models.AnomalyEvent{{Timestamp: time.Now(), Ticker: "AAPL", Type: models.AnomalyOptionsSweep, Severity: 0.9}},
	})
	for i := 0; i < 5; i++ {
		_, err := d.RecordOutcome(context.Background(), "noisy", models.RealizedMove{})
		require.NoError(t, err)
	}

	// 0% accuracy across 5 samples raises the sweep threshold by 1.15x.
	after, err := opts.DetectOptions(&models.OptionsFlow{Ticker: "AAPL", Volume: 1100}, &models.BaselineSnapshot{})
	require.NoError(t, err)
	assert.Nil(t, after)
}

func TestHandleTickAfterShutdown(t *testing.T) {
	d, _ := newTestDetector(t, Config{}, nil, nil, feedback.Config{})
	require.NoError(t, d.Shutdown(context.Background()))
	err := d.HandleTick(context.Background(), &models.MarketTick{Ticker: "AAPL", Price: 1, Volume: 1})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestTickerAllowList(t *testing.T) {
	d, metrics := newTestDetector(t, Config{Tickers: []string{"AAPL"}}, nil, nil, feedback.Config{})

	require.NoError(t, d.HandleTick(context.Background(), &models.MarketTick{Timestamp: time.Now(), Ticker: "MSFT", Price: 1, Volume: 1}))
	d.mu.RLock()
	_, created := d.workers["MSFT"]
	d.mu.RUnlock()
	assert.False(t, created, "off-list tickers must not spawn workers")
	assert.Equal(t, 0, metrics.events)

	require.NoError(t, d.HandleTick(context.Background(), &models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 1, Volume: 1}))
	assert.Equal(t, 1, metrics.events)
}

func TestAsyncPipelineDrainsOnShutdown(t *testing.T) {
	d, _ := newTestDetector(t, Config{}, nil, nil, feedback.Config{})

	base := time.Now().Add(-5 * time.Minute)
	for i := 0; i < 20; i++ {
		require.NoError(t, d.HandleTick(context.Background(), seedTick(i, base)))
	}
	require.NoError(t, d.Shutdown(context.Background()))

	snap, ok := d.Baseline("AAPL")
	require.True(t, ok, "queued ticks must be drained before shutdown completes")
	assert.Equal(t, "AAPL", snap.Ticker)
	assert.Greater(t, snap.SampleCount, 0)
}

func TestRecentClustersFiltering(t *testing.T) {
	d, _ := newTestDetector(t, Config{}, nil, nil, feedback.Config{})

	now := time.Now()
	d.onCluster(&models.ClusterEvent{ID: "a", Timestamp: now, Ticker: "AAPL", Conviction: models.ConvictionLow})
	d.onCluster(&models.ClusterEvent{ID: "b", Timestamp: now, Ticker: "AAPL", Conviction: models.ConvictionHigh})
	d.onCluster(&models.ClusterEvent{ID: "c", Timestamp: now, Ticker: "MSFT", Conviction: models.ConvictionCritical})

	all := d.RecentClusters("", models.ConvictionLow, 0)
	assert.Len(t, all, 3)

	high := d.RecentClusters("", models.ConvictionHigh, 0)
	require.Len(t, high, 2)
	assert.Equal(t, "b", high[0].ID)
	assert.Equal(t, "c", high[1].ID)

	aapl := d.RecentClusters("AAPL", models.ConvictionHigh, 0)
	require.Len(t, aapl, 1)
	assert.Equal(t, "b", aapl[0].ID)

	limited := d.RecentClusters("", models.ConvictionLow, 2)
	require.Len(t, limited, 2)
	assert.Equal(t, "b", limited[0].ID)
}

func TestClusterHistoryEviction(t *testing.T) {
	d, _ := newTestDetector(t, Config{Buffers: BufferSizes{Clusters: 2}}, nil, nil, feedback.Config{})

	now := time.Now()
	d.onCluster(&models.ClusterEvent{ID: "a", Timestamp: now, Ticker: "AAPL", Conviction: models.ConvictionLow})
	d.onCluster(&models.ClusterEvent{ID: "b", Timestamp: now, Ticker: "AAPL", Conviction: models.ConvictionLow})
	d.onCluster(&models.ClusterEvent{ID: "c", Timestamp: now, Ticker: "AAPL", Conviction: models.ConvictionLow})

	_, err := d.RecordOutcome(context.Background(), "a", models.RealizedMove{})
	assert.ErrorIs(t, err, ErrUnknownCluster, "evicted clusters must not accept outcomes")

	got := d.RecentClusters("", models.ConvictionLow, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "c", got[1].ID)
}
