package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

type fakeView struct {
	clusters  []models.ClusterEvent
	anomalies []models.AnomalyEvent
	baselines map[string]models.BaselineSnapshot
	perf      models.PerformanceMetrics
}

func (v *fakeView) RecentClusters(ticker string, min models.ConvictionLevel, limit int) []models.ClusterEvent {
	var out []models.ClusterEvent
	for _, ce := range v.clusters {
		if ticker != "" && ce.Ticker != ticker {
			continue
		}
		if ce.Conviction.Rank() < min.Rank() {
			continue
		}
		out = append(out, ce)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (v *fakeView) RecentAnomalies(ticker string, limit int) []models.AnomalyEvent {
	return v.anomalies
}

func (v *fakeView) Baseline(ticker string) (models.BaselineSnapshot, bool) {
	snap, ok := v.baselines[ticker]
	return snap, ok
}

func (v *fakeView) Performance() models.PerformanceMetrics { return v.perf }

func TestGetClustersDefaultsToLiveBuffer(t *testing.T) {
	view := &fakeView{clusters: []models.ClusterEvent{
		{ID: "a", Ticker: "AAPL", Conviction: models.ConvictionLow},
		{ID: "b", Ticker: "AAPL", Conviction: models.ConvictionHigh},
	}}
	uc := NewSignalsUseCase(view, nil)

	got, err := uc.GetClusters(context.Background(), GetClustersParams{Ticker: "AAPL", MinConviction: models.ConvictionHigh})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestGetClustersHistoricalNeedsStore(t *testing.T) {
	uc := NewSignalsUseCase(&fakeView{}, nil)
	_, err := uc.GetClusters(context.Background(), GetClustersParams{From: time.Now().Add(-time.Hour)})
	assert.ErrorContains(t, err, "cluster store")
}

func TestGetBaselineUnknownTicker(t *testing.T) {
	uc := NewSignalsUseCase(&fakeView{baselines: map[string]models.BaselineSnapshot{}}, nil)
	_, err := uc.GetBaseline(context.Background(), "AAPL")
	assert.ErrorContains(t, err, "no baseline")

	_, err = uc.GetBaseline(context.Background(), "")
	assert.ErrorContains(t, err, "ticker required")
}

func TestGetOverviewGathersAllSections(t *testing.T) {
	view := &fakeView{
		clusters:  []models.ClusterEvent{{ID: "a", Ticker: "AAPL", Conviction: models.ConvictionHigh}},
		anomalies: []models.AnomalyEvent{{Ticker: "AAPL", Type: models.AnomalyBlockTrade}},
		baselines: map[string]models.BaselineSnapshot{"AAPL": {Ticker: "AAPL", SampleCount: 42}},
		perf:      models.PerformanceMetrics{Total: 10, Correct: 7},
	}
	uc := NewSignalsUseCase(view, nil)

	ov, err := uc.GetOverview(context.Background(), GetOverviewParams{Ticker: "AAPL"})
	require.NoError(t, err)
	require.NotNil(t, ov.Baseline)
	assert.Equal(t, 42, ov.Baseline.SampleCount)
	assert.Len(t, ov.Clusters, 1)
	assert.Len(t, ov.Anomalies, 1)
	require.NotNil(t, ov.Performance)
	assert.Equal(t, 10, ov.Performance.Total)
	assert.Nil(t, ov.Errors)
}

func TestGetOverviewReportsMissingBaseline(t *testing.T) {
	uc := NewSignalsUseCase(&fakeView{baselines: map[string]models.BaselineSnapshot{}}, nil)
	ov, err := uc.GetOverview(context.Background(), GetOverviewParams{Ticker: "TSLA"})
	require.NoError(t, err)
	assert.Nil(t, ov.Baseline)
	assert.Contains(t, ov.Errors, "baseline")
}

type fakeArchive struct {
	mu      sync.Mutex
	batches [][]*models.MarketTick
}

func (a *fakeArchive) StoreBatch(ctx context.Context, ticks []*models.MarketTick) error {
	a.mu.Lock()
	a.batches = append(a.batches, ticks)
	a.mu.Unlock()
	return nil
}
func (a *fakeArchive) Query(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.MarketTick, error) {
	return nil, nil
}
func (a *fakeArchive) Health(ctx context.Context) error { return nil }
func (a *fakeArchive) Close() error                     { return nil }

func (a *fakeArchive) batchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

type countingMetrics struct{}

func (countingMetrics) RecordEvent(kind, ticker string) {}
func (countingMetrics) RecordAnomaly(anomalyType, ticker string) {}
func (countingMetrics) RecordCluster(conviction string) {}
func (countingMetrics) RecordAlert(sink string) {}
func (countingMetrics) RecordError(kind string) {}
func (countingMetrics) RecordLastPrice(ticker string, p float64) {}
func (countingMetrics) RecordLatency(op string, seconds float64) {}

func TestArchiverFlushesOnBatchSize(t *testing.T) {
	archive := &fakeArchive{}
	a := NewTickArchiver(archive, countingMetrics{}, 3, time.Hour)

	for i := 0; i < 3; i++ {
		a.Add(&models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 1, Volume: 1})
	}
	require.Equal(t, 1, archive.batchCount())
	assert.Len(t, archive.batches[0], 3)
}

func TestArchiverFlushesOnStop(t *testing.T) {
	archive := &fakeArchive{}
	a := NewTickArchiver(archive, countingMetrics{}, 100, time.Hour)
	a.Start(context.Background())

	a.Add(&models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 1, Volume: 1})
	a.Stop()
	assert.Equal(t, 1, archive.batchCount())
}
