package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

func anomaly(ts time.Time, typ models.AnomalyType, sev float64) models.AnomalyEvent {
	return models.AnomalyEvent{Timestamp: ts, Ticker: "AAPL", Type: typ, Severity: sev}
}

func TestNoClusterBelowMinEvents(t *testing.T) {
	e := NewEngine(Config{})
	now := time.Now()
	got := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now, models.AnomalyBlockTrade, 0.9),
	})
	assert.Nil(t, got)
}

func TestStaleFindingsExcluded(t *testing.T) {
	e := NewEngine(Config{Window: 5 * time.Minute, MinEvents: 2})
	now := time.Now()
	got := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now.Add(-10*time.Minute), models.AnomalyBlockTrade, 0.9),
		anomaly(now, models.AnomalyOptionsSweep, 0.9),
	})
	assert.Nil(t, got, "only one finding inside the window")
}

func TestClusterFormsWithinWindow(t *testing.T) {
	e := NewEngine(Config{})
	now := time.Now()
	got := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now.Add(-2*time.Minute), models.AnomalyPriceVolumeSpike, 0.5),
		anomaly(now, models.AnomalyOptionsSweep, 1.0),
	})
	require.NotNil(t, got)
	assert.Equal(t, "AAPL", got.Ticker)
	assert.Len(t, got.Events, 2)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, 2, got.Details["distinct_types"])
	assert.GreaterOrEqual(t, got.Score, 0.0)
	assert.LessOrEqual(t, got.Score, 1.0)
	// Two distinct high-weight types plus the diversity bonus clear the high bar.
	assert.True(t, got.Conviction.Alerted(), "conviction %s should alert", got.Conviction)
	for _, ev := range got.Events {
		assert.Equal(t, got.Score, ev.ClusterScore)
	}
}

func TestConvictionMappingMonotonic(t *testing.T) {
	e := NewEngine(Config{})
	cases := []struct {
		score float64
		want  models.ConvictionLevel
	}{
		{0.95, models.ConvictionCritical},
		{0.85, models.ConvictionHigh},
		{0.7, models.ConvictionMedium},
		{0.2, models.ConvictionLow},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, e.Conviction(tc.score), "score %v", tc.score)
	}
}

func TestDiversityBonusRaisesScore(t *testing.T) {
	e := NewEngine(Config{})
	now := time.Now()

	same := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now, models.AnomalyBlockTrade, 0.5),
		anomaly(now, models.AnomalyBlockTrade, 0.5),
	})
	mixed := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now, models.AnomalyBlockTrade, 0.5),
		anomaly(now, models.AnomalyDarkVolumeSpike, 0.5),
	})
	require.NotNil(t, same)
	require.NotNil(t, mixed)
	assert.Greater(t, mixed.Score, same.Score)
}

func TestUnknownTypeGetsUnitWeight(t *testing.T) {
	e := NewEngine(Config{TypeWeights: map[models.AnomalyType]float64{models.AnomalyBlockTrade: 1.0}})
	now := time.Now()
	got := e.Cluster(now, "AAPL", []models.AnomalyEvent{
		anomaly(now, "some_future_type", 0.5),
		anomaly(now, models.AnomalyBlockTrade, 0.5),
	})
	require.NotNil(t, got)
	// mean(0.5, 0.5) + 0.2 diversity, no strength bonus
	assert.InDelta(t, 0.7, got.Score, 1e-9)
}
