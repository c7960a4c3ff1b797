package feedback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

func clusterWith(conviction models.ConvictionLevel, types ...models.AnomalyType) *models.ClusterEvent {
	events := make([]models.AnomalyEvent, len(types))
	for i, typ := range types {
		events[i] = models.AnomalyEvent{Timestamp: time.Now(), Ticker: "AAPL", Type: typ, Severity: 0.8}
	}
	return &models.ClusterEvent{
		ID: "c1", Timestamp: time.Now(), Ticker: "AAPL",
		Events: events, Score: 0.85, Conviction: conviction,
	}
}

func TestMetricsZeroWhenEmpty(t *testing.T) {
	e := NewEngine(Config{})
	m := e.Metrics()
	assert.Equal(t, 0.0, m.Accuracy)
	assert.Equal(t, 0.0, m.Precision)
	assert.Equal(t, 0.0, m.Recall)
}

func TestHighConvictionJudgedOn5mMove(t *testing.T) {
	e := NewEngine(Config{})

	rec := e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 0.7})
	assert.True(t, rec.WasCorrect)
	assert.False(t, rec.FalsePositive)

	// Same conviction, flat 5m move: false positive even if 15m moved.
	rec = e.Record(clusterWith(models.ConvictionCritical, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 0.1, Move15m: 2.0})
	assert.False(t, rec.WasCorrect)
	assert.True(t, rec.FalsePositive)
}

func TestLowConvictionJudgedOn15mMove(t *testing.T) {
	e := NewEngine(Config{})

	// An unalerted cluster that turned out right is labeled a false negative.
	rec := e.Record(clusterWith(models.ConvictionMedium, models.AnomalyBlockTrade), models.RealizedMove{Move15m: -1.5})
	assert.True(t, rec.WasCorrect)
	assert.True(t, rec.FalseNegative)
	assert.False(t, rec.FalsePositive)

	rec = e.Record(clusterWith(models.ConvictionLow, models.AnomalyBlockTrade), models.RealizedMove{Move15m: 0.2})
	assert.False(t, rec.WasCorrect)
	assert.False(t, rec.FalseNegative)
}

func TestRunningMetrics(t *testing.T) {
	e := NewEngine(Config{})
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 1.0})  // correct
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 0.0})  // FP
	e.Record(clusterWith(models.ConvictionLow, models.AnomalyBlockTrade), models.RealizedMove{Move15m: 2.0})    // correct, FN
	e.Record(clusterWith(models.ConvictionLow, models.AnomalyBlockTrade), models.RealizedMove{Move15m: 0.0})    // incorrect

	m := e.Metrics()
	assert.Equal(t, 4, m.Total)
	assert.InDelta(t, 0.5, m.Accuracy, 1e-9)       // 2/4
	assert.InDelta(t, 2.0/3.0, m.Precision, 1e-9)  // 2/(2+1)
	assert.InDelta(t, 2.0/3.0, m.Recall, 1e-9)     // 2/(2+1)
}

func TestShouldRecalibrateNeedsMinSamples(t *testing.T) {
	e := NewEngine(Config{MinSamples: 50})
	// 10 records, all wrong: accuracy 0 but sample floor not met.
	for i := 0; i < 10; i++ {
		e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{})
	}
	assert.False(t, e.ShouldRecalibrate())
}

func TestShouldRecalibrateOnLowAccuracy(t *testing.T) {
	e := NewEngine(Config{MinSamples: 10})
	for i := 0; i < 10; i++ {
		e.Record(clusterWith(models.ConvictionLow, models.AnomalyBlockTrade), models.RealizedMove{})
	}
	assert.True(t, e.ShouldRecalibrate())
}

func TestShouldRecalibrateFalseWhenHealthy(t *testing.T) {
	e := NewEngine(Config{MinSamples: 10})
	for i := 0; i < 10; i++ {
		e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 1.0})
	}
	assert.False(t, e.ShouldRecalibrate())
}

func TestRecalibrationDataIncreasesNoisyType(t *testing.T) {
	e := NewEngine(Config{MinSamples: 5})
	for i := 0; i < 8; i++ {
		e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 0.0})
	}
	adjs := e.RecalibrationData(time.Now())
	require.Len(t, adjs, 1)
	assert.Equal(t, models.AnomalyOptionsSweep, adjs[0].Type)
	assert.Equal(t, models.AdjustIncrease, adjs[0].Action)
	assert.Greater(t, adjs[0].Factor, 1.0)
}

func TestRecalibrationDataDecreasesReliableType(t *testing.T) {
	e := NewEngine(Config{MinSamples: 5})
	for i := 0; i < 8; i++ {
		e.Record(clusterWith(models.ConvictionHigh, models.AnomalyNewsMagnet), models.RealizedMove{Move5m: 1.5})
	}
	adjs := e.RecalibrationData(time.Now())
	require.Len(t, adjs, 1)
	assert.Equal(t, models.AdjustDecrease, adjs[0].Action)
	assert.Less(t, adjs[0].Factor, 1.0)
}

func TestRecalibrationDataSkipsThinTypes(t *testing.T) {
	e := NewEngine(Config{})
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyDarkVolumeSpike), models.RealizedMove{})
	assert.Empty(t, e.RecalibrationData(time.Now()))
}

func TestHistoryEvictionAdjustsTotals(t *testing.T) {
	e := NewEngine(Config{History: 2})
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{Move5m: 1.0})
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{})
	e.Record(clusterWith(models.ConvictionHigh, models.AnomalyOptionsSweep), models.RealizedMove{})
	m := e.Metrics()
	assert.Equal(t, 2, m.Total)
	assert.Equal(t, 0, m.Correct)
}
