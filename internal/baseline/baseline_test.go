package baseline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

func tick(ts time.Time, price, volume, size float64, dark bool) *models.MarketTick {
	return &models.MarketTick{
		Timestamp: ts,
		Ticker:    "TEST",
		Price:     price,
		Volume:    volume,
		TradeSize: size,
		DarkPool:  dark,
	}
}

func TestZScoresZeroWhenStdZero(t *testing.T) {
	b := New("TEST", Config{Window: 30 * time.Minute, UpdateInterval: time.Nanosecond})
	now := time.Now()
	// Constant price and volume: std is 0 for both.
	for i := 0; i < 10; i++ {
		b.Update(tick(now.Add(time.Duration(i)*time.Second), 100, 5000, 0, false))
	}
	snap := b.Snapshot()
	assert.Equal(t, 0.0, snap.PriceZScore(150))
	assert.Equal(t, 0.0, snap.VolumeZScore(50000))
	assert.Equal(t, 0.0, snap.TradeSizeMultiple(1000)) // no trade sizes seen
}

func TestWindowStatistics(t *testing.T) {
	b := New("TEST", Config{Window: 30 * time.Minute, UpdateInterval: time.Nanosecond})
	now := time.Now()
	b.Update(tick(now, 100, 100, 500, false))
	b.Update(tick(now.Add(time.Second), 102, 300, 1500, true))

	snap := b.Snapshot()
	assert.InDelta(t, 101, snap.PriceMean, 1e-9)
	// VWAP = (100*100 + 102*300) / 400
	assert.InDelta(t, 101.5, snap.VWAP, 1e-9)
	assert.InDelta(t, 0.75, snap.DarkVolumeRatio, 1e-9)
	assert.InDelta(t, 1000, snap.TradeSizeMedian, 1e-9)
	assert.Equal(t, 2, snap.SampleCount)
}

func TestRecomputeThrottled(t *testing.T) {
	b := New("TEST", Config{Window: 30 * time.Minute, UpdateInterval: time.Minute})
	now := time.Now()
	b.Update(tick(now, 100, 100, 0, false)) // first tick always recomputes
	first := b.Snapshot()
	require.Equal(t, 1, first.SampleCount)

	// 30s later: within the update interval, stats stay frozen.
	b.Update(tick(now.Add(30*time.Second), 200, 900, 0, false))
	assert.Equal(t, 1, b.Snapshot().SampleCount)

	// Past the interval: the pending samples land.
	b.Update(tick(now.Add(61*time.Second), 110, 300, 0, false))
	assert.Equal(t, 3, b.Snapshot().SampleCount)
}

func TestOldSamplesLeaveWindow(t *testing.T) {
	b := New("TEST", Config{Window: 10 * time.Minute, UpdateInterval: time.Nanosecond})
	now := time.Now()
	b.Update(tick(now.Add(-20*time.Minute), 50, 100, 0, false))
	b.Update(tick(now, 100, 100, 0, false))
	snap := b.Snapshot()
	assert.Equal(t, 1, snap.SampleCount)
	assert.InDelta(t, 100, snap.PriceMean, 1e-9)
}

func TestRecomputeIdempotent(t *testing.T) {
	b := New("TEST", Config{Window: 30 * time.Minute, UpdateInterval: time.Nanosecond})
	now := time.Now()
	for i := 0; i < 20; i++ {
		b.Update(tick(now.Add(time.Duration(i)*time.Second), 100+float64(i%3), 1000+float64(i*10), 400, i%4 == 0))
	}
	at := now.Add(time.Minute)
	b.Recompute(at)
	first := b.Snapshot()
	b.Recompute(at)
	second := b.Snapshot()
	assert.Equal(t, first, second)
}

func TestEmptyInputKeepsPreviousValue(t *testing.T) {
	b := New("TEST", Config{Window: time.Minute, UpdateInterval: time.Nanosecond})
	now := time.Now()
	b.Update(tick(now, 100, 500, 800, false))
	require.InDelta(t, 100, b.Snapshot().PriceMean, 1e-9)

	// Recompute far in the future: the window is empty, stats persist.
	b.Recompute(now.Add(time.Hour))
	snap := b.Snapshot()
	assert.InDelta(t, 100, snap.PriceMean, 1e-9)
	assert.InDelta(t, 800, snap.TradeSizeMedian, 1e-9)
	assert.Equal(t, 0, snap.SampleCount)
}
