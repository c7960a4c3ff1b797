package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

func snap(ticker string) *models.BaselineSnapshot {
	return &models.BaselineSnapshot{
		Ticker:          ticker,
		PriceMean:       100,
		PriceStd:        2,
		VolumeMean:      10000,
		VolumeStd:       5000,
		TradeSizeMedian: 2000,
		DarkVolumeRatio: 0.1,
	}
}

func TestBlockTradeFiresOnLargePrint(t *testing.T) {
	c := NewBlockTrade(5, 10000)
	b := snap("AAPL")

	// 10x the median and above the absolute floor.
	ev, err := c.DetectTick(&models.MarketTick{
		Timestamp: time.Now(), Ticker: "AAPL", Price: 100, Volume: 20000, TradeSize: 20000,
	}, b)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyBlockTrade, ev.Type)
	assert.Greater(t, ev.Severity, 0.0)
	assert.LessOrEqual(t, ev.Severity, 1.0)
}

func TestBlockTradeRespectsFloor(t *testing.T) {
	c := NewBlockTrade(5, 10000)
	b := snap("PENNY")
	b.TradeSizeMedian = 100

	// 50x the median but far below the floor: illiquid-name guard.
	ev, err := c.DetectTick(&models.MarketTick{
		Timestamp: time.Now(), Ticker: "PENNY", TradeSize: 5000,
	}, b)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestBlockTradeIgnoresZeroMedian(t *testing.T) {
	c := NewBlockTrade(5, 10000)
	b := snap("NEW")
	b.TradeSizeMedian = 0
	ev, err := c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "NEW", TradeSize: 50000}, b)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDarkVolumeFiresAboveRatio(t *testing.T) {
	c := NewDarkVolume(0.4)
	b := snap("XYZ")
	b.DarkVolumeRatio = 0.6

	ev, err := c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "XYZ", Volume: 100, DarkPool: true}, b)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyDarkVolumeSpike, ev.Type)

	// Same ratio on a lit print does not fire.
	ev, err = c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "XYZ", Volume: 100}, b)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestPriceVolumeRequiresBoth(t *testing.T) {
	c := NewPriceVolume(2, 2, false)
	b := snap("AAPL")

	// Price z=3, volume z=0.2: no finding without EmitSingle.
	ev, err := c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 106, Volume: 11000}, b)
	require.NoError(t, err)
	assert.Nil(t, ev)

	// Both z=3 and z=4: composite spike.
	ev, err = c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 106, Volume: 30000}, b)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyPriceVolumeSpike, ev.Type)
	assert.Greater(t, ev.Severity, 0.0)
}

func TestPriceVolumeSingleMetricEmission(t *testing.T) {
	c := NewPriceVolume(2, 2, true)
	b := snap("AAPL")
	ev, err := c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: 106, Volume: 10000}, b)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyPriceSpike, ev.Type)
}

func TestPriceVolumeTreatsZeroStdAsNoSignal(t *testing.T) {
	c := NewPriceVolume(2, 2, true)
	b := &models.BaselineSnapshot{Ticker: "FLAT"}
	ev, err := c.DetectTick(&models.MarketTick{Timestamp: time.Now(), Ticker: "FLAT", Price: 500, Volume: 1e9}, b)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestOptionsSweep(t *testing.T) {
	c := NewOptionsFlow(1000, 0.5)

	// Feed-flagged sweep with small volume still fires with floor severity.
	ev, err := c.DetectOptions(&models.OptionsFlow{Timestamp: time.Now(), Ticker: "TSLA", Volume: 50, IsSweep: true}, nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyOptionsSweep, ev.Type)
	assert.GreaterOrEqual(t, ev.Severity, 0.5)

	// Outsized volume without the flag also counts as a sweep.
	ev, err = c.DetectOptions(&models.OptionsFlow{Timestamp: time.Now(), Ticker: "TSLA", Volume: 5000}, nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyOptionsSweep, ev.Type)
}

func TestOptionsOISpike(t *testing.T) {
	c := NewOptionsFlow(1000, 0.5)
	ev, err := c.DetectOptions(&models.OptionsFlow{Timestamp: time.Now(), Ticker: "TSLA", Volume: 600, OpenInterest: 800}, nil)
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyOptionsOISpike, ev.Type)
}

func TestNewsMagnet(t *testing.T) {
	c := NewNewsMagnet(0.5)

	ev, err := c.DetectNews(&models.NewsEvent{Timestamp: time.Now(), Ticker: "NVDA", Headline: "guidance raised", Sentiment: 0.8})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.AnomalyNewsMagnet, ev.Type)
	assert.Equal(t, "NVDA", ev.Ticker)

	// Market-wide news maps to the sentinel ticker; negative sentiment counts.
	ev, err = c.DetectNews(&models.NewsEvent{Timestamp: time.Now(), Headline: "rates shock", Sentiment: -0.9})
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.Equal(t, models.MarketTicker, ev.Ticker)

	ev, err = c.DetectNews(&models.NewsEvent{Timestamp: time.Now(), Ticker: "NVDA", Sentiment: 0.2})
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestRecalibrateScalesThreshold(t *testing.T) {
	c := NewBlockTrade(5, 10000)
	b := snap("AAPL")
	tickAt6x := &models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", TradeSize: 12000} // 6x median

	ev, err := c.DetectTick(tickAt6x, b)
	require.NoError(t, err)
	require.NotNil(t, ev)

	// Raising the multiple to 7.5x silences the same print.
	c.Recalibrate(1.5)
	ev, err = c.DetectTick(tickAt6x, b)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestSeverityClamped(t *testing.T) {
	assert.Equal(t, 0.0, severity(10, 0))
	assert.Equal(t, 0.0, severity(1, 2))
	assert.Equal(t, 1.0, severity(100, 2))
	assert.InDelta(t, 0.5, severity(3, 2), 1e-9)
}
