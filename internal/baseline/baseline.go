// Package baseline maintains rolling per-ticker summary statistics so
// classifiers never rescan raw tick history.
package baseline

import (
	"time"

	"FlowSentry/internal/domain/models"
	"FlowSentry/pkg/ringbuf"
)

// Config bounds the rolling window and the recompute cadence.
type Config struct {
	Window         time.Duration // statistics window (default 30m)
	UpdateInterval time.Duration // minimum time between full recomputes (default 60s)
	MaxSamples     int           // ring capacity; defaults to one sample per window second
}

func (c *Config) normalize() {
	if c.Window <= 0 {
		c.Window = 30 * time.Minute
	}
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = time.Minute
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = int(c.Window.Seconds())
	}
}

type sample struct {
	ts        time.Time
	price     float64
	volume    float64
	tradeSize float64 // 0 when the feed did not break out size
	dark      bool
}

// RollingBaseline converts a tick stream into decaying summary statistics
// for one ticker. It is exclusively owned by that ticker's detector worker
// and is not safe for concurrent use; consumers get value snapshots.
type RollingBaseline struct {
	ticker        string
	cfg           Config
	samples       *ringbuf.Ring[sample]
	stats         models.BaselineSnapshot
	lastRecompute time.Time
}

// New creates a baseline for ticker.
func New(ticker string, cfg Config) *RollingBaseline {
	cfg.normalize()
	return &RollingBaseline{
		ticker:  ticker,
		cfg:     cfg,
		samples: ringbuf.New[sample](cfg.MaxSamples),
		stats:   models.BaselineSnapshot{Ticker: ticker},
	}
}

// Update appends the tick and, at most once per UpdateInterval, recomputes
// the window statistics. Appends are O(1); the recompute is O(window).
func (b *RollingBaseline) Update(t *models.MarketTick) {
	b.samples.Push(sample{
		ts:        t.Timestamp,
		price:     t.Price,
		volume:    t.Volume,
		tradeSize: t.TradeSize,
		dark:      t.DarkPool,
	})
	if b.lastRecompute.IsZero() || t.Timestamp.Sub(b.lastRecompute) >= b.cfg.UpdateInterval {
		b.Recompute(t.Timestamp)
	}
}

// Snapshot returns a read-only copy of the current statistics.
func (b *RollingBaseline) Snapshot() models.BaselineSnapshot {
	return b.stats
}

// Recompute derives all window statistics as of now. A statistic whose input
// set is empty keeps its previous value; nothing here divides by zero.
// Recomputing twice on an unchanged buffer yields identical statistics.
func (b *RollingBaseline) Recompute(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)

	var (
		prices, volumes, sizes []float64
		sumPV, sumV            float64
		darkVol, totalVol      float64
		perMinute              = map[time.Time]float64{}
	)
	b.samples.Do(func(s sample) bool {
		if s.ts.Before(cutoff) {
			return true
		}
		prices = append(prices, s.price)
		volumes = append(volumes, s.volume)
		if s.tradeSize > 0 {
			sizes = append(sizes, s.tradeSize)
		}
		sumPV += s.price * s.volume
		sumV += s.volume
		totalVol += s.volume
		if s.dark {
			darkVol += s.volume
		}
		perMinute[s.ts.Truncate(time.Minute)] += s.volume
		return true
	})

	next := b.stats
	if len(prices) > 0 {
		next.PriceMean = mean(prices)
		next.PriceStd = std(prices, next.PriceMean)
	}
	if len(volumes) > 0 {
		next.VolumeMean = mean(volumes)
		next.VolumeStd = std(volumes, next.VolumeMean)
	}
	if sumV > 0 {
		next.VWAP = sumPV / sumV
	}
	if len(perMinute) > 0 {
		var total float64
		for _, v := range perMinute {
			total += v
		}
		next.VolumePerMinute = total / float64(len(perMinute))
	}
	if len(sizes) > 0 {
		next.TradeSizeMedian = median(sizes)
		next.TradeSizeMean = mean(sizes)
		next.TradeSizeStd = std(sizes, next.TradeSizeMean)
	}
	if totalVol > 0 {
		next.DarkVolumeRatio = darkVol / totalVol
	}
	next.SampleCount = len(prices)
	next.WindowStart = cutoff
	next.LastUpdated = now

	b.stats = next
	b.lastRecompute = now
}

// Ticker returns the symbol this baseline tracks.
func (b *RollingBaseline) Ticker() string { return b.ticker }
