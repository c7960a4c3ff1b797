package models

import "time"

// MarketTicker is the sentinel ticker used for market-wide events that are
// not tied to a single symbol.
const MarketTicker = "MARKET"

// MarketTick is one normalized trade print from the market data feed.
// Ticks are immutable once created; they exist to update baselines and
// produce findings, and are otherwise retained only in bounded debug buffers.
type MarketTick struct {
	Timestamp time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`
	TradeSize float64   `json:"trade_size,omitempty"` // shares in this print; 0 when the feed does not break out size
	DarkPool  bool      `json:"is_dark_pool,omitempty"`
	Exchange  string    `json:"exchange,omitempty"`
}

// NewsEvent is one scored headline. An empty Ticker means market-wide news.
type NewsEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker,omitempty"`
	Headline  string    `json:"headline"`
	Source    string    `json:"source"`
	Sentiment float64   `json:"sentiment_score,omitempty"` // [-1, 1]; 0 = neutral or unscored
}

// OptionsFlow is one options print.
type OptionsFlow struct {
	Timestamp    time.Time `json:"timestamp"`
	Ticker       string    `json:"ticker"`
	Strike       float64   `json:"strike"`
	Expiration   time.Time `json:"expiration"`
	ContractType string    `json:"contract_type"` // "call" or "put"
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
	Price        float64   `json:"price"`
	IsSweep      bool      `json:"is_sweep,omitempty"`
}

// BaselineSnapshot is a read-only copy of one ticker's rolling statistics.
// The owning baseline hands value copies to classifiers so recomputes never
// race reads.
type BaselineSnapshot struct {
	Ticker          string    `json:"ticker"`
	PriceMean       float64   `json:"price_mean"`
	PriceStd        float64   `json:"price_std"`
	VWAP            float64   `json:"vwap"`
	VolumeMean      float64   `json:"volume_mean"`
	VolumeStd       float64   `json:"volume_std"`
	VolumePerMinute float64   `json:"volume_per_minute"`
	TradeSizeMedian float64   `json:"trade_size_median"`
	TradeSizeMean   float64   `json:"trade_size_mean"`
	TradeSizeStd    float64   `json:"trade_size_std"`
	DarkVolumeRatio float64   `json:"dark_volume_ratio"`
	SampleCount     int       `json:"sample_count"`
	WindowStart     time.Time `json:"window_start"`
	LastUpdated     time.Time `json:"last_updated"`
}

// PriceZScore returns how many standard deviations price sits from the
// rolling mean. Returns 0 when the std is 0 (flat or insufficient history);
// callers must treat 0 as "no signal", not "at the mean".
func (b *BaselineSnapshot) PriceZScore(price float64) float64 {
	if b.PriceStd == 0 {
		return 0
	}
	return (price - b.PriceMean) / b.PriceStd
}

// VolumeZScore returns the z-score of a tick volume against the rolling
// baseline, 0 when the std is 0.
func (b *BaselineSnapshot) VolumeZScore(volume float64) float64 {
	if b.VolumeStd == 0 {
		return 0
	}
	return (volume - b.VolumeMean) / b.VolumeStd
}

// TradeSizeMultiple returns size as a multiple of the rolling median trade
// size, 0 when the median is 0.
func (b *BaselineSnapshot) TradeSizeMultiple(size float64) float64 {
	if b.TradeSizeMedian == 0 {
		return 0
	}
	return size / b.TradeSizeMedian
}
