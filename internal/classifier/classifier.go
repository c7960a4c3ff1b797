// Package classifier holds the five anomaly detectors. Each compares one
// incoming event against the ticker baseline and yields at most one finding
// with a severity in [0,1] that grows with how far the observation exceeds
// its threshold.
package classifier

import (
	"math"
	"sync/atomic"
	"time"

	"FlowSentry/internal/domain/models"
)

// threshold is a float64 readable concurrently with recalibration writes.
// Classification reads a published value; Recalibrate publishes a new one,
// so per-ticker workers never observe a torn update.
type threshold struct {
	bits atomic.Uint64
}

func (t *threshold) store(v float64) { t.bits.Store(math.Float64bits(v)) }
func (t *threshold) load() float64   { return math.Float64frombits(t.bits.Load()) }
func (t *threshold) scale(f float64) { t.store(t.load() * f) }

// severity maps threshold excess into [0,1]: 0 at the threshold, 1 at twice
// the threshold and beyond.
func severity(value, limit float64) float64 {
	if limit <= 0 {
		return 0
	}
	return clamp01(value/limit - 1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func finding(ts time.Time, ticker string, typ models.AnomalyType, sev float64, details map[string]interface{}) *models.AnomalyEvent {
	return &models.AnomalyEvent{
		Timestamp: ts,
		Ticker:    ticker,
		Type:      typ,
		Severity:  clamp01(sev),
		Details:   details,
	}
}
