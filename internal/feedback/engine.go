// Package feedback closes the loop between emitted cluster events and
// realized market moves, and recommends per-anomaly-type threshold
// recalibration. It is a pure function of its recorded history: it never
// mutates classifier state.
package feedback

import (
	"math"
	"sync"
	"time"

	"FlowSentry/internal/domain/models"
	"FlowSentry/pkg/ringbuf"
)

// Config holds the feedback and recalibration parameters.
type Config struct {
	// Move thresholds (percent) by judgment horizon. High/critical clusters
	// are judged on the 5-minute move, low/medium on the 15-minute move.
	MoveThreshold1m  float64 // default 0.3
	MoveThreshold5m  float64 // default 0.5
	MoveThreshold15m float64 // default 1.0

	MinSamples             int           // recalibration floor (default 50)
	RecalibrationThreshold float64       // accuracy must stay above 1-this (default 0.4)
	Window                 time.Duration // trailing window for per-type grouping (default 7d)
	MaxFalsePositiveRate   float64       // default 0.30

	IncreaseFactor float64 // applied when a type underperforms (default 1.15)
	DecreaseFactor float64 // applied when a type is reliably correct (default 0.9)

	History int // feedback ring capacity (default 1000)
}

func (c *Config) normalize() {
	if c.MoveThreshold1m <= 0 {
		c.MoveThreshold1m = 0.3
	}
	if c.MoveThreshold5m <= 0 {
		c.MoveThreshold5m = 0.5
	}
	if c.MoveThreshold15m <= 0 {
		c.MoveThreshold15m = 1.0
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 50
	}
	if c.RecalibrationThreshold <= 0 {
		c.RecalibrationThreshold = 0.4
	}
	if c.Window <= 0 {
		c.Window = 7 * 24 * time.Hour
	}
	if c.MaxFalsePositiveRate <= 0 {
		c.MaxFalsePositiveRate = 0.30
	}
	if c.IncreaseFactor <= 1 {
		c.IncreaseFactor = 1.15
	}
	if c.DecreaseFactor <= 0 || c.DecreaseFactor >= 1 {
		c.DecreaseFactor = 0.9
	}
	if c.History <= 0 {
		c.History = 1000
	}
}

// minTypeSamples is the floor below which a per-type group yields no
// recommendation.
const minTypeSamples = 5

// Engine scores past predictions against realized moves. Safe for
// concurrent use: outcomes arrive from the API while workers read metrics.
type Engine struct {
	mu      sync.RWMutex
	cfg     Config
	records *ringbuf.Ring[models.FeedbackRecord]

	total          int
	correct        int
	falsePositives int
	falseNegatives int
}

// NewEngine creates a feedback engine.
func NewEngine(cfg Config) *Engine {
	cfg.normalize()
	return &Engine{cfg: cfg, records: ringbuf.New[models.FeedbackRecord](cfg.History)}
}

// Record judges a cluster against its realized move and appends the result.
//
// High/critical clusters are held to the tighter 5-minute threshold; lower
// conviction clusters to the 15-minute one. An alerted cluster judged wrong
// is a false positive; an unalerted cluster judged right is a false
// negative. The labeling is asymmetric by design parity with historical
// behavior, not because it is normatively correct.
func (e *Engine) Record(cluster *models.ClusterEvent, move models.RealizedMove) models.FeedbackRecord {
	alerted := cluster.Conviction.Alerted()
	var correct bool
	if alerted {
		correct = math.Abs(move.Move5m) >= e.cfg.MoveThreshold5m
	} else {
		correct = math.Abs(move.Move15m) >= e.cfg.MoveThreshold15m
	}

	rec := models.FeedbackRecord{
		Timestamp:     time.Now(),
		Ticker:        cluster.Ticker,
		Cluster:       *cluster,
		Move:          move,
		WasCorrect:    correct,
		FalsePositive: alerted && !correct,
		FalseNegative: !alerted && correct,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if old, evicted := e.records.Push(rec); evicted {
		e.subtract(old)
	}
	e.total++
	if rec.WasCorrect {
		e.correct++
	}
	if rec.FalsePositive {
		e.falsePositives++
	}
	if rec.FalseNegative {
		e.falseNegatives++
	}
	return rec
}

func (e *Engine) subtract(old models.FeedbackRecord) {
	e.total--
	if old.WasCorrect {
		e.correct--
	}
	if old.FalsePositive {
		e.falsePositives--
	}
	if old.FalseNegative {
		e.falseNegatives--
	}
}

// Metrics returns running accuracy/precision/recall. Every ratio is 0 when
// its denominator is 0.
func (e *Engine) Metrics() models.PerformanceMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m := models.PerformanceMetrics{
		Total:          e.total,
		Correct:        e.correct,
		FalsePositives: e.falsePositives,
		FalseNegatives: e.falseNegatives,
	}
	m.Accuracy = ratio(e.correct, e.total)
	m.Precision = ratio(e.correct, e.correct+e.falsePositives)
	m.Recall = ratio(e.correct, e.correct+e.falseNegatives)
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// ShouldRecalibrate reports whether enough history has accumulated AND
// performance has degraded (accuracy below the floor or the false-positive
// rate above the cap).
func (e *Engine) ShouldRecalibrate() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.total < e.cfg.MinSamples {
		return false
	}
	accuracy := ratio(e.correct, e.total)
	fpRate := ratio(e.falsePositives, e.total)
	return accuracy < 1-e.cfg.RecalibrationThreshold || fpRate > e.cfg.MaxFalsePositiveRate
}

// RecalibrationData groups the trailing window by constituent anomaly type
// and recommends a threshold factor per type: increase when a type is
// inaccurate or noisy, decrease when it is reliably correct. Types with too
// few samples yield nothing; an empty result is never an error.
func (e *Engine) RecalibrationData(now time.Time) []models.ThresholdAdjustment {
	e.mu.RLock()
	defer e.mu.RUnlock()

	type bucket struct {
		samples int
		correct int
		fps     int
	}
	cutoff := now.Add(-e.cfg.Window)
	buckets := map[models.AnomalyType]*bucket{}
	order := []models.AnomalyType{}

	e.records.Do(func(rec models.FeedbackRecord) bool {
		if rec.Timestamp.Before(cutoff) {
			return true
		}
		seen := map[models.AnomalyType]struct{}{}
		for _, ev := range rec.Cluster.Events {
			if _, dup := seen[ev.Type]; dup {
				continue
			}
			seen[ev.Type] = struct{}{}
			b := buckets[ev.Type]
			if b == nil {
				b = &bucket{}
				buckets[ev.Type] = b
				order = append(order, ev.Type)
			}
			b.samples++
			if rec.WasCorrect {
				b.correct++
			}
			if rec.FalsePositive {
				b.fps++
			}
		}
		return true
	})

	var out []models.ThresholdAdjustment
	accuracyFloor := 1 - e.cfg.RecalibrationThreshold
	for _, typ := range order {
		b := buckets[typ]
		if b.samples < minTypeSamples {
			continue
		}
		accuracy := ratio(b.correct, b.samples)
		fpRate := ratio(b.fps, b.samples)
		adj := models.ThresholdAdjustment{
			Type:     typ,
			Accuracy: accuracy,
			FPRate:   fpRate,
			Samples:  b.samples,
		}
		switch {
		case accuracy < accuracyFloor || fpRate > e.cfg.MaxFalsePositiveRate:
			adj.Action = models.AdjustIncrease
			adj.Factor = e.cfg.IncreaseFactor
		case accuracy > 0.8 && fpRate < 0.1:
			adj.Action = models.AdjustDecrease
			adj.Factor = e.cfg.DecreaseFactor
		default:
			continue
		}
		out = append(out, adj)
	}
	return out
}

// Recent returns the newest n feedback records, oldest first.
func (e *Engine) Recent(n int) []models.FeedbackRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.records.Last(n)
}
