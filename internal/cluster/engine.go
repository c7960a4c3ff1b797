// Package cluster fuses anomaly findings that land close together in time
// for one ticker into composite, conviction-scored events.
package cluster

import (
	"time"

	"github.com/google/uuid"

	"FlowSentry/internal/domain/models"
)

// Config holds the clustering parameters. Conviction thresholds come from
// configuration (never hardcoded) because feedback recalibration shifts the
// surrounding classifier thresholds over time.
type Config struct {
	Window      time.Duration // how far back findings may join a cluster (default 5m)
	MinEvents   int           // minimum findings before a cluster forms (default 2)
	TypeWeights map[models.AnomalyType]float64

	MediumThreshold   float64 // default 0.6
	HighThreshold     float64 // default 0.8
	CriticalThreshold float64 // default 0.9
}

func (c *Config) normalize() {
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.MinEvents <= 0 {
		c.MinEvents = 2
	}
	if len(c.TypeWeights) == 0 {
		c.TypeWeights = DefaultTypeWeights()
	}
	if c.MediumThreshold <= 0 {
		c.MediumThreshold = 0.6
	}
	if c.HighThreshold <= 0 {
		c.HighThreshold = 0.8
	}
	if c.CriticalThreshold <= 0 {
		c.CriticalThreshold = 0.9
	}
}

// DefaultTypeWeights returns the per-anomaly-type weight table. Urgent flow
// and news carry more weight than a bare volume spike.
func DefaultTypeWeights() map[models.AnomalyType]float64 {
	return map[models.AnomalyType]float64{
		models.AnomalyBlockTrade:       1.0,
		models.AnomalyDarkVolumeSpike:  1.1,
		models.AnomalyOptionsSweep:     1.2,
		models.AnomalyOptionsOISpike:   1.0,
		models.AnomalyPriceSpike:       0.8,
		models.AnomalyVolumeSpike:      0.7,
		models.AnomalyPriceVolumeSpike: 1.1,
		models.AnomalyNewsMagnet:       1.3,
	}
}

// Engine is stateless across calls: callers pass the ticker's recent-finding
// history in, so one engine serves all tickers.
type Engine struct {
	cfg Config
}

// NewEngine creates a cluster engine.
func NewEngine(cfg Config) *Engine {
	cfg.normalize()
	return &Engine{cfg: cfg}
}

// Window returns the configured clustering window.
func (e *Engine) Window() time.Duration { return e.cfg.Window }

// Cluster evaluates the ticker's recent findings as of now. It returns nil
// when fewer than MinEvents findings fall inside the window; otherwise a
// ClusterEvent carrying every constituent finding for auditability.
func (e *Engine) Cluster(now time.Time, ticker string, recent []models.AnomalyEvent) *models.ClusterEvent {
	cutoff := now.Add(-e.cfg.Window)
	var window []models.AnomalyEvent
	for _, ev := range recent {
		if !ev.Timestamp.Before(cutoff) && !ev.Timestamp.After(now) {
			window = append(window, ev)
		}
	}
	if len(window) < e.cfg.MinEvents {
		return nil
	}

	score, distinct, maxSev, meanSev := e.score(window)
	conviction := e.Conviction(score)

	events := make([]models.AnomalyEvent, len(window))
	copy(events, window)
	for i := range events {
		events[i].ClusterScore = score
	}

	return &models.ClusterEvent{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Ticker:     ticker,
		Events:     events,
		Score:      score,
		Conviction: conviction,
		Details: map[string]interface{}{
			"event_count":    len(events),
			"window_minutes": e.cfg.Window.Minutes(),
			"distinct_types": distinct,
			"mean_severity":  meanSev,
			"max_severity":   maxSev,
		},
	}
}

// score computes the weighted mean severity plus diversity and severity
// bonuses, clamped to [0,1].
func (e *Engine) score(events []models.AnomalyEvent) (score float64, distinct int, maxSev, meanSev float64) {
	types := map[models.AnomalyType]struct{}{}
	var weighted, sevSum float64
	var strong int
	for _, ev := range events {
		w, ok := e.cfg.TypeWeights[ev.Type]
		if !ok {
			w = 1.0
		}
		weighted += ev.Severity * w
		sevSum += ev.Severity
		if ev.Severity > maxSev {
			maxSev = ev.Severity
		}
		if ev.Severity > 0.7 {
			strong++
		}
		types[ev.Type] = struct{}{}
	}
	n := float64(len(events))
	score = weighted / n
	meanSev = sevSum / n
	distinct = len(types)

	diversity := 0.1 * float64(distinct)
	if diversity > 0.3 {
		diversity = 0.3
	}
	strength := 0.05 * float64(strong)
	if strength > 0.2 {
		strength = 0.2
	}
	score += diversity + strength
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score, distinct, maxSev, meanSev
}

// Conviction maps a cluster score to its ordinal level. Thresholds are
// validated as strictly ordered at config load.
func (e *Engine) Conviction(score float64) models.ConvictionLevel {
	switch {
	case score >= e.cfg.CriticalThreshold:
		return models.ConvictionCritical
	case score >= e.cfg.HighThreshold:
		return models.ConvictionHigh
	case score >= e.cfg.MediumThreshold:
		return models.ConvictionMedium
	default:
		return models.ConvictionLow
	}
}
