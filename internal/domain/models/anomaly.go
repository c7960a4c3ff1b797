package models

import "time"

// AnomalyType identifies which detector produced a finding.
type AnomalyType string

const (
	AnomalyBlockTrade       AnomalyType = "block_trade"
	AnomalyDarkVolumeSpike  AnomalyType = "dark_volume_spike"
	AnomalyOptionsSweep     AnomalyType = "options_sweep"
	AnomalyOptionsOISpike   AnomalyType = "options_oi_spike"
	AnomalyPriceSpike       AnomalyType = "price_spike"
	AnomalyVolumeSpike      AnomalyType = "volume_spike"
	AnomalyPriceVolumeSpike AnomalyType = "price_volume_spike"
	AnomalyNewsMagnet       AnomalyType = "news_magnet"
)

// AnomalyEvent is a single classifier finding. Immutable once created;
// retained in bounded recent-history buffers for clustering.
type AnomalyEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	Ticker    string                 `json:"ticker"`
	Type      AnomalyType            `json:"anomaly_type"`
	Severity  float64                `json:"severity"` // [0,1], monotonic in threshold excess
	Details   map[string]interface{} `json:"details,omitempty"`
	// ClusterScore is 0 on a fresh finding; the cluster engine stamps the
	// composite score onto constituent copies when a cluster forms.
	ClusterScore float64 `json:"conviction_score"`
}

// ConvictionLevel is the four-valued ordinal confidence of a cluster.
type ConvictionLevel string

const (
	ConvictionLow      ConvictionLevel = "low"
	ConvictionMedium   ConvictionLevel = "medium"
	ConvictionHigh     ConvictionLevel = "high"
	ConvictionCritical ConvictionLevel = "critical"
)

// Alerted reports whether this conviction level crosses the alert boundary.
// Only high and critical clusters are forwarded to alert sinks.
func (c ConvictionLevel) Alerted() bool {
	return c == ConvictionHigh || c == ConvictionCritical
}

// Rank orders conviction levels for filtering (low=0 .. critical=3).
func (c ConvictionLevel) Rank() int {
	switch c {
	case ConvictionCritical:
		return 3
	case ConvictionHigh:
		return 2
	case ConvictionMedium:
		return 1
	default:
		return 0
	}
}

// ClusterEvent is a composite signal fused from 1..N anomalies that occurred
// close together in time for the same ticker. Write-once.
type ClusterEvent struct {
	ID         string                 `json:"id"`
	Timestamp  time.Time              `json:"timestamp"`
	Ticker     string                 `json:"ticker"`
	Events     []AnomalyEvent         `json:"events"`
	Score      float64                `json:"cluster_score"` // [0,1]
	Conviction ConvictionLevel        `json:"conviction_level"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// RealizedMove holds percent price moves observed after a cluster fired.
type RealizedMove struct {
	Move1m  float64 `json:"move_1m"`
	Move5m  float64 `json:"move_5m"`
	Move15m float64 `json:"move_15m"`
}

// FeedbackRecord judges one ClusterEvent against the realized move.
// Append-only; the only entity that retroactively closes the loop.
type FeedbackRecord struct {
	Timestamp     time.Time    `json:"timestamp"`
	Ticker        string       `json:"ticker"`
	Cluster       ClusterEvent `json:"cluster"`
	Move          RealizedMove `json:"realized_move"`
	WasCorrect    bool         `json:"was_correct"`
	FalsePositive bool         `json:"false_positive"`
	FalseNegative bool         `json:"false_negative"`
}

// PerformanceMetrics are running totals over the feedback history.
// All ratios are 0 (never NaN) when their denominator is 0.
type PerformanceMetrics struct {
	Total          int     `json:"total"`
	Correct        int     `json:"correct"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Accuracy       float64 `json:"accuracy"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
}

// Threshold adjustment actions recommended by the feedback engine.
const (
	AdjustIncrease = "increase_threshold"
	AdjustDecrease = "decrease_threshold"
)

// ThresholdAdjustment is a per-anomaly-type recalibration recommendation.
// The orchestrator applies the factor onto the owning classifier; the
// feedback engine never mutates classifier state itself.
type ThresholdAdjustment struct {
	Type     AnomalyType `json:"anomaly_type"`
	Action   string      `json:"action"` // AdjustIncrease or AdjustDecrease
	Factor   float64     `json:"factor"`
	Accuracy float64     `json:"accuracy"`
	FPRate   float64     `json:"false_positive_rate"`
	Samples  int         `json:"samples"`
}
