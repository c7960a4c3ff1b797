package service

import "FlowSentry/internal/domain/models"

// Classifier is the common surface of all anomaly detectors. A classifier is
// stateless across calls except for its own thresholds; threshold reads and
// recalibration writes are safe to interleave (copy-on-write values).
//
// Detect methods return (nil, nil) for "no finding". A non-nil error is a
// soft failure: the orchestrator logs it and treats it as no finding, and it
// never propagates out of the detection path.
type Classifier interface {
	Name() string
	// Emits lists the anomaly types this classifier can produce. The first
	// entry is the primary type used for recalibration mapping.
	Emits() []models.AnomalyType
	// Recalibrate multiplies the classifier's detection threshold(s) by
	// factor. Applied by the orchestrator from feedback recommendations.
	Recalibrate(factor float64)
}

// TickClassifier inspects market ticks against the ticker baseline.
type TickClassifier interface {
	Classifier
	DetectTick(t *models.MarketTick, b *models.BaselineSnapshot) (*models.AnomalyEvent, error)
}

// NewsClassifier inspects scored headlines.
type NewsClassifier interface {
	Classifier
	DetectNews(n *models.NewsEvent) (*models.AnomalyEvent, error)
}

// OptionsClassifier inspects options prints.
type OptionsClassifier interface {
	Classifier
	DetectOptions(o *models.OptionsFlow, b *models.BaselineSnapshot) (*models.AnomalyEvent, error)
}
