package repository

import (
	"context"
	"time"

	"FlowSentry/internal/domain/models"
)

// MarketStream is a live tick feed (websocket or similar).
type MarketStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.MarketTick, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// AlertSink delivers high-conviction cluster events to an external
// collaborator. Implementations may be slow; the detector only calls sinks
// from its async dispatch queue, never from the tick path.
type AlertSink interface {
	Name() string
	Deliver(ctx context.Context, ev *models.ClusterEvent) error
	Close() error
}

// ClusterStore persists the append-only cluster and feedback history.
type ClusterStore interface {
	Init(ctx context.Context) error
	StoreCluster(ctx context.Context, ev *models.ClusterEvent) error
	StoreFeedback(ctx context.Context, rec *models.FeedbackRecord) error
	QueryClusters(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.ClusterEvent, error)
	Health(ctx context.Context) error
	Close() error
}

// TickArchive stores raw ticks for debugging and rehydration. Writes happen
// in batches off the detection path.
type TickArchive interface {
	StoreBatch(ctx context.Context, ticks []*models.MarketTick) error
	Query(ctx context.Context, ticker string, from, to time.Time, limit int) ([]*models.MarketTick, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics is the instrumentation boundary for the detection pipeline.
type Metrics interface {
	RecordEvent(kind, ticker string) // kind: tick|news|options
	RecordAnomaly(anomalyType, ticker string)
	RecordCluster(conviction string)
	RecordAlert(sink string)
	RecordError(kind string)
	RecordLastPrice(ticker string, price float64)
	RecordLatency(op string, seconds float64)
}
