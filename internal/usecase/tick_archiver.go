package usecase

import (
	"context"
	"sync"
	"time"

	"FlowSentry/internal/domain/models"
	drepo "FlowSentry/internal/domain/repository"
)

// TickArchiver buffers raw ticks and flushes them to the archive in batches,
// on size or on timeout, whichever comes first. Archiving is best-effort and
// never blocks the detection path.
type TickArchiver struct {
	archive drepo.TickArchive
	metrics drepo.Metrics
	batchSz int
	batchTO time.Duration

	mu     sync.Mutex
	buf    []*models.MarketTick
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewTickArchiver creates a new TickArchiver instance.
func NewTickArchiver(archive drepo.TickArchive, metrics drepo.Metrics, batchSz int, batchTO time.Duration) *TickArchiver {
	if batchSz <= 0 {
		batchSz = 500
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	return &TickArchiver{
		archive: archive,
		metrics: metrics,
		batchSz: batchSz,
		batchTO: batchTO,
		buf:     make([]*models.MarketTick, 0, batchSz),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start launches the timeout flusher.
func (a *TickArchiver) Start(ctx context.Context) {
	go func() {
		defer close(a.doneCh)
		ticker := time.NewTicker(a.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopCh:
				a.flush(context.Background())
				return
			case <-ctx.Done():
				a.flush(context.Background())
				return
			case <-ticker.C:
				a.flush(ctx)
			}
		}
	}()
}

// Add buffers one tick; a full buffer triggers an inline flush.
func (a *TickArchiver) Add(t *models.MarketTick) {
	if t == nil {
		return
	}
	a.mu.Lock()
	a.buf = append(a.buf, t)
	full := len(a.buf) >= a.batchSz
	a.mu.Unlock()
	if full {
		a.flush(context.Background())
	}
}

func (a *TickArchiver) flush(ctx context.Context) {
	a.mu.Lock()
	if len(a.buf) == 0 {
		a.mu.Unlock()
		return
	}
	batch := a.buf
	a.buf = make([]*models.MarketTick, 0, a.batchSz)
	a.mu.Unlock()

	start := time.Now()
	if err := a.archive.StoreBatch(ctx, batch); err != nil {
		a.metrics.RecordError("archive_flush")
		return
	}
	a.metrics.RecordLatency("archive_flush", time.Since(start).Seconds())
}

// Stop flushes remaining ticks and stops the flusher.
func (a *TickArchiver) Stop() {
	a.once.Do(func() { close(a.stopCh) })
	<-a.doneCh
}
