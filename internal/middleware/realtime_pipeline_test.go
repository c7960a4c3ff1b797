package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/domain/models"
)

type recordingProc struct {
	mu    sync.Mutex
	ticks []*models.MarketTick
	fail  bool
}

func (p *recordingProc) HandleTick(ctx context.Context, t *models.MarketTick) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("downstream down")
	}
	p.ticks = append(p.ticks, t)
	return nil
}

func (p *recordingProc) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ticks)
}

type nopMetrics struct {
	mu     sync.Mutex
	errors map[string]int
}

func (m *nopMetrics) RecordEvent(kind, ticker string) {}
func (m *nopMetrics) RecordAnomaly(anomalyType, ticker string) {}
func (m *nopMetrics) RecordCluster(conviction string) {}
func (m *nopMetrics) RecordAlert(sink string) {}
func (m *nopMetrics) RecordError(kind string) {
	m.mu.Lock()
	if m.errors == nil {
		m.errors = map[string]int{}
	}
	m.errors[kind]++
	m.mu.Unlock()
}
func (m *nopMetrics) RecordLastPrice(ticker string, price float64) {}
func (m *nopMetrics) RecordLatency(op string, seconds float64) {}

func (m *nopMetrics) errCount(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[kind]
}

func tick(ticker string) *models.MarketTick {
	return &models.MarketTick{Timestamp: time.Now(), Ticker: ticker, Price: 100, Volume: 500}
}

func TestPipelineForwardsValidTicks(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, &nopMetrics{})

	require.NoError(t, p.HandleTick(context.Background(), tick("AAPL")))
	assert.Equal(t, 1, proc.count())
}

func TestPipelineRejectsInvalidTicks(t *testing.T) {
	proc := &recordingProc{}
	metrics := &nopMetrics{}
	p := NewTickPipeline(proc, metrics)

	assert.Error(t, p.HandleTick(context.Background(), nil))
	assert.Error(t, p.HandleTick(context.Background(), &models.MarketTick{Timestamp: time.Now(), Price: 1}))
	assert.Error(t, p.HandleTick(context.Background(), &models.MarketTick{Timestamp: time.Now(), Ticker: "AAPL", Price: -1}))
	assert.Equal(t, 0, proc.count())
	assert.Equal(t, 3, metrics.errCount("pipeline_validate"))
}

func TestPipelineThrottlesPerTicker(t *testing.T) {
	proc := &recordingProc{}
	metrics := &nopMetrics{}
	p := NewTickPipeline(proc, metrics, WithMaxRPS(1))

	// Burst capacity is 2x the rate; the third immediate tick is dropped.
	require.NoError(t, p.HandleTick(context.Background(), tick("AAPL")))
	require.NoError(t, p.HandleTick(context.Background(), tick("AAPL")))
	require.NoError(t, p.HandleTick(context.Background(), tick("AAPL")))
	assert.Equal(t, 2, proc.count())
	assert.Equal(t, 1, metrics.errCount("pipeline_throttle"))

	// Independent tickers are not affected.
	require.NoError(t, p.HandleTick(context.Background(), tick("TSLA")))
	assert.Equal(t, 3, proc.count())
}

func TestPipelineBuffersOnDownstreamError(t *testing.T) {
	proc := &recordingProc{fail: true}
	metrics := &nopMetrics{}
	p := NewTickPipeline(proc, metrics, WithBufferSize(4))

	assert.Error(t, p.HandleTick(context.Background(), tick("AAPL")))
	assert.Equal(t, 1, len(p.bufCh))

	// Flusher replays the buffered tick once downstream recovers.
	proc.mu.Lock()
	proc.fail = false
	proc.mu.Unlock()

	p.Start(context.Background())
	defer p.Stop()

	require.Eventually(t, func() bool { return proc.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestPipelineTransformHook(t *testing.T) {
	proc := &recordingProc{}
	p := NewTickPipeline(proc, &nopMetrics{}, WithTransform(func(t *models.MarketTick) *models.MarketTick {
		t.Exchange = "NORM"
		return t
	}))

	require.NoError(t, p.HandleTick(context.Background(), tick("AAPL")))
	require.Equal(t, 1, proc.count())
	assert.Equal(t, "NORM", proc.ticks[0].Exchange)
}
