// Package detector wires baselines, classifiers, clustering, and feedback
// into the per-ticker detection pipeline.
package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"FlowSentry/internal/baseline"
	"FlowSentry/internal/cluster"
	"FlowSentry/internal/domain/models"
	domrepo "FlowSentry/internal/domain/repository"
	domsvc "FlowSentry/internal/domain/service"
	"FlowSentry/internal/feedback"
	applogger "FlowSentry/pkg/logger"
	"FlowSentry/pkg/ringbuf"
)

var (
	// ErrUnknownCluster is returned when an outcome references a cluster
	// that has aged out of the bounded history or never existed.
	ErrUnknownCluster = errors.New("unknown cluster id")
	// ErrShuttingDown is returned for events that arrive after shutdown began.
	ErrShuttingDown = errors.New("detector shutting down")
)

// BufferSizes bounds the global event history rings. The detector is the
// only place buffer-size policy is enforced.
type BufferSizes struct {
	Ticks     int // default 10000
	News      int // default 1000
	Options   int // default 5000
	Anomalies int // default 1000
	Clusters  int // default 500
}

func (b *BufferSizes) normalize() {
	if b.Ticks <= 0 {
		b.Ticks = 10000
	}
	if b.News <= 0 {
		b.News = 1000
	}
	if b.Options <= 0 {
		b.Options = 5000
	}
	if b.Anomalies <= 0 {
		b.Anomalies = 1000
	}
	if b.Clusters <= 0 {
		b.Clusters = 500
	}
}

// Config holds orchestrator parameters.
type Config struct {
	Tickers         []string // allow-list; empty accepts every ticker
	Baseline        baseline.Config
	Buffers         BufferSizes
	RecentAnomalies int           // per-ticker clustering history (default 100)
	WorkerQueue     int           // per-ticker inbox size (default 1024)
	DispatchQueue   int           // async alert/persist queue size (default 256)
	DispatchWorkers int           // default 2
	DispatchTimeout time.Duration // per delivery/persist call (default 5s)
	DrainTimeout    time.Duration // graceful shutdown drain (default 5s)
}

func (c *Config) normalize() {
	c.Buffers.normalize()
	if c.RecentAnomalies <= 0 {
		c.RecentAnomalies = 100
	}
	if c.WorkerQueue <= 0 {
		c.WorkerQueue = 1024
	}
	if c.DispatchQueue <= 0 {
		c.DispatchQueue = 256
	}
	if c.DispatchWorkers <= 0 {
		c.DispatchWorkers = 2
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = 5 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 5 * time.Second
	}
}

// event is one unit of per-ticker work; exactly one field is set.
type event struct {
	tick *models.MarketTick
	news *models.NewsEvent
	opt  *models.OptionsFlow
}

// dispatchItem is handed to the async dispatch pool so slow sinks and
// storage never stall tick processing.
type dispatchItem struct {
	cluster  *models.ClusterEvent
	feedback *models.FeedbackRecord
	alert    bool
}

// Detector routes events to per-ticker workers, fans findings through the
// cluster engine, forwards high-conviction clusters to alert sinks, and
// applies feedback recalibration back onto classifiers.
type Detector struct {
	cfg     Config
	log     *applogger.Logger
	metrics domrepo.Metrics

	tickClassifiers    []domsvc.TickClassifier
	newsClassifiers    []domsvc.NewsClassifier
	optionsClassifiers []domsvc.OptionsClassifier
	byType             map[models.AnomalyType]domsvc.Classifier

	clusterer *cluster.Engine
	feedback  *feedback.Engine

	sinks []domrepo.AlertSink
	store domrepo.ClusterStore // optional

	allowed map[string]struct{} // nil = accept all

	mu        sync.RWMutex
	workers   map[string]*worker
	ticks     *ringbuf.Ring[models.MarketTick]
	news      *ringbuf.Ring[models.NewsEvent]
	options   *ringbuf.Ring[models.OptionsFlow]
	anomalies *ringbuf.Ring[models.AnomalyEvent]
	clusters  *ringbuf.Ring[string] // cluster IDs in arrival order, for eviction
	byID      map[string]*models.ClusterEvent
	baselines map[string]models.BaselineSnapshot

	dispatchCh chan dispatchItem
	workerWG   sync.WaitGroup
	dispatchWG sync.WaitGroup
	closed     atomic.Bool
}

// worker owns one ticker's mutable state. Stages run sequentially inside
// the worker goroutine; tickers run in parallel with no shared mutable
// state beyond the detector's guarded rings.
type worker struct {
	ticker   string
	baseline *baseline.RollingBaseline
	recent   *ringbuf.Ring[models.AnomalyEvent]
	in       chan event
}

// New creates a detector. sinks and store may be empty/nil in tests.
func New(
	cfg Config,
	log *applogger.Logger,
	metrics domrepo.Metrics,
	clusterer *cluster.Engine,
	fb *feedback.Engine,
	tickCs []domsvc.TickClassifier,
	newsCs []domsvc.NewsClassifier,
	optionsCs []domsvc.OptionsClassifier,
	sinks []domrepo.AlertSink,
	store domrepo.ClusterStore,
) *Detector {
	cfg.normalize()

	byType := map[models.AnomalyType]domsvc.Classifier{}
	register := func(c domsvc.Classifier) {
		for _, typ := range c.Emits() {
			if _, taken := byType[typ]; !taken {
				byType[typ] = c
			}
		}
	}
	for _, c := range tickCs {
		register(c)
	}
	for _, c := range newsCs {
		register(c)
	}
	for _, c := range optionsCs {
		register(c)
	}

	var allowed map[string]struct{}
	if len(cfg.Tickers) > 0 {
		allowed = make(map[string]struct{}, len(cfg.Tickers)+1)
		for _, t := range cfg.Tickers {
			allowed[t] = struct{}{}
		}
		allowed[models.MarketTicker] = struct{}{}
	}

	d := &Detector{
		cfg:                cfg,
		log:                log,
		metrics:            metrics,
		tickClassifiers:    tickCs,
		newsClassifiers:    newsCs,
		optionsClassifiers: optionsCs,
		byType:             byType,
		clusterer:          clusterer,
		feedback:           fb,
		sinks:              sinks,
		store:              store,
		allowed:            allowed,
		workers:            map[string]*worker{},
		ticks:              ringbuf.New[models.MarketTick](cfg.Buffers.Ticks),
		news:               ringbuf.New[models.NewsEvent](cfg.Buffers.News),
		options:            ringbuf.New[models.OptionsFlow](cfg.Buffers.Options),
		anomalies:          ringbuf.New[models.AnomalyEvent](cfg.Buffers.Anomalies),
		clusters:           ringbuf.New[string](cfg.Buffers.Clusters),
		byID:               map[string]*models.ClusterEvent{},
		baselines:          map[string]models.BaselineSnapshot{},
		dispatchCh:         make(chan dispatchItem, cfg.DispatchQueue),
	}
	for i := 0; i < cfg.DispatchWorkers; i++ {
		d.dispatchWG.Add(1)
		go d.dispatchLoop()
	}
	return d
}

// HandleTick routes one tick into its ticker worker. Never blocks: when the
// worker inbox is full the tick is dropped and counted.
func (d *Detector) HandleTick(ctx context.Context, t *models.MarketTick) error {
	if d.closed.Load() {
		return ErrShuttingDown
	}
	if !d.accepts(t.Ticker) {
		return nil
	}
	d.metrics.RecordEvent("tick", t.Ticker)
	d.metrics.RecordLastPrice(t.Ticker, t.Price)

	d.mu.Lock()
	d.ticks.Push(*t)
	w := d.workerLocked(t.Ticker)
	d.mu.Unlock()

	return d.send(w, event{tick: t})
}

// HandleNews routes one headline. Market-wide news goes to the MARKET worker.
func (d *Detector) HandleNews(ctx context.Context, n *models.NewsEvent) error {
	if d.closed.Load() {
		return ErrShuttingDown
	}
	ticker := n.Ticker
	if ticker == "" {
		ticker = models.MarketTicker
	}
	if !d.accepts(ticker) {
		return nil
	}
	d.metrics.RecordEvent("news", ticker)

	d.mu.Lock()
	d.news.Push(*n)
	w := d.workerLocked(ticker)
	d.mu.Unlock()

	return d.send(w, event{news: n})
}

// HandleOptions routes one options print.
func (d *Detector) HandleOptions(ctx context.Context, o *models.OptionsFlow) error {
	if d.closed.Load() {
		return ErrShuttingDown
	}
	if !d.accepts(o.Ticker) {
		return nil
	}
	d.metrics.RecordEvent("options", o.Ticker)

	d.mu.Lock()
	d.options.Push(*o)
	w := d.workerLocked(o.Ticker)
	d.mu.Unlock()

	return d.send(w, event{opt: o})
}

func (d *Detector) accepts(ticker string) bool {
	if ticker == "" {
		return false
	}
	if d.allowed == nil {
		return true
	}
	_, ok := d.allowed[ticker]
	return ok
}

func (d *Detector) send(w *worker, ev event) error {
	select {
	case w.in <- ev:
		return nil
	default:
		// Bounded inbox full: dropping is preferable to stalling ingestion.
		d.metrics.RecordError("worker_backpressure")
		return fmt.Errorf("worker %s inbox full", w.ticker)
	}
}

// workerLocked returns the ticker's worker, creating it on first use.
// Caller holds d.mu.
func (d *Detector) workerLocked(ticker string) *worker {
	if w, ok := d.workers[ticker]; ok {
		return w
	}
	w := &worker{
		ticker:   ticker,
		baseline: baseline.New(ticker, d.cfg.Baseline),
		recent:   ringbuf.New[models.AnomalyEvent](d.cfg.RecentAnomalies),
		in:       make(chan event, d.cfg.WorkerQueue),
	}
	d.workers[ticker] = w
	d.workerWG.Add(1)
	go d.run(w)
	return w
}

func (d *Detector) run(w *worker) {
	defer d.workerWG.Done()
	for ev := range w.in {
		d.process(w, ev)
	}
}

func (d *Detector) process(w *worker, ev event) {
	start := time.Now()
	switch {
	case ev.tick != nil:
		d.processTick(w, ev.tick)
	case ev.news != nil:
		d.processNews(w, ev.news)
	case ev.opt != nil:
		d.processOptions(w, ev.opt)
	}
	d.metrics.RecordLatency("detect", time.Since(start).Seconds())
}

func (d *Detector) processTick(w *worker, t *models.MarketTick) {
	w.baseline.Update(t)
	snap := w.baseline.Snapshot()
	d.publishBaseline(w.ticker, snap)
	for _, c := range d.tickClassifiers {
		if f := d.safeDetect(c.Name(), func() (*models.AnomalyEvent, error) {
			return c.DetectTick(t, &snap)
		}); f != nil {
			d.onFinding(w, f)
		}
	}
}

func (d *Detector) processNews(w *worker, n *models.NewsEvent) {
	for _, c := range d.newsClassifiers {
		if f := d.safeDetect(c.Name(), func() (*models.AnomalyEvent, error) {
			return c.DetectNews(n)
		}); f != nil {
			d.onFinding(w, f)
		}
	}
}

func (d *Detector) processOptions(w *worker, o *models.OptionsFlow) {
	snap := w.baseline.Snapshot()
	for _, c := range d.optionsClassifiers {
		if f := d.safeDetect(c.Name(), func() (*models.AnomalyEvent, error) {
			return c.DetectOptions(o, &snap)
		}); f != nil {
			d.onFinding(w, f)
		}
	}
}

// safeDetect runs one classifier and converts any error or panic into a
// logged soft failure. One misbehaving classifier never halts the rest.
func (d *Detector) safeDetect(name string, detect func() (*models.AnomalyEvent, error)) (f *models.AnomalyEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.RecordError("classifier_panic")
			d.log.Error("classifier panicked", applogger.String("classifier", name), applogger.Any("panic", r))
			f = nil
		}
	}()
	f, err := detect()
	if err != nil {
		d.metrics.RecordError("classifier_" + name)
		d.log.Warn("classifier soft failure", applogger.String("classifier", name), applogger.Error(err))
		return nil
	}
	return f
}

func (d *Detector) onFinding(w *worker, f *models.AnomalyEvent) {
	d.metrics.RecordAnomaly(string(f.Type), f.Ticker)
	w.recent.Push(*f)

	d.mu.Lock()
	d.anomalies.Push(*f)
	d.mu.Unlock()

	ce := d.clusterer.Cluster(f.Timestamp, w.ticker, w.recent.Items())
	if ce == nil {
		return
	}
	d.onCluster(ce)
}

func (d *Detector) onCluster(ce *models.ClusterEvent) {
	d.metrics.RecordCluster(string(ce.Conviction))

	d.mu.Lock()
	if evictedID, evicted := d.clusters.Push(ce.ID); evicted {
		delete(d.byID, evictedID)
	}
	d.byID[ce.ID] = ce
	d.mu.Unlock()

	d.log.Info("cluster formed",
		applogger.String("ticker", ce.Ticker),
		applogger.String("conviction", string(ce.Conviction)),
		applogger.Any("score", ce.Score),
		applogger.Int("events", len(ce.Events)))

	// low/medium clusters are recorded but never alerted; this bounds alert
	// volume while preserving full history for feedback.
	d.enqueue(dispatchItem{cluster: ce, alert: ce.Conviction.Alerted()})
}

func (d *Detector) enqueue(item dispatchItem) {
	select {
	case d.dispatchCh <- item:
	default:
		d.metrics.RecordError("dispatch_queue_full")
	}
}

func (d *Detector) dispatchLoop() {
	defer d.dispatchWG.Done()
	for item := range d.dispatchCh {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DispatchTimeout)
		if item.cluster != nil {
			if item.alert {
				for _, sink := range d.sinks {
					if err := sink.Deliver(ctx, item.cluster); err != nil {
						d.metrics.RecordError("alert_" + sink.Name())
						d.log.Warn("alert delivery failed", applogger.String("sink", sink.Name()), applogger.Error(err))
						continue
					}
					d.metrics.RecordAlert(sink.Name())
				}
			}
			if d.store != nil {
				if err := d.store.StoreCluster(ctx, item.cluster); err != nil {
					d.metrics.RecordError("store_cluster")
					d.log.Warn("cluster persist failed", applogger.Error(err))
				}
			}
		}
		if item.feedback != nil && d.store != nil {
			if err := d.store.StoreFeedback(ctx, item.feedback); err != nil {
				d.metrics.RecordError("store_feedback")
				d.log.Warn("feedback persist failed", applogger.Error(err))
			}
		}
		cancel()
	}
}

// RecordOutcome supplies the realized move for a previously emitted cluster.
// Callable at arbitrary delay while the cluster remains in bounded history.
func (d *Detector) RecordOutcome(ctx context.Context, clusterID string, move models.RealizedMove) (models.FeedbackRecord, error) {
	d.mu.RLock()
	ce, ok := d.byID[clusterID]
	d.mu.RUnlock()
	if !ok {
		return models.FeedbackRecord{}, ErrUnknownCluster
	}

	rec := d.feedback.Record(ce, move)
	d.enqueue(dispatchItem{feedback: &rec})

	if d.feedback.ShouldRecalibrate() {
		d.applyRecalibration(time.Now())
	}
	return rec, nil
}

// applyRecalibration maps each recommended factor onto the single classifier
// that owns the anomaly type, at most one adjustment per classifier per
// round (a classifier emitting several types takes the first matching
// recommendation).
func (d *Detector) applyRecalibration(now time.Time) {
	adjs := d.feedback.RecalibrationData(now)
	applied := map[string]struct{}{}
	for _, adj := range adjs {
		c, ok := d.byType[adj.Type]
		if !ok {
			continue
		}
		if _, done := applied[c.Name()]; done {
			continue
		}
		applied[c.Name()] = struct{}{}
		c.Recalibrate(adj.Factor)
		d.log.Info("classifier recalibrated",
			applogger.String("classifier", c.Name()),
			applogger.String("anomaly_type", string(adj.Type)),
			applogger.String("action", adj.Action),
			applogger.Any("factor", adj.Factor),
			applogger.Any("accuracy", adj.Accuracy))
	}
}

func (d *Detector) publishBaseline(ticker string, snap models.BaselineSnapshot) {
	d.mu.Lock()
	d.baselines[ticker] = snap
	d.mu.Unlock()
}

// Baseline returns the last published snapshot for a ticker.
func (d *Detector) Baseline(ticker string) (models.BaselineSnapshot, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	snap, ok := d.baselines[ticker]
	return snap, ok
}

// RecentClusters returns buffered clusters, newest last, filtered by ticker
// (empty = all) and minimum conviction.
func (d *Detector) RecentClusters(ticker string, min models.ConvictionLevel, limit int) []models.ClusterEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.ClusterEvent
	d.clusters.Do(func(id string) bool {
		ce, ok := d.byID[id]
		if !ok {
			return true
		}
		if ticker != "" && ce.Ticker != ticker {
			return true
		}
		if ce.Conviction.Rank() < min.Rank() {
			return true
		}
		out = append(out, *ce)
		return true
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// RecentAnomalies returns buffered findings, newest last.
func (d *Detector) RecentAnomalies(ticker string, limit int) []models.AnomalyEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []models.AnomalyEvent
	d.anomalies.Do(func(ev models.AnomalyEvent) bool {
		if ticker == "" || ev.Ticker == ticker {
			out = append(out, ev)
		}
		return true
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Performance returns running feedback metrics.
func (d *Detector) Performance() models.PerformanceMetrics {
	return d.feedback.Metrics()
}

// Shutdown stops accepting events, drains in-flight per-ticker work within
// the drain timeout, and flushes the dispatch queue.
func (d *Detector) Shutdown(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	d.mu.Lock()
	for _, w := range d.workers {
		close(w.in)
	}
	d.mu.Unlock()

	if err := waitTimeout(&d.workerWG, d.cfg.DrainTimeout, ctx); err != nil {
		return fmt.Errorf("drain workers: %w", err)
	}

	close(d.dispatchCh)
	if err := waitTimeout(&d.dispatchWG, d.cfg.DrainTimeout, ctx); err != nil {
		return fmt.Errorf("drain dispatch: %w", err)
	}
	return nil
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration, ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.New("drain timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}
