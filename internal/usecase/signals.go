package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"FlowSentry/internal/domain/models"
	domrepo "FlowSentry/internal/domain/repository"
)

// DetectorView is the read side of the live detector.
type DetectorView interface {
	RecentClusters(ticker string, min models.ConvictionLevel, limit int) []models.ClusterEvent
	RecentAnomalies(ticker string, limit int) []models.AnomalyEvent
	Baseline(ticker string) (models.BaselineSnapshot, bool)
	Performance() models.PerformanceMetrics
}

// OutcomeRecorder accepts realized-move outcomes for emitted clusters.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, clusterID string, move models.RealizedMove) (models.FeedbackRecord, error)
}

// SignalsUseCase serves cluster and anomaly reads, from the live buffers by
// default and from the persistent store for historical ranges.
type SignalsUseCase struct {
	view  DetectorView
	store domrepo.ClusterStore // optional
}

func NewSignalsUseCase(view DetectorView, store domrepo.ClusterStore) *SignalsUseCase {
	return &SignalsUseCase{view: view, store: store}
}

type GetClustersParams struct {
	Ticker        string
	MinConviction models.ConvictionLevel
	From          time.Time
	To            time.Time
	Limit         int
}

// GetClusters returns clusters newest-last. A time range routes the query to
// the persistent store; otherwise the live bounded buffer answers.
func (uc *SignalsUseCase) GetClusters(ctx context.Context, p GetClustersParams) ([]models.ClusterEvent, error) {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	if p.MinConviction == "" {
		p.MinConviction = models.ConvictionLow
	}

	if p.From.IsZero() && p.To.IsZero() {
		return uc.view.RecentClusters(p.Ticker, p.MinConviction, p.Limit), nil
	}

	if uc.store == nil {
		return nil, fmt.Errorf("historical queries require the cluster store")
	}
	if p.To.IsZero() {
		p.To = time.Now()
	}
	if p.From.After(p.To) {
		return nil, fmt.Errorf("from must be <= to")
	}
	rows, err := uc.store.QueryClusters(ctx, p.Ticker, p.From, p.To, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	out := make([]models.ClusterEvent, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- { // store returns newest first
		ce := rows[i]
		if ce.Conviction.Rank() < p.MinConviction.Rank() {
			continue
		}
		out = append(out, *ce)
	}
	return out, nil
}

type GetAnomaliesParams struct {
	Ticker string
	Limit  int
}

// GetAnomalies returns recent findings from the live buffer, newest-last.
func (uc *SignalsUseCase) GetAnomalies(_ context.Context, p GetAnomaliesParams) []models.AnomalyEvent {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	return uc.view.RecentAnomalies(p.Ticker, p.Limit)
}

// GetBaseline returns the last published baseline snapshot for a ticker.
func (uc *SignalsUseCase) GetBaseline(_ context.Context, ticker string) (models.BaselineSnapshot, error) {
	if ticker == "" {
		return models.BaselineSnapshot{}, fmt.Errorf("ticker required")
	}
	snap, ok := uc.view.Baseline(ticker)
	if !ok {
		return models.BaselineSnapshot{}, fmt.Errorf("no baseline for %s", ticker)
	}
	return snap, nil
}

// GetPerformance returns running feedback metrics.
func (uc *SignalsUseCase) GetPerformance(_ context.Context) models.PerformanceMetrics {
	return uc.view.Performance()
}

// Overview is the fan-out summary for one ticker.
type Overview struct {
	Ticker      string                     `json:"ticker"`
	Timestamp   time.Time                  `json:"timestamp"`
	Baseline    *models.BaselineSnapshot   `json:"baseline,omitempty"`
	Clusters    []models.ClusterEvent      `json:"clusters"`
	Anomalies   []models.AnomalyEvent      `json:"anomalies"`
	Performance *models.PerformanceMetrics `json:"performance,omitempty"`
	Errors      map[string]string          `json:"errors,omitempty"`
}

type GetOverviewParams struct {
	Ticker string
	Limit  int
}

// GetOverview gathers the ticker's live state concurrently.
func (uc *SignalsUseCase) GetOverview(ctx context.Context, p GetOverviewParams) (*Overview, error) {
	if p.Ticker == "" {
		return nil, fmt.Errorf("ticker required")
	}
	if p.Limit <= 0 {
		p.Limit = 20
	}

	res := &Overview{
		Ticker:    p.Ticker,
		Timestamp: time.Now(),
		Errors:    map[string]string{},
	}

	var mu sync.Mutex
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		snap, err := uc.GetBaseline(ctx, p.Ticker)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.Errors["baseline"] = err.Error()
			return
		}
		res.Baseline = &snap
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		clusters := uc.view.RecentClusters(p.Ticker, models.ConvictionLow, p.Limit)
		mu.Lock()
		res.Clusters = clusters
		mu.Unlock()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		anomalies := uc.view.RecentAnomalies(p.Ticker, p.Limit)
		mu.Lock()
		res.Anomalies = anomalies
		mu.Unlock()
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		perf := uc.view.Performance()
		mu.Lock()
		res.Performance = &perf
		mu.Unlock()
	}()

	wg.Wait()
	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}

// OutcomesUseCase applies realized moves to emitted clusters.
type OutcomesUseCase struct {
	recorder OutcomeRecorder
}

func NewOutcomesUseCase(recorder OutcomeRecorder) *OutcomesUseCase {
	return &OutcomesUseCase{recorder: recorder}
}

// Record hands the realized move to the feedback loop.
func (uc *OutcomesUseCase) Record(ctx context.Context, clusterID string, move models.RealizedMove) (models.FeedbackRecord, error) {
	if clusterID == "" {
		return models.FeedbackRecord{}, fmt.Errorf("cluster id required")
	}
	return uc.recorder.RecordOutcome(ctx, clusterID, move)
}
