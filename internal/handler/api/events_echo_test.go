package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlowSentry/internal/detector"
	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/usecase"
	pkgcache "FlowSentry/pkg/cache"
	applogger "FlowSentry/pkg/logger"
)

type stubView struct {
	mu            sync.Mutex
	baselineCalls int
	clusters      []models.ClusterEvent
	anomalies     []models.AnomalyEvent
	baselines     map[string]models.BaselineSnapshot
	perf          models.PerformanceMetrics
}

func (v *stubView) RecentClusters(ticker string, min models.ConvictionLevel, limit int) []models.ClusterEvent {
	var out []models.ClusterEvent
	for _, ce := range v.clusters {
		if ticker != "" && ce.Ticker != ticker {
			continue
		}
		if ce.Conviction.Rank() < min.Rank() {
			continue
		}
		out = append(out, ce)
	}
	return out
}

func (v *stubView) RecentAnomalies(ticker string, limit int) []models.AnomalyEvent {
	return v.anomalies
}

func (v *stubView) Baseline(ticker string) (models.BaselineSnapshot, bool) {
	v.mu.Lock()
	v.baselineCalls++
	v.mu.Unlock()
	snap, ok := v.baselines[ticker]
	return snap, ok
}

func (v *stubView) Performance() models.PerformanceMetrics { return v.perf }

type stubRecorder struct {
	err error
	rec models.FeedbackRecord
}

func (r *stubRecorder) RecordOutcome(ctx context.Context, clusterID string, move models.RealizedMove) (models.FeedbackRecord, error) {
	if r.err != nil {
		return models.FeedbackRecord{}, r.err
	}
	return r.rec, nil
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestHandler(t *testing.T, view *stubView, rec *stubRecorder, cacheSvc pkgcache.Service) *echo.Echo {
	t.Helper()
	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	h := NewEventsEchoHandler(log,
		usecase.NewSignalsUseCase(view, nil),
		usecase.NewOutcomesUseCase(rec),
		cacheSvc, time.Second)

	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func doRequest(e *echo.Echo, method, target, body string) envelope {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return env
}

func TestClustersEndpointFiltersByConviction(t *testing.T) {
	view := &stubView{clusters: []models.ClusterEvent{
		{ID: "a", Ticker: "AAPL", Conviction: models.ConvictionLow},
		{ID: "b", Ticker: "AAPL", Conviction: models.ConvictionHigh},
	}}
	e := newTestHandler(t, view, &stubRecorder{}, nil)

	env := doRequest(e, http.MethodGet, "/api/clusters?ticker=AAPL&conviction=high", "")
	require.Equal(t, http.StatusOK, env.Status)

	var data struct {
		Rows  []models.ClusterEvent `json:"rows"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Rows, 1)
	assert.Equal(t, "b", data.Rows[0].ID)
}

func TestClustersEndpointRejectsBadConviction(t *testing.T) {
	e := newTestHandler(t, &stubView{}, &stubRecorder{}, nil)

	env := doRequest(e, http.MethodGet, "/api/clusters?conviction=bogus", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestClustersEndpointRejectsBadTimestamp(t *testing.T) {
	e := newTestHandler(t, &stubView{}, &stubRecorder{}, nil)

	env := doRequest(e, http.MethodGet, "/api/clusters?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestBaselineEndpoint(t *testing.T) {
	view := &stubView{baselines: map[string]models.BaselineSnapshot{
		"AAPL": {Ticker: "AAPL", SampleCount: 7},
	}}
	e := newTestHandler(t, view, &stubRecorder{}, nil)

	env := doRequest(e, http.MethodGet, "/api/baseline/AAPL", "")
	require.Equal(t, http.StatusOK, env.Status)
	var snap models.BaselineSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, 7, snap.SampleCount)

	env = doRequest(e, http.MethodGet, "/api/baseline/MSFT", "")
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestOutcomeEndpoint(t *testing.T) {
	rec := &stubRecorder{rec: models.FeedbackRecord{Ticker: "AAPL", WasCorrect: true}}
	e := newTestHandler(t, &stubView{}, rec, nil)

	body := `{"cluster_id":"7f9c24e8-3b12-4a9f-9f2a-7c15f6b2a001","move_1m":0.2,"move_5m":0.9,"move_15m":1.4}`
	env := doRequest(e, http.MethodPost, "/api/outcomes", body)
	assert.Equal(t, http.StatusCreated, env.Status)

	// Validation rejects a non-uuid cluster id before the usecase runs.
	env = doRequest(e, http.MethodPost, "/api/outcomes", `{"cluster_id":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestOutcomeEndpointUnknownCluster(t *testing.T) {
	rec := &stubRecorder{err: detector.ErrUnknownCluster}
	e := newTestHandler(t, &stubView{}, rec, nil)

	body := `{"cluster_id":"7f9c24e8-3b12-4a9f-9f2a-7c15f6b2a001"}`
	env := doRequest(e, http.MethodPost, "/api/outcomes", body)
	assert.Equal(t, http.StatusNotFound, env.Status)
}

func TestOverviewEndpointCaches(t *testing.T) {
	view := &stubView{baselines: map[string]models.BaselineSnapshot{
		"AAPL": {Ticker: "AAPL", SampleCount: 3},
	}}
	e := newTestHandler(t, view, &stubRecorder{}, pkgcache.NewMemoryCache())

	env := doRequest(e, http.MethodGet, "/api/overview?ticker=AAPL", "")
	require.Equal(t, http.StatusOK, env.Status)
	env = doRequest(e, http.MethodGet, "/api/overview?ticker=AAPL", "")
	require.Equal(t, http.StatusOK, env.Status)

	view.mu.Lock()
	calls := view.baselineCalls
	view.mu.Unlock()
	assert.Equal(t, 1, calls, "second overview read should come from cache")
}
