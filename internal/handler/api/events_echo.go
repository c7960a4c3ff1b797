package api

import (
	"errors"
	"fmt"
	"time"

	"FlowSentry/internal/detector"
	models "FlowSentry/internal/domain/models"
	svcmetrics "FlowSentry/internal/service/metrics"
	"FlowSentry/internal/usecase"
	"FlowSentry/pkg/cache"
	xhttp "FlowSentry/pkg/http"
	xlogger "FlowSentry/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EventsEchoHandler serves the detection read API and the outcome write path.
type EventsEchoHandler struct {
	logger   *xlogger.Logger
	signals  *usecase.SignalsUseCase
	outcomes *usecase.OutcomesUseCase
	cache    cache.Service // optional
	cacheTTL time.Duration
}

func NewEventsEchoHandler(logger *xlogger.Logger, signals *usecase.SignalsUseCase, outcomes *usecase.OutcomesUseCase, cacheSvc cache.Service, cacheTTL time.Duration) *EventsEchoHandler {
	svcmetrics.Register()
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &EventsEchoHandler{logger: logger, signals: signals, outcomes: outcomes, cache: cacheSvc, cacheTTL: cacheTTL}
}

func (h *EventsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/clusters", h.Clusters)
	g.GET("/anomalies", h.Anomalies)
	g.GET("/overview", h.Overview)
	g.GET("/baseline/:ticker", h.Baseline)
	g.GET("/performance", h.Performance)
	g.POST("/outcomes", h.Outcome)
}

func (h *EventsEchoHandler) Clusters(c echo.Context) error {
	const endpoint = "clusters"
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.ClustersRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	params := usecase.GetClustersParams{
		Ticker:        req.Ticker,
		MinConviction: models.ConvictionLevel(req.Conviction),
		Limit:         req.Limit,
	}
	if req.From != "" {
		ts, ok := xhttp.ParseTime(req.From)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid from timestamp")
		}
		params.From = ts
	}
	if req.To != "" {
		ts, ok := xhttp.ParseTime(req.To)
		if !ok {
			return xhttp.BadRequestResponse(c, "invalid to timestamp")
		}
		params.To = ts
	}

	res, err := h.signals.GetClusters(c.Request().Context(), params)
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("clusters usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *EventsEchoHandler) Anomalies(c echo.Context) error {
	req := &models.AnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res := h.signals.GetAnomalies(c.Request().Context(), usecase.GetAnomaliesParams{
		Ticker: req.Ticker,
		Limit:  req.Limit,
	})
	return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *EventsEchoHandler) Overview(c echo.Context) error {
	const endpoint = "overview"
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.OverviewRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	ctx := c.Request().Context()
	key := cache.GenerateKeyWithParams("overview", req.Ticker, req.Limit)
	if h.cache != nil {
		var cached usecase.Overview
		if err := h.cache.Get(ctx, key, &cached); err == nil {
			c.Response().Header().Set(echo.HeaderCacheControl, fmt.Sprintf("private, max-age=%d", int(h.cacheTTL.Seconds())))
			return xhttp.SuccessResponse(c, &cached)
		}
	}

	res, err := h.signals.GetOverview(ctx, usecase.GetOverviewParams{Ticker: req.Ticker, Limit: req.Limit})
	if err != nil {
		svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("overview usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil {
		_ = h.cache.Set(ctx, key, res, h.cacheTTL)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *EventsEchoHandler) Baseline(c echo.Context) error {
	req := &models.BaselineRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.signals.GetBaseline(c.Request().Context(), req.Ticker)
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *EventsEchoHandler) Performance(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.signals.GetPerformance(c.Request().Context()))
}

func (h *EventsEchoHandler) Outcome(c echo.Context) error {
	const endpoint = "outcomes"
	start := time.Now()
	defer func() { svcmetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.OutcomeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rec, err := h.outcomes.Record(c.Request().Context(), req.ClusterID, models.RealizedMove{
		Move1m:  req.Move1m,
		Move5m:  req.Move5m,
		Move15m: req.Move15m,
	})
	if err != nil {
		if errors.Is(err, detector.ErrUnknownCluster) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		svcmetrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("outcome usecase error", xlogger.Error(err), xlogger.String("cluster_id", req.ClusterID))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, rec)
}
