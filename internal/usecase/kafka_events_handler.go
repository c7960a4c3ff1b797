package usecase

import (
	"context"
	"encoding/json"
	"time"

	"FlowSentry/internal/domain/models"
	domrepo "FlowSentry/internal/domain/repository"
	mid "FlowSentry/internal/middleware"
	pkgkafka "FlowSentry/pkg/kafka"
)

// NewsSink receives headline events.
type NewsSink interface {
	HandleNews(ctx context.Context, n *models.NewsEvent) error
}

// OptionsSink receives options prints.
type OptionsSink interface {
	HandleOptions(ctx context.Context, o *models.OptionsFlow) error
}

// KafkaTicksHandler consumes tick messages and feeds the detection pipeline.
type KafkaTicksHandler struct {
	topic    string
	pipe     *mid.TickPipeline
	archiver *TickArchiver
	metrics  domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, pipe *mid.TickPipeline, archiver *TickArchiver, metrics domrepo.Metrics) *KafkaTicksHandler {
	return &KafkaTicksHandler{topic: topic, pipe: pipe, archiver: archiver, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {s, t(ms), p, v, sz, dp, x}
func (h *KafkaTicksHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		S  string  `json:"s"`
		T  int64   `json:"t"`
		P  float64 `json:"p"`
		V  float64 `json:"v"`
		Sz float64 `json:"sz"`
		Dp bool    `json:"dp"`
		X  string  `json:"x"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T < 1e11 { // seconds
		m.T = m.T * 1000
	}
	ts := time.UnixMilli(m.T)
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())

	size := m.Sz
	if size == 0 {
		size = m.V
	}
	tick := &models.MarketTick{
		Timestamp: ts,
		Ticker:    m.S,
		Price:     m.P,
		Volume:    m.V,
		TradeSize: size,
		DarkPool:  m.Dp,
		Exchange:  m.X,
	}
	if err := h.pipe.HandleTick(ctx, tick); err != nil {
		h.metrics.RecordError("consumer_tick")
		return err
	}
	if h.archiver != nil {
		h.archiver.Add(tick)
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)

// KafkaNewsHandler consumes headline messages.
type KafkaNewsHandler struct {
	topic   string
	sink    NewsSink
	metrics domrepo.Metrics
}

func NewKafkaNewsHandler(topic string, sink NewsSink, metrics domrepo.Metrics) *KafkaNewsHandler {
	return &KafkaNewsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaNewsHandler) Topic() string { return h.topic }

// incoming message schema: {ticker, t(ms), headline, source, sentiment}
func (h *KafkaNewsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Ticker    string  `json:"ticker"`
		T         int64   `json:"t"`
		Headline  string  `json:"headline"`
		Source    string  `json:"source"`
		Sentiment float64 `json:"sentiment"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T < 1e11 {
		m.T = m.T * 1000
	}
	n := &models.NewsEvent{
		Timestamp: time.UnixMilli(m.T),
		Ticker:    m.Ticker,
		Headline:  m.Headline,
		Source:    m.Source,
		Sentiment: m.Sentiment,
	}
	if err := h.sink.HandleNews(ctx, n); err != nil {
		h.metrics.RecordError("consumer_news")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaNewsHandler)(nil)

// KafkaOptionsHandler consumes options flow messages.
type KafkaOptionsHandler struct {
	topic   string
	sink    OptionsSink
	metrics domrepo.Metrics
}

func NewKafkaOptionsHandler(topic string, sink OptionsSink, metrics domrepo.Metrics) *KafkaOptionsHandler {
	return &KafkaOptionsHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaOptionsHandler) Topic() string { return h.topic }

// incoming message schema: {ticker, t(ms), strike, type, v, oi, sweep}
func (h *KafkaOptionsHandler) Handle(ctx context.Context, b []byte) error {
	var m struct {
		Ticker string  `json:"ticker"`
		T      int64   `json:"t"`
		Strike float64 `json:"strike"`
		Type   string  `json:"type"`
		V      float64 `json:"v"`
		OI     float64 `json:"oi"`
		Sweep  bool    `json:"sweep"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return err
	}
	if m.T < 1e11 {
		m.T = m.T * 1000
	}
	o := &models.OptionsFlow{
		Timestamp:    time.UnixMilli(m.T),
		Ticker:       m.Ticker,
		Strike:       m.Strike,
		ContractType: m.Type,
		Volume:       m.V,
		OpenInterest: m.OI,
		IsSweep:      m.Sweep,
	}
	if err := h.sink.HandleOptions(ctx, o); err != nil {
		h.metrics.RecordError("consumer_options")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaOptionsHandler)(nil)
