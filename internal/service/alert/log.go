// Package alert provides AlertSink implementations for cluster events.
package alert

import (
	"context"

	"FlowSentry/internal/domain/models"
	"FlowSentry/internal/domain/repository"
	applogger "FlowSentry/pkg/logger"
)

// LogSink writes alerts to the structured log. Always safe to enable; used
// as the default backend in development.
type LogSink struct {
	log *applogger.Logger
}

// NewLogSink creates the sink.
func NewLogSink(log *applogger.Logger) repository.AlertSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev *models.ClusterEvent) error {
	s.log.Info("unusual activity alert",
		applogger.String("cluster_id", ev.ID),
		applogger.String("ticker", ev.Ticker),
		applogger.String("conviction", string(ev.Conviction)),
		applogger.Float64("score", ev.Score),
		applogger.Int("events", len(ev.Events)))
	return nil
}

func (s *LogSink) Close() error { return nil }
