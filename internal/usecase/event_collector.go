package usecase

import (
	"context"

	"FlowSentry/internal/domain/models"
	drepo "FlowSentry/internal/domain/repository"
	mid "FlowSentry/internal/middleware"
)

// EventCollector consumes the live market stream and feeds the detection
// pipeline, archiving raw ticks on the side.
type EventCollector struct {
	stream   drepo.MarketStream
	pipe     *mid.TickPipeline
	archiver *TickArchiver
	metrics  drepo.Metrics
}

// NewEventCollector creates a new EventCollector instance.
func NewEventCollector(stream drepo.MarketStream, pipe *mid.TickPipeline, archiver *TickArchiver, metrics drepo.Metrics) *EventCollector {
	return &EventCollector{stream: stream, pipe: pipe, archiver: archiver, metrics: metrics}
}

// IsConnected returns true if the market stream is connected.
func (c *EventCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *EventCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	c.pipe.Start(ctx)
	tickCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, tickCh, errCh)
	return nil
}

func (c *EventCollector) consume(ctx context.Context, tickCh <-chan *models.MarketTick, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errCh:
			if err != nil {
				c.metrics.RecordError("stream")
				_ = c.stream.Reconnect(ctx)
			}
		case t := <-tickCh:
			if t == nil {
				continue
			}
			_ = c.pipe.HandleTick(ctx, t)
			if c.archiver != nil {
				c.archiver.Add(t)
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *EventCollector) Shutdown(ctx context.Context) error {
	c.pipe.Stop()
	return c.stream.Close()
}
