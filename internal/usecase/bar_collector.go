package usecase

import (
	"context"

	"TradeVeil/internal/domain/models"
	drepo "TradeVeil/internal/domain/repository"
	mid "TradeVeil/internal/middleware"
)

// BarCollector reads bars from the feed stream and pushes them through the
// pipeline into the engine.
type BarCollector struct {
	stream  drepo.BarStream
	engine  *Engine
	metrics drepo.Metrics
	pipe    *mid.BarPipeline
}

func NewBarCollector(stream drepo.BarStream, engine *Engine, metrics drepo.Metrics, pipe *mid.BarPipeline) *BarCollector {
	return &BarCollector{stream: stream, engine: engine, metrics: metrics, pipe: pipe}
}

// IsConnected returns true if the feed stream is connected.
func (c *BarCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

func (c *BarCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		return err
	}
	if c.pipe != nil {
		c.pipe.Start(ctx)
	}
	barCh, errCh := c.stream.Read(ctx)
	go c.consume(ctx, barCh, errCh)
	return nil
}

func (c *BarCollector) consume(ctx context.Context, barCh <-chan *models.PriceBar, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if !ok || err != nil {
				c.metrics.RecordError("stream")
				if rerr := c.stream.Reconnect(ctx); rerr != nil {
					continue
				}
				barCh, errCh = c.stream.Read(ctx)
			}
		case bar, ok := <-barCh:
			if !ok {
				// read loop ended, wait for the error branch to reconnect
				barCh = nil
				continue
			}
			if bar == nil {
				continue
			}
			if c.pipe != nil {
				_ = c.pipe.Process(ctx, bar)
			} else {
				_ = c.engine.Process(ctx, bar)
			}
		}
	}
}

// Shutdown stops the pipeline and closes the stream.
func (c *BarCollector) Shutdown(ctx context.Context) error {
	if c.pipe != nil {
		c.pipe.Stop()
	}
	return c.stream.Close()
}
