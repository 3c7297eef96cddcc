package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradeVeil/internal/domain/models"
	domrepo "TradeVeil/internal/domain/repository"
)

// BarProc is the minimal downstream interface the pipeline needs.
type BarProc interface {
	Process(ctx context.Context, bar *models.PriceBar) error
}

// BarPipeline sits between the feed stream and the decision engine.
// It validates bars, drops out-of-order or overly dense updates per
// instrument, and buffers with retry when downstream is unavailable.
type BarPipeline struct {
	proc    BarProc
	metrics domrepo.Metrics
	maxRPS  int
	bufSize int
	bufCh   chan *models.PriceBar
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	last    map[string]barMark // per-instrument last accepted bar
}

type barMark struct {
	acceptedAt time.Time
	barTime    time.Time
}

type PipelineOption func(*BarPipeline)

// WithMaxRPS sets the max accepted bars per second per instrument.
func WithMaxRPS(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *BarPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func NewBarPipeline(proc BarProc, metrics domrepo.Metrics, opts ...PipelineOption) *BarPipeline {
	p := &BarPipeline{
		proc:    proc,
		metrics: metrics,
		maxRPS:  20,
		bufSize: 1000,
		bufCh:   make(chan *models.PriceBar, 1000),
		stopCh:  make(chan struct{}),
		last:    make(map[string]barMark),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan *models.PriceBar, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered bars.
func (p *BarPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case bar := <-p.bufCh:
				if bar == nil {
					continue
				}
				if err := p.proc.Process(ctx, bar); err != nil {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.metrics.RecordError("pipeline_flush")
					time.Sleep(backoff)
					// requeue if space; drop otherwise
					select {
					case p.bufCh <- bar:
					default:
						p.metrics.RecordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *BarPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates, throttles, and forwards a bar downstream, buffering on
// downstream errors.
func (p *BarPipeline) Process(ctx context.Context, bar *models.PriceBar) error {
	start := time.Now()
	if err := validateBar(bar); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(bar, start) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	if err := p.proc.Process(ctx, bar); err != nil {
		p.metrics.RecordError("pipeline_process")
		// buffer non-blocking
		select {
		case p.bufCh <- bar:
			p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.bufCh)))
		default:
			p.metrics.RecordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func validateBar(bar *models.PriceBar) error {
	if bar == nil {
		return fmt.Errorf("bar nil")
	}
	if bar.Instrument == "" {
		return fmt.Errorf("instrument empty")
	}
	if bar.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if bar.Open <= 0 || bar.High <= 0 || bar.Low <= 0 || bar.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if bar.High < bar.Low {
		return fmt.Errorf("high below low")
	}
	if bar.Volume < 0 || bar.Spread < 0 {
		return fmt.Errorf("negative volume/spread")
	}
	return nil
}

// allow enforces strictly increasing bar timestamps per instrument and the
// per-instrument rate limit.
func (p *BarPipeline) allow(bar *models.PriceBar, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark, seen := p.last[bar.Instrument]
	if seen {
		if !bar.Timestamp.After(mark.barTime) {
			return false // stale or duplicate bar
		}
		if p.maxRPS > 0 && now.Sub(mark.acceptedAt) < time.Second/time.Duration(p.maxRPS) {
			return false
		}
	}
	p.last[bar.Instrument] = barMark{acceptedAt: now, barTime: bar.Timestamp}
	return true
}
