package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/types"
)

const (
	DefaultPoolSize   = 2
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 30 * time.Second

	// encodeQuality is used for frames handed to the engines, not for the viewer stream.
	encodeQuality = 92
)

// Engine is a single-request-at-a-time detection backend.
type Engine interface {
	Detect(jpeg []byte) ([]types.Face, error)
	Close() error
}

// Factory starts a new engine. id is unique for the lifetime of the pool.
type Factory func(ctx context.Context, id int) (Engine, error)

// PythonFactory launches PythonWorker engines.
func PythonFactory(cfg EngineConfig) Factory {
	return func(ctx context.Context, id int) (Engine, error) {
		return NewPythonWorker(ctx, id, cfg)
	}
}

// Pool shares a fixed number of engines between the inference loop and
// request handlers. It implements face.Detector.
type Pool struct {
	engines     chan Engine
	size        int
	factory     Factory
	acquireWait time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	alive      int
	nextID     int
	lastErrors []error

	metrics *poolMetrics
}

type poolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	destroyed       int64
	waitTime        time.Duration
}

// PoolMetrics is a point-in-time copy of the pool counters.
type PoolMetrics struct {
	Size            int    `json:"size"`
	Alive           int    `json:"alive"`
	InUse           int    `json:"in_use"`
	TotalAcquired   int64  `json:"total_acquired"`
	TotalReleased   int64  `json:"total_released"`
	AcquireFailures int64  `json:"acquire_failures"`
	Destroyed       int64  `json:"destroyed"`
	WaitTime        string `json:"wait_time"`
	LastError       string `json:"last_error,omitempty"`
}

// NewPool starts size engines. It fails if any of them cannot start.
func NewPool(ctx context.Context, size int, acquireWait time.Duration, factory Factory) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if acquireWait <= 0 {
		acquireWait = AcquireTimeout
	}

	pctx, cancel := context.WithCancel(ctx)
	pool := &Pool{
		engines:     make(chan Engine, size),
		size:        size,
		factory:     factory,
		acquireWait: acquireWait,
		ctx:         pctx,
		cancel:      cancel,
		metrics:     &poolMetrics{},
	}

	for i := 0; i < size; i++ {
		engine, err := pool.spawn()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize engine %d: %w", i, err)
		}
		pool.engines <- engine
	}

	return pool, nil
}

func (p *Pool) spawn() (Engine, error) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.mu.Unlock()

	engine, err := p.factory(p.ctx, id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.alive++
	p.mu.Unlock()
	return engine, nil
}

// Acquire waits for a free engine.
func (p *Pool) Acquire(ctx context.Context) (Engine, error) {
	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	timer := time.NewTimer(p.acquireWait)
	defer timer.Stop()

	select {
	case engine, ok := <-p.engines:
		if !ok {
			return nil, fmt.Errorf("pool is closed")
		}
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return engine, nil
	case <-timer.C:
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available engine")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns an engine to the pool. A broken engine is closed instead;
// the health check starts a replacement.
func (p *Pool) Release(engine Engine, broken bool) {
	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	if broken {
		p.metrics.destroyed++
	}
	p.metrics.mu.Unlock()

	p.mu.Lock()
	if p.closed || broken {
		p.alive--
		p.mu.Unlock()
		engine.Close()
		return
	}
	p.engines <- engine
	p.mu.Unlock()
}

// Detect encodes img and runs it through a pooled engine.
func (p *Pool) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(encodeQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode frame: %v", types.ErrDetection, err)
	}

	engine, err := p.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrDetection, err)
	}

	faces, err := engine.Detect(buf.Bytes())
	if err != nil {
		var engErr *EngineError
		broken := !errors.As(err, &engErr)
		if broken {
			p.recordError(err)
			ev := log.Warn().Err(err)
			if pw, ok := engine.(*PythonWorker); ok {
				ev = ev.Int("engine", pw.ID).Str("engine_logs", pw.Logs())
			}
			ev.Msg("detection engine failed, replacing it")
		}
		p.Release(engine, broken)
		return nil, fmt.Errorf("%w: %v", types.ErrDetection, err)
	}

	p.Release(engine, false)
	return faces, nil
}

// RunHealthCheck replenishes destroyed engines every period until ctx is cancelled or the pool closes.
func (p *Pool) RunHealthCheck(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = HealthCheckPeriod
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.replenish()
		}
	}
}

func (p *Pool) replenish() {
	p.mu.Lock()
	missing := p.size - p.alive
	closed := p.closed
	p.mu.Unlock()

	if closed || missing <= 0 {
		return
	}

	for i := 0; i < missing; i++ {
		engine, err := p.spawn()
		if err != nil {
			p.recordError(err)
			log.Error().Err(err).Msg("failed to replenish detection engine")
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.alive--
			p.mu.Unlock()
			engine.Close()
			return
		}
		p.engines <- engine
		p.mu.Unlock()
		log.Info().Msg("detection engine replenished")
	}
}

func (p *Pool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	p.metrics.mu.RLock()
	m := PoolMetrics{
		Size:            p.size,
		InUse:           p.metrics.inUse,
		TotalAcquired:   p.metrics.totalAcquired,
		TotalReleased:   p.metrics.totalReleased,
		AcquireFailures: p.metrics.acquireFailures,
		Destroyed:       p.metrics.destroyed,
		WaitTime:        p.metrics.waitTime.String(),
	}
	p.metrics.mu.RUnlock()

	p.mu.Lock()
	m.Alive = p.alive
	if n := len(p.lastErrors); n > 0 {
		m.LastError = p.lastErrors[n-1].Error()
	}
	p.mu.Unlock()
	return m
}

// Close stops every idle engine. Engines still in use are closed on Release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.engines)

	var idle []Engine
	for engine := range p.engines {
		idle = append(idle, engine)
		p.alive--
	}
	p.mu.Unlock()

	for _, engine := range idle {
		engine.Close()
	}
	p.cancel()
}
