// Package alert turns confirmed suspects into rate-limited alert events and
// delivers them to sinks without ever blocking the inference loop.
package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/types"
)

// Sink is an alert destination (log, database, broker, live viewers).
type Sink interface {
	Name() string
	Send(ctx context.Context, ev types.AlertEvent) error
}

// History answers "what fired recently", newest first.
type History interface {
	Recent(ctx context.Context, limit int) ([]types.AlertEvent, error)
}

const (
	DefaultBuffer      = 64
	DefaultSendTimeout = 3 * time.Second
)

// Dispatcher fans alert events out to sinks from its own goroutine.
type Dispatcher struct {
	sinks   []Sink
	events  chan types.AlertEvent
	timeout time.Duration

	published atomic.Uint64
	dropped   atomic.Uint64
	failures  atomic.Uint64
}

func NewDispatcher(buffer int, timeout time.Duration, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Dispatcher{
		sinks:   sinks,
		events:  make(chan types.AlertEvent, buffer),
		timeout: timeout,
	}
}

// NewEvent builds an event with a fresh ID.
func NewEvent(identity, label string, similarity float64, box types.BoundingBox, at time.Time) types.AlertEvent {
	return types.AlertEvent{
		ID:         uuid.New(),
		Identity:   identity,
		Label:      label,
		Similarity: similarity,
		Box:        box,
		FiredAt:    at,
	}
}

// Publish queues an event. It never blocks: when the queue is full the event
// is dropped and counted.
func (d *Dispatcher) Publish(ev types.AlertEvent) bool {
	select {
	case d.events <- ev:
		d.published.Add(1)
		return true
	default:
		d.dropped.Add(1)
		log.Warn().Str("identity", ev.Identity).Msg("alert queue full, event dropped")
		return false
	}
}

// Run delivers queued events until ctx is cancelled. Events still queued at
// shutdown are flushed with a short deadline.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case ev := <-d.events:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev types.AlertEvent) {
	var wg sync.WaitGroup
	for _, s := range d.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			if err := s.Send(sendCtx, ev); err != nil {
				d.failures.Add(1)
				log.Error().Err(err).Str("sink", s.Name()).Str("identity", ev.Identity).Msg("alert delivery failed")
			}
		}(s)
	}
	wg.Wait()
}

// DispatcherStats is a point-in-time copy of the dispatcher counters.
type DispatcherStats struct {
	Published uint64 `json:"published"`
	Dropped   uint64 `json:"dropped"`
	Failures  uint64 `json:"failures"`
	Queued    int    `json:"queued"`
}

func (d *Dispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Published: d.published.Load(),
		Dropped:   d.dropped.Load(),
		Failures:  d.failures.Load(),
		Queued:    len(d.events),
	}
}
