package alert

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/types"
)

// LogSink writes every alert to the structured log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, ev types.AlertEvent) error {
	log.Warn().
		Str("alert_id", ev.ID.String()).
		Str("identity", ev.Identity).
		Float64("similarity", ev.Similarity).
		Time("fired_at", ev.FiredAt).
		Msg(fmt.Sprintf("🚨 ALERT: Suspect %s confirmed! (Sim: %.2f)", ev.Identity, ev.Similarity))
	return nil
}

// Ring keeps the most recent alerts in memory. It serves as the alert
// history when no database is configured.
type Ring struct {
	mu     sync.Mutex
	events []types.AlertEvent
	next   int
	full   bool
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 100
	}
	return &Ring{events: make([]types.AlertEvent, size)}
}

func (r *Ring) Name() string { return "memory" }

func (r *Ring) Send(_ context.Context, ev types.AlertEvent) error {
	r.mu.Lock()
	r.events[r.next] = ev
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
	return nil
}

// Recent returns up to limit events, newest first.
func (r *Ring) Recent(_ context.Context, limit int) ([]types.AlertEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.events)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]types.AlertEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out, nil
}
