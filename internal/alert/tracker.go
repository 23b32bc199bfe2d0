package alert

import (
	"sync"
	"time"
)

// Verdict is the tracker's decision for one identity in one cycle.
type Verdict struct {
	Streak    int
	Confirmed bool // streak has reached the required length
	Fire      bool // confirmed and outside the cooldown; lastAlert has been updated
}

type confirmation struct {
	streak    int
	lastAlert time.Time
}

// Tracker keeps per-identity confirmation streaks and alert timestamps.
// Only the inference loop mutates it.
//
// A streak counts consecutive cycles in which the identity was a qualifying
// match. Identities missing from a cycle go back to zero.
type Tracker struct {
	confirmFrames int
	cooldown      time.Duration

	mu    sync.Mutex
	table map[string]*confirmation
}

func NewTracker(confirmFrames int, cooldown time.Duration) *Tracker {
	if confirmFrames < 1 {
		confirmFrames = 1
	}
	return &Tracker{
		confirmFrames: confirmFrames,
		cooldown:      cooldown,
		table:         make(map[string]*confirmation),
	}
}

// Observe records one completed cycle. hits lists the identities that had a
// qualifying match; duplicates count once. The returned map has a verdict for
// every hit identity.
func (t *Tracker) Observe(hits []string, now time.Time) map[string]Verdict {
	seen := make(map[string]struct{}, len(hits))
	for _, id := range hits {
		seen[id] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, c := range t.table {
		if _, ok := seen[id]; ok {
			continue
		}
		c.streak = 0
		// Nothing left to remember once the cooldown is over.
		if c.lastAlert.IsZero() || now.Sub(c.lastAlert) > t.cooldown {
			delete(t.table, id)
		}
	}

	verdicts := make(map[string]Verdict, len(seen))
	for id := range seen {
		c, ok := t.table[id]
		if !ok {
			c = &confirmation{}
			t.table[id] = c
		}
		c.streak++

		v := Verdict{Streak: c.streak, Confirmed: c.streak >= t.confirmFrames}
		if v.Confirmed && (c.lastAlert.IsZero() || now.Sub(c.lastAlert) > t.cooldown) {
			c.lastAlert = now
			v.Fire = true
		}
		verdicts[id] = v
	}
	return verdicts
}

// Streak returns the current streak of an identity.
func (t *Tracker) Streak(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.table[id]; ok {
		return c.streak
	}
	return 0
}

// Forget drops all state for an identity, e.g. after it was removed from the registry.
func (t *Tracker) Forget(id string) {
	t.mu.Lock()
	delete(t.table, id)
	t.mu.Unlock()
}
