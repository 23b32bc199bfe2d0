package alert

import (
	"testing"
	"time"
)

func TestTrackerConfirmsOnExactStreak(t *testing.T) {
	tr := NewTracker(3, 10*time.Second)
	start := time.Unix(1_700_000_000, 0)

	for cycle := 1; cycle <= 5; cycle++ {
		v := tr.Observe([]string{"alice"}, start.Add(time.Duration(cycle)*100*time.Millisecond))["alice"]
		if v.Streak != cycle {
			t.Fatalf("cycle %d: streak = %d", cycle, v.Streak)
		}
		if wantConfirmed := cycle >= 3; v.Confirmed != wantConfirmed {
			t.Errorf("cycle %d: confirmed = %v, want %v", cycle, v.Confirmed, wantConfirmed)
		}
		// Only the first confirmed cycle fires; the rest are inside the cooldown.
		if wantFire := cycle == 3; v.Fire != wantFire {
			t.Errorf("cycle %d: fire = %v, want %v", cycle, v.Fire, wantFire)
		}
	}
}

func TestTrackerMissResetsStreak(t *testing.T) {
	tr := NewTracker(3, 10*time.Second)
	now := time.Unix(1_700_000_000, 0)

	tr.Observe([]string{"alice"}, now)
	tr.Observe([]string{"alice"}, now)
	tr.Observe(nil, now) // alice not seen
	if got := tr.Streak("alice"); got != 0 {
		t.Fatalf("expected streak reset to 0, got %d", got)
	}

	v := tr.Observe([]string{"alice"}, now)
	if v["alice"].Streak != 1 || v["alice"].Confirmed {
		t.Errorf("expected a fresh streak of 1, got %+v", v["alice"])
	}
}

func TestTrackerDuplicateHitsCountOnce(t *testing.T) {
	tr := NewTracker(3, time.Second)
	v := tr.Observe([]string{"bob", "bob", "bob"}, time.Now())
	if v["bob"].Streak != 1 {
		t.Errorf("expected one increment per cycle, got streak %d", v["bob"].Streak)
	}
}

func TestTrackerCooldown(t *testing.T) {
	tr := NewTracker(1, 10*time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	tests := []struct {
		name   string
		offset time.Duration
		fire   bool
	}{
		{"first confirmation", 0, true},
		{"3s later", 3 * time.Second, false},
		{"exactly at cooldown", 10 * time.Second, false},
		{"past cooldown", 10*time.Second + time.Millisecond, true},
		{"3s after second alert", 13 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tr.Observe([]string{"carol"}, t0.Add(tt.offset))["carol"]
			if v.Fire != tt.fire {
				t.Errorf("fire = %v, want %v", v.Fire, tt.fire)
			}
		})
	}
}

func TestTrackerCooldownSurvivesMissedCycles(t *testing.T) {
	tr := NewTracker(1, 10*time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	if !tr.Observe([]string{"dave"}, t0)["dave"].Fire {
		t.Fatal("expected first alert")
	}
	tr.Observe(nil, t0.Add(time.Second))
	if tr.Observe([]string{"dave"}, t0.Add(3*time.Second))["dave"].Fire {
		t.Error("alert fired inside the cooldown after a missed cycle")
	}
}

func TestTrackerForget(t *testing.T) {
	tr := NewTracker(2, time.Minute)
	now := time.Now()
	tr.Observe([]string{"erin"}, now)
	tr.Forget("erin")
	if tr.Streak("erin") != 0 {
		t.Error("expected no state after Forget")
	}
}
