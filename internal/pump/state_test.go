package pump

import (
	"testing"
	"time"
)

func TestModeNameBijection(t *testing.T) {
	for _, code := range []uint8{ModeClassicWave, ModeCrossFlow, ModeSineWave, ModeRandom, ModeConstant} {
		name := ModeName(code)
		got, ok := ModeFromName(name)
		if !ok {
			t.Fatalf("ModeFromName(%q) not found for code %d", name, code)
		}
		if got != code {
			t.Errorf("round trip for code %d gave %d via name %q", code, got, name)
		}
	}
}

func TestModeNameUnknownCodePreserved(t *testing.T) {
	if got := ModeName(3); got != "Unknown" {
		t.Errorf("ModeName(3) = %q, want Unknown", got)
	}
	if !IsKnownMode(0) || IsKnownMode(3) || IsKnownMode(5) {
		t.Error("IsKnownMode disagrees with the documented gap at codes 3 and 5")
	}
}

func TestRuntimeAccountingAcrossPowerCycle(t *testing.T) {
	s := &State{RuntimeResetDate: "2026-07-30"}
	t0 := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	s.applyPower(true, t0)
	if s.RuntimeTodayHrs != 0 {
		t.Fatalf("RuntimeTodayHrs = %v immediately after power-on, want 0", s.RuntimeTodayHrs)
	}

	t1 := t0.Add(2 * time.Hour)
	changed := s.applyPower(false, t1)
	if !changed {
		t.Error("applyPower(false) reported no change after a true->false transition")
	}
	if got := s.RuntimeTodayHrs; got < 1.99 || got > 2.01 {
		t.Errorf("RuntimeTodayHrs = %v, want ~2.0", got)
	}
}

func TestRuntimeMonotonicWithinADay(t *testing.T) {
	s := &State{RuntimeResetDate: "2026-07-30"}
	t0 := time.Date(2026, 7, 30, 8, 0, 0, 0, time.UTC)

	s.applyPower(true, t0)
	prev := 0.0
	for i := 1; i <= 5; i++ {
		now := t0.Add(time.Duration(i) * time.Minute)
		snap := s.Snapshot(now)
		if snap.RuntimeTodayHrs < prev {
			t.Fatalf("runtime decreased: %v -> %v", prev, snap.RuntimeTodayHrs)
		}
		prev = snap.RuntimeTodayHrs
	}
}

func TestDailyReset(t *testing.T) {
	s := &State{RuntimeTodayHrs: 4.5, RuntimeResetDate: "2026-07-29"}

	s.ResetRuntimeIfNewDay("2026-07-29")
	if s.RuntimeTodayHrs != 4.5 {
		t.Errorf("runtime reset on the same date: got %v, want unchanged 4.5", s.RuntimeTodayHrs)
	}

	s.ResetRuntimeIfNewDay("2026-07-30")
	if s.RuntimeTodayHrs != 0 {
		t.Errorf("RuntimeTodayHrs = %v after a date rollover, want 0", s.RuntimeTodayHrs)
	}
	if s.RuntimeResetDate != "2026-07-30" {
		t.Errorf("RuntimeResetDate = %q, want 2026-07-30", s.RuntimeResetDate)
	}
}

func TestPowerEpochReArmsAfterLinkLoss(t *testing.T) {
	s := &State{RuntimeResetDate: "2026-07-30"}
	t0 := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	s.applyPower(true, t0)
	// Link drops 1 hour later without power ever reporting off.
	s.markLinkDown(t0.Add(time.Hour))
	if s.RuntimeTodayHrs < 0.99 || s.RuntimeTodayHrs > 1.01 {
		t.Fatalf("RuntimeTodayHrs after link loss = %v, want ~1.0 banked", s.RuntimeTodayHrs)
	}

	// Reconnect confirms power is still on; epoch re-arms rather than
	// double counting the hour already banked or the link-down gap.
	reconnectAt := t0.Add(90 * time.Minute)
	changed := s.applyPower(true, reconnectAt)
	if changed {
		t.Error("applyPower(true) reported a change even though Power was already true")
	}

	later := reconnectAt.Add(30 * time.Minute)
	snap := s.Snapshot(later)
	if got := snap.RuntimeTodayHrs; got < 1.49 || got > 1.51 {
		t.Errorf("RuntimeTodayHrs = %v, want ~1.5 (1h banked + 0.5h since reconnect)", got)
	}
}
