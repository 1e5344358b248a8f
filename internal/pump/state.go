package pump

import (
	"sync"
	"time"
)

// Mode codes the device is known to emit. The set is deliberately
// non-contiguous: 3 and 5 are never used.
const (
	ModeClassicWave uint8 = 0
	ModeCrossFlow   uint8 = 1
	ModeSineWave    uint8 = 2
	ModeRandom      uint8 = 4
	ModeConstant    uint8 = 6
)

var modeNames = map[uint8]string{
	ModeClassicWave: "Classic Wave",
	ModeCrossFlow:   "Cross-flow",
	ModeSineWave:    "Sine Wave",
	ModeRandom:      "Random",
	ModeConstant:    "Constant",
}

var namesToMode = func() map[string]uint8 {
	out := make(map[string]uint8, len(modeNames))
	for code, name := range modeNames {
		out[name] = code
	}
	return out
}()

// ModeName returns the display name for a mode code, or "Unknown" for any
// code the device might emit outside the known set. Unknown codes are never
// rejected; they are retained in state and just displayed this way.
func ModeName(code uint8) string {
	if name, ok := modeNames[code]; ok {
		return name
	}
	return "Unknown"
}

// ModeFromName is the inverse of ModeName for the known set; ok is false for
// any string that is not one of the known display names.
func ModeFromName(name string) (uint8, bool) {
	code, ok := namesToMode[name]
	return code, ok
}

// IsKnownMode reports whether code is one of the modes the command path
// will accept for set_mode.
func IsKnownMode(code uint8) bool {
	_, ok := modeNames[code]
	return ok
}

// State is one device's mutable runtime state. Only its Session mutates it
// (mostly from the loop goroutine, and from Connect/Disconnect on link
// teardown); every access goes through mu.
type State struct {
	mu sync.RWMutex

	Power            bool
	Feed             bool
	Mode             uint8
	FlowPercent      uint8
	FrequencySeconds uint8

	LinkUp    bool
	StateSeen bool

	powerOnAt        time.Time
	powerOnSet       bool
	RuntimeTodayHrs  float64
	RuntimeResetDate string // YYYY-MM-DD, local
}

// Snapshot is a point-in-time, safe-to-publish copy of State.
type Snapshot struct {
	Power            bool
	Feed             bool
	Mode             uint8
	ModeName         string
	FlowPercent      uint8
	FrequencySeconds uint8
	LinkUp           bool
	StateSeen        bool
	RuntimeTodayHrs  float64
}

// Snapshot returns a consistent copy of the state for publication. It first
// rolls RuntimeTodayHrs over if now falls on a later local date than the
// last reset, so every publish path gets the daily reset for free.
func (s *State) Snapshot(now time.Time) Snapshot {
	s.ResetRuntimeIfNewDay(now.Local().Format("2006-01-02"))

	s.mu.RLock()
	defer s.mu.RUnlock()

	runtime := s.RuntimeTodayHrs
	if s.Power && s.powerOnSet {
		runtime += now.Sub(s.powerOnAt).Hours()
	}

	return Snapshot{
		Power:            s.Power,
		Feed:             s.Feed,
		Mode:             s.Mode,
		ModeName:         ModeName(s.Mode),
		FlowPercent:      s.FlowPercent,
		FrequencySeconds: s.FrequencySeconds,
		LinkUp:           s.LinkUp,
		StateSeen:        s.StateSeen,
		RuntimeTodayHrs:  runtime,
	}
}

// ResetRuntimeIfNewDay zeroes RuntimeTodayHrs the first time it observes a
// local date different from RuntimeResetDate, updating the reset date
// atomically with the reset so a concurrent reader never sees a reset date
// that doesn't match a reset counter.
func (s *State) ResetRuntimeIfNewDay(today string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RuntimeResetDate != today {
		s.RuntimeTodayHrs = 0
		s.RuntimeResetDate = today
	}
}

// applyPower updates Power and the runtime accounting that rides on its
// transitions, and reports whether the value differs from what was already
// stored (the generic "value changed" signal the caller uses to decide
// whether to mark state_seen and emit an event).
//
// power_on_epoch is re-armed whenever the device confirms power==true and
// the epoch is not currently armed — not only on a false→true transition.
// This covers the reconnect case: the epoch is invalidated on link loss
// (see markLinkDown) even though Power itself is left unchanged, so the
// first post-reconnect confirmation that power is still on re-timestamps
// it. Seconds spent link-down are therefore never counted, matching the
// source's behaviour of simply not accounting for time while disconnected.
func (s *State) applyPower(on bool, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := on != s.Power

	if on {
		if !s.powerOnSet {
			s.powerOnAt = now
			s.powerOnSet = true
		}
	} else if s.powerOnSet {
		s.RuntimeTodayHrs += now.Sub(s.powerOnAt).Hours()
		s.powerOnSet = false
	}
	s.Power = on
	return changed
}

// markLinkDown clears link_up and state_seen per the disconnect-hook
// invariant, banking any runtime accrued up to now and invalidating the
// power epoch so the next authenticated power confirmation re-timestamps
// it. Power itself is left unchanged: the device is source of truth and
// will re-announce it once reconnected.
func (s *State) markLinkDown(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LinkUp = false
	s.StateSeen = false
	if s.powerOnSet {
		s.RuntimeTodayHrs += now.Sub(s.powerOnAt).Hours()
		s.powerOnSet = false
	}
}

func (s *State) markLinkUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LinkUp = true
}
