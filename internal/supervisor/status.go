package supervisor

import "time"

// PumpStatus is one session's status, safe to marshal to JSON for the REST
// handlers.
type PumpStatus struct {
	ID       string    `json:"id"`
	Phase    string    `json:"phase"`
	LinkUp   bool      `json:"link_up"`
	Power    bool      `json:"power"`
	Feed     bool      `json:"feed"`
	Mode     string    `json:"mode"`
	Flow     uint8     `json:"flow_percent"`
	Freq     uint8     `json:"frequency_seconds"`
	RuntimeH float64   `json:"runtime_today_hours"`
	At       time.Time `json:"at"`
}

// Status is the whole-process snapshot assembled the same way the
// teacher's Gateway.Status()/Engine.Status() do: current state per session
// plus a timestamp and uptime.
type Status struct {
	Pumps     []PumpStatus `json:"pumps"`
	StartedAt time.Time    `json:"started_at"`
	Uptime    time.Duration `json:"uptime"`
}

// Status returns a point-in-time snapshot across every owned session.
func (sv *Supervisor) Status() Status {
	now := time.Now()
	st := Status{
		Pumps:     make([]PumpStatus, 0, len(sv.order)),
		StartedAt: sv.startedAt,
	}
	if !sv.startedAt.IsZero() {
		st.Uptime = now.Sub(sv.startedAt)
	}

	for _, id := range sv.order {
		sess := sv.sessions[id]
		snap := sess.State().Snapshot(now)
		st.Pumps = append(st.Pumps, PumpStatus{
			ID:       id,
			Phase:    sess.Phase().String(),
			LinkUp:   snap.LinkUp,
			Power:    snap.Power,
			Feed:     snap.Feed,
			Mode:     snap.ModeName,
			Flow:     snap.FlowPercent,
			Freq:     snap.FrequencySeconds,
			RuntimeH: snap.RuntimeTodayHrs,
			At:       now,
		})
	}
	return st
}

// PumpStatusByID returns one pump's status, or false if the id is unknown.
func (sv *Supervisor) PumpStatusByID(id string) (PumpStatus, bool) {
	sess, ok := sv.sessions[id]
	if !ok {
		return PumpStatus{}, false
	}
	now := time.Now()
	snap := sess.State().Snapshot(now)
	return PumpStatus{
		ID:       id,
		Phase:    sess.Phase().String(),
		LinkUp:   snap.LinkUp,
		Power:    snap.Power,
		Feed:     snap.Feed,
		Mode:     snap.ModeName,
		Flow:     snap.FlowPercent,
		Freq:     snap.FrequencySeconds,
		RuntimeH: snap.RuntimeTodayHrs,
		At:       now,
	}, true
}
