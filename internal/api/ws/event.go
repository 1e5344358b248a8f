package ws

import (
	"encoding/json"
	"time"

	"github.com/wavepump/pumpbridge/internal/pump"
)

// wireEvent is the JSON line shape streamed to websocket clients. Fields
// mirror pump.StateChangeEvent/Snapshot but are named the way an outside
// consumer expects, independent of the internal Go struct layout.
type wireEvent struct {
	PumpID          string    `json:"pump_id"`
	At              time.Time `json:"at"`
	Seq             uint64    `json:"seq"`
	Power           bool      `json:"power"`
	Feed            bool      `json:"feed"`
	Mode            string    `json:"mode"`
	FlowPercent     uint8     `json:"flow_percent"`
	FrequencySecs   uint8     `json:"frequency_seconds"`
	LinkUp          bool      `json:"link_up"`
	StateSeen       bool      `json:"state_seen"`
	RuntimeTodayHrs float64   `json:"runtime_today_hours"`
}

func marshalEvent(evt pump.StateChangeEvent) ([]byte, error) {
	return json.Marshal(wireEvent{
		PumpID:          evt.PumpID,
		At:              evt.At,
		Seq:             evt.Seq,
		Power:           evt.Snapshot.Power,
		Feed:            evt.Snapshot.Feed,
		Mode:            evt.Snapshot.ModeName,
		FlowPercent:     evt.Snapshot.FlowPercent,
		FrequencySecs:   evt.Snapshot.FrequencySeconds,
		LinkUp:          evt.Snapshot.LinkUp,
		StateSeen:       evt.Snapshot.StateSeen,
		RuntimeTodayHrs: evt.Snapshot.RuntimeTodayHrs,
	})
}
