package supervisor

import (
	"context"
	"strconv"
	"strings"

	"github.com/wavepump/pumpbridge/internal/pump"
)

// Dispatch parses an inbound command message from the broker adapter and
// issues it against the named pump's session. Unknown pump ids and unknown
// entities are dropped with a warning/debug log respectively; malformed
// payloads are logged and dropped. The session call itself runs on its own
// goroutine bounded by commandTimeout, since the caller is typically the
// MQTT client's own callback goroutine and must not block on it.
func (sv *Supervisor) Dispatch(pumpID, entity, payload string) {
	sess, ok := sv.sessions[pumpID]
	if !ok {
		sv.logger.Warn("command for unknown pump id dropped", "pump_id", pumpID, "entity", entity)
		return
	}

	switch entity {
	case "power":
		sv.run(pumpID, "power", func(ctx context.Context) error { return sess.SetPower(ctx, parseTruthy(payload)) })

	case "feed":
		sv.run(pumpID, "feed", func(ctx context.Context) error { return sess.SetFeed(ctx, parseTruthy(payload)) })

	case "flow":
		v, ok := parseDecimal(payload)
		if !ok {
			sv.logger.Warn("malformed flow payload dropped", "pump_id", pumpID, "payload", payload)
			return
		}
		sv.run(pumpID, "flow", func(ctx context.Context) error { return sess.SetFlow(ctx, v) })

	case "frequency":
		v, ok := parseDecimal(payload)
		if !ok {
			sv.logger.Warn("malformed frequency payload dropped", "pump_id", pumpID, "payload", payload)
			return
		}
		sv.run(pumpID, "frequency", func(ctx context.Context) error { return sess.SetFrequency(ctx, v) })

	case "mode":
		code, ok := pump.ModeFromName(payload)
		if !ok {
			sv.logger.Warn("unrecognised mode name dropped", "pump_id", pumpID, "payload", payload)
			return
		}
		sv.run(pumpID, "mode", func(ctx context.Context) error { return sess.SetMode(ctx, code) })

	default:
		sv.logger.Debug("command for unrecognised entity dropped", "pump_id", pumpID, "entity", entity)
	}
}

// run issues fn against the session on its own goroutine, bounded by
// commandTimeout, and logs the outcome. It never blocks the caller.
func (sv *Supervisor) run(pumpID, entity string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			sv.logger.Warn("command failed", "pump_id", pumpID, "entity", entity, "error", err)
		}
	}()
}

// parseTruthy implements the power/feed payload rule: truthy iff the
// lowercase, whitespace-trimmed payload is one of "on", "true", "1".
// Anything else is falsy; there is no malformed case for this entity.
func parseTruthy(payload string) bool {
	switch strings.ToLower(strings.TrimSpace(payload)) {
	case "on", "true", "1":
		return true
	default:
		return false
	}
}

// parseDecimal implements the flow/frequency payload rule: a
// float-permissive parse truncated to its decimal integer part. Clamping to
// the pump's configured bounds happens in the session, not here.
func parseDecimal(payload string) (int, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, false
	}
	return int(f), true
}
