// Package supervisor owns the set of pump sessions for one process, staggers
// their startup, routes commands to the right session, and fans out
// state-change events to the broker adapter and any other subscriber.
//
// Modeled on the teacher's core.Engine/core.Gateway orchestration shape:
// ordered startup, ordered shutdown, one subsystem's failure never blocks
// cleanup of the others.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wavepump/pumpbridge/internal/pump"
)

const (
	startupStagger    = 2 * time.Second
	republishInterval = 60 * time.Second
	commandTimeout    = 5 * time.Second
)

// LinkFactory builds the BLE link for one pump configuration. Supplied by
// the caller (cmd/pumpbridge) so the supervisor never imports internal/ble
// directly and stays testable against fakes.
type LinkFactory func(pump.Config) pump.Link

// Broker is the narrow surface the supervisor needs from the broker
// adapter: connect/disconnect the underlying client, announce each pump via
// auto-discovery, and republish its retained state topics.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect()
	PublishDiscovery(cfg pump.Config)
	PublishState(pumpID string, snap pump.Snapshot)
}

// Supervisor owns every pump.Session for the process and the broker
// connection they're fronted by.
type Supervisor struct {
	broker Broker
	logger *slog.Logger

	order    []string
	sessions map[string]*pump.Session
	configs  map[string]pump.Config

	extraSinks []pump.EventSink
	sinkMu     sync.RWMutex

	republishStop chan struct{}
	republishDone chan struct{}

	startedAt time.Time
}

// New builds a Supervisor for configs, in configuration order. Sessions are
// constructed (via linkFactory) but not started; call Start to run them.
func New(configs []pump.Config, linkFactory LinkFactory, broker Broker, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	sv := &Supervisor{
		broker:   broker,
		logger:   logger,
		order:    make([]string, 0, len(configs)),
		sessions: make(map[string]*pump.Session, len(configs)),
		configs:  make(map[string]pump.Config, len(configs)),
	}

	for i, cfg := range configs {
		cfg.PumpIndex = i
		link := linkFactory(cfg)
		sess := pump.NewSession(cfg, link, sv, logger)
		sv.order = append(sv.order, cfg.ID)
		sv.sessions[cfg.ID] = sess
		sv.configs[cfg.ID] = cfg
	}
	return sv
}

// AddSink registers an additional EventSink (e.g. the websocket status
// stream) to receive every state-change event alongside the broker.
func (sv *Supervisor) AddSink(sink pump.EventSink) {
	sv.sinkMu.Lock()
	defer sv.sinkMu.Unlock()
	sv.extraSinks = append(sv.extraSinks, sink)
}

// PumpStateChanged implements pump.EventSink. It forwards every event to
// the broker adapter and to any sink registered with AddSink. The
// supervisor itself holds no content-level state beyond the sessions' own.
func (sv *Supervisor) PumpStateChanged(evt pump.StateChangeEvent) {
	sv.broker.PublishState(evt.PumpID, evt.Snapshot)

	sv.sinkMu.RLock()
	sinks := sv.extraSinks
	sv.sinkMu.RUnlock()
	for _, sink := range sinks {
		sv.safeForward(sink, evt)
	}
}

// safeForward recovers from a panicking sink so one bad subscriber can
// never take down event delivery to the rest.
func (sv *Supervisor) safeForward(sink pump.EventSink, evt pump.StateChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			sv.logger.Error("event sink panicked", "pump_id", evt.PumpID, "panic", r)
		}
	}()
	sink.PumpStateChanged(evt)
}

// Start connects the broker, announces every pump via discovery, kicks off
// each session's initial connect with a staggered gap, and starts the
// periodic republish timer. It returns once every session's connect has
// been kicked off (not once they've all succeeded).
func (sv *Supervisor) Start(ctx context.Context) error {
	if err := sv.broker.Connect(ctx); err != nil {
		return err
	}

	for _, id := range sv.order {
		sv.broker.PublishDiscovery(sv.configs[id])
	}

	sv.startedAt = time.Now()

	for i, id := range sv.order {
		sess := sv.sessions[id]
		sess.Start()
		go func(id string, sess *pump.Session) {
			if err := sess.Connect(ctx); err != nil {
				sv.logger.Warn("initial connect failed, reconnect loop will retry", "pump_id", id, "error", err)
			}
		}(id, sess)

		if i < len(sv.order)-1 {
			select {
			case <-time.After(startupStagger):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	sv.republishStop = make(chan struct{})
	sv.republishDone = make(chan struct{})
	go sv.republishLoop()

	return nil
}

// republishLoop republishes current state for every link-up session on a
// fixed interval, so a broker restart or a missed retained message never
// leaves a client stuck with stale state indefinitely.
func (sv *Supervisor) republishLoop() {
	defer close(sv.republishDone)
	ticker := time.NewTicker(republishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sv.republishStop:
			return
		case <-ticker.C:
			now := time.Now()
			for _, id := range sv.order {
				sess := sv.sessions[id]
				snap := sess.State().Snapshot(now)
				if snap.LinkUp {
					sv.broker.PublishState(id, snap)
				}
			}
		}
	}
}

// Stop stops the republish timer, disconnects every session in parallel,
// waits for all of them, and closes the broker connection last. Safe to
// call more than once.
func (sv *Supervisor) Stop() {
	if sv.republishStop != nil {
		close(sv.republishStop)
		<-sv.republishDone
		sv.republishStop = nil
	}

	var wg sync.WaitGroup
	for _, id := range sv.order {
		sess := sv.sessions[id]
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess.Disconnect()
		}()
	}
	wg.Wait()

	sv.broker.Disconnect()
}
