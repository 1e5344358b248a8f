// Package pump implements the per-device protocol engine: one Session per
// physical pump, wrapping a BLE Link, running the authentication handshake,
// dispatching commands, and reconciling local state against the device's
// own notifications.
package pump

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/wavepump/pumpbridge/internal/codec"
	"github.com/wavepump/pumpbridge/internal/metrics"
)

const (
	authTimeout     = 5 * time.Second
	authPollPeriod  = 100 * time.Millisecond
	reconnectBase   = 5 * time.Second
	reconnectMax    = 300 * time.Second
	reconnectJitter = 0.10
	pumpIndexStep   = 2 * time.Second

	inboxSize = 16
)

// attributes mirrors the codec's (type, attr_hi, attr_lo) addressing table.
var (
	attrPower     = [3]byte{0x00, 0x00, 0x01}
	attrFeed      = [3]byte{0x00, 0x00, 0x04}
	attrMode      = [3]byte{0x00, 0x10, 0x02}
	attrFlow      = [3]byte{0x00, 0x80, 0x00}
	attrFrequency = [3]byte{0x01, 0x00, 0x00}
)

// Session owns one BLE Link and runs the full connect/authenticate/command/
// reconnect state machine for a single pump. Exactly one goroutine (loop)
// mutates serial and attemptID. phase is guarded by phaseMu and is also set
// by Connect and Disconnect on their caller's goroutine; State is reached
// from other goroutines only through its own lock.
type Session struct {
	cfg    Config
	state  *State
	link   Link
	sink   EventSink
	logger *slog.Logger

	inbox chan func()
	done  chan struct{}
	once  sync.Once

	connectMu sync.Mutex

	phaseMu sync.RWMutex
	phase   Phase

	serial    uint32 // touched only inside loop goroutine closures
	attemptID string // touched only inside loop goroutine closures
	seq       atomic.Uint64

	reconnecting    atomic.Bool
	reconnectCancel atomic.Value // func()
}

// NewSession constructs a Session bound to link. The session does not start
// any goroutine until Start is called.
func NewSession(cfg Config, link Link, sink EventSink, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:    cfg,
		state:  &State{},
		link:   link,
		sink:   sink,
		logger: logger.With("pump_id", cfg.ID),
		inbox:  make(chan func(), inboxSize),
		done:   make(chan struct{}),
		// serial starts at zero here and is never reset again: it is
		// scoped to the Session's whole lifetime, not to one connection.
	}
	s.reconnectCancel.Store(func() {})
	return s
}

// Start launches the session's owning goroutines. It does not itself
// connect; the caller (the supervisor, honoring its own startup stagger)
// calls Connect separately.
func (s *Session) Start() {
	go s.loop()
	go s.recvLoop()
}

// State returns the session's mutable state, safe for concurrent reads via
// Snapshot from any goroutine.
func (s *Session) State() *State { return s.state }

// Phase reports the current connection phase.
func (s *Session) Phase() Phase {
	s.phaseMu.RLock()
	defer s.phaseMu.RUnlock()
	return s.phase
}

func (s *Session) setPhase(p Phase) {
	s.phaseMu.Lock()
	s.phase = p
	s.phaseMu.Unlock()
}

// loop is the session's single state-owning goroutine: it drains the inbox
// and runs each posted closure to completion before taking the next one.
func (s *Session) loop() {
	for {
		select {
		case <-s.done:
			return
		case work := <-s.inbox:
			work()
		}
	}
}

// recvLoop forwards inbound notification payloads from the Link onto the
// loop goroutine. It never touches session state directly. The Link's
// channel is fetched again on every pass (and at least every
// authPollPeriod), since a Link hands out a fresh channel per Connect.
func (s *Session) recvLoop() {
	poll := time.NewTicker(authPollPeriod)
	defer poll.Stop()
	for {
		notifications := s.link.Notifications()
		select {
		case <-s.done:
			return
		case <-poll.C:
		case payload, ok := <-notifications:
			if !ok {
				return
			}
			s.postNotification(payload)
		}
	}
}

// post enqueues work onto the loop goroutine, dropping it silently if the
// session has already been stopped.
func (s *Session) post(work func()) {
	select {
	case s.inbox <- work:
	case <-s.done:
	}
}

func (s *Session) postNotification(payload []byte) {
	s.post(func() { s.handleNotification(payload) })
}

// emit sends a state-change event to the sink, stamped with the session's
// current attempt id and a monotonically increasing per-session sequence
// number. Must be called from the loop goroutine so attemptID is stable.
func (s *Session) emit() {
	if s.sink == nil {
		return
	}
	snap := s.state.Snapshot(time.Now())
	metrics.IncStateEvent(s.cfg.ID)
	metrics.SetLinkUp(s.cfg.ID, snap.LinkUp)
	metrics.SetRuntimeTodayHours(s.cfg.ID, snap.RuntimeTodayHrs)

	s.sink.PumpStateChanged(StateChangeEvent{
		PumpID:    s.cfg.ID,
		Snapshot:  snap,
		AttemptID: s.attemptID,
		Seq:       s.seq.Add(1),
		At:        time.Now(),
	})
}

// ---- Connect sequence ----

// Connect performs the connect sequence described by the state machine. It
// may be called concurrently from the supervisor (initial kickoff) and
// from the session's own reconnect loop; connectMu ensures only one
// attempt runs at a time. If the session is already Authenticated it
// returns immediately. A failed attempt schedules the reconnect loop unless
// the session has been stopped (or a reconnect loop is already running).
func (s *Session) Connect(ctx context.Context) (err error) {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()
	defer func() {
		select {
		case <-s.done:
		default:
			if err != nil {
				s.scheduleReconnect()
			}
		}
	}()

	if s.Phase() == PhaseAuthenticated {
		return nil
	}

	attemptID := uuid.NewString()
	log := s.logger.With("attempt_id", attemptID)

	s.setPhase(PhaseConnecting)
	log.Info("connecting")

	if err := s.link.Connect(ctx); err != nil {
		s.setPhase(PhaseIdle)
		log.Warn("connect failed", "error", err)
		metrics.IncConnectAttempt(s.cfg.ID, false)
		return err
	}
	s.link.OnDisconnect(func() { s.onDisconnect() })

	s.setPhase(PhaseSubscribing)

	done := make(chan error, 1)
	s.post(func() {
		s.attemptID = attemptID
		s.setPhase(PhaseAwaitingPasscode)
		err := s.link.WriteWithoutResponse(codec.Build(codec.CmdGetPasscode, nil))
		done <- err
	})

	select {
	case err := <-done:
		if err != nil {
			log.Warn("get_passcode write failed", "error", err)
			s.cleanupFailedConnect()
			return err
		}
	case <-ctx.Done():
		s.cleanupFailedConnect()
		return ctx.Err()
	}

	deadline := time.Now().Add(authTimeout)
	ticker := time.NewTicker(authPollPeriod)
	defer ticker.Stop()

	for {
		if s.Phase() == PhaseAuthenticated {
			log.Info("authenticated")
			metrics.IncConnectAttempt(s.cfg.ID, true)
			return nil
		}
		if time.Now().After(deadline) {
			log.Warn("authentication timeout")
			metrics.IncAuthFailure(s.cfg.ID, "timeout")
			metrics.IncConnectAttempt(s.cfg.ID, false)
			s.cleanupFailedConnect()
			return ErrAuthTimeout
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			s.cleanupFailedConnect()
			return ctx.Err()
		case <-s.done:
			return ErrStopped
		}
	}
}

// cleanupFailedConnect tears down a partially established link and returns
// the session to Idle so the reconnect loop can try again.
func (s *Session) cleanupFailedConnect() {
	s.setPhase(PhaseDisconnecting)
	s.link.OnDisconnect(func() {}) // intentional teardown; don't re-trigger scheduleReconnect
	_ = s.link.Close()
	s.state.markLinkDown(time.Now())
	s.setPhase(PhaseIdle)
}

// handleNotification decodes one inbound frame and drives the handshake or
// attribute-update path. Runs on the loop goroutine.
func (s *Session) handleNotification(payload []byte) {
	frame, err := codec.Parse(payload)
	if err != nil {
		s.logger.Debug("malformed frame dropped", "error", err)
		return
	}

	switch frame.Command {
	case codec.CmdPasscodeResp:
		if s.Phase() != PhaseAwaitingPasscode {
			return
		}
		passcode := codec.PasscodeFromResponse(frame.Payload)
		loginFrame := codec.Build(codec.CmdLogin, passcode)
		s.setPhase(PhaseAwaitingLogin)
		if err := s.link.WriteWithoutResponse(loginFrame); err != nil {
			s.logger.Warn("login write failed", "error", err)
		}

	case codec.CmdLoginResp:
		if s.Phase() != PhaseAwaitingLogin {
			return
		}
		if codec.LoginStatus(frame.Payload) {
			s.setPhase(PhaseAuthenticated)
			s.state.markLinkUp()
			s.emit()
		} else {
			s.logger.Warn("login rejected")
			metrics.IncAuthFailure(s.cfg.ID, "login_rejected")
			s.setPhase(PhaseDisconnecting)
			_ = s.link.Close()
			s.state.markLinkDown(time.Now())
			s.setPhase(PhaseIdle)
			s.emit()
			s.scheduleReconnect()
		}

	case codec.CmdControl:
		note, err := codec.ParseControlNotification(frame.Raw)
		if err != nil {
			s.logger.Debug("control notification too short", "error", err)
			return
		}
		s.applyAttributeUpdate(note)

	case codec.CmdControlAck:
		s.logger.Debug("command acknowledged")
	}
}

func (s *Session) applyAttributeUpdate(note codec.ControlNotification) {
	triple := [3]byte{note.Type, note.AttrHi, note.AttrLo}
	changed := false
	now := time.Now()

	switch triple {
	case attrPower:
		changed = s.state.applyPower(note.Value != 0, now)
	case attrFeed:
		s.state.mu.Lock()
		if s.state.Feed != (note.Value != 0) {
			s.state.Feed = note.Value != 0
			changed = true
		}
		s.state.mu.Unlock()
	case attrMode:
		s.state.mu.Lock()
		if s.state.Mode != note.Value {
			s.state.Mode = note.Value
			changed = true
		}
		s.state.mu.Unlock()
	case attrFlow:
		s.state.mu.Lock()
		if s.state.FlowPercent != note.Value {
			s.state.FlowPercent = note.Value
			changed = true
		}
		s.state.mu.Unlock()
	case attrFrequency:
		s.state.mu.Lock()
		if s.state.FrequencySeconds != note.Value {
			s.state.FrequencySeconds = note.Value
			changed = true
		}
		s.state.mu.Unlock()
	default:
		return
	}

	if changed {
		s.state.mu.Lock()
		s.state.StateSeen = true
		s.state.mu.Unlock()
		s.emit()
	}
}

// ---- Disconnect hook & reconnect loop ----

// onDisconnect is the BLE stack's disconnect callback. It may run on any
// goroutine, so it only ever posts work onto the loop goroutine.
func (s *Session) onDisconnect() {
	s.post(func() {
		s.logger.Warn("link down")
		s.setPhase(PhaseIdle)
		s.state.markLinkDown(time.Now())
		s.emit()
		s.scheduleReconnect()
	})
}

// scheduleReconnect starts the reconnect loop goroutine, unless one is
// already in flight. Must be called from the loop goroutine.
func (s *Session) scheduleReconnect() {
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}
	metrics.IncReconnect(s.cfg.ID)
	ctx, cancel := context.WithCancel(context.Background())
	s.reconnectCancel.Store(cancel)
	go s.reconnectLoop(ctx)
}

// reconnectLoop implements the staggered-then-exponential-backoff retry
// described by the session's reconnect design. It exits cleanly whenever
// the session is stopped or the connect attempt succeeds.
func (s *Session) reconnectLoop(ctx context.Context) {
	defer s.reconnecting.Store(false)

	initial := time.Duration(s.cfg.PumpIndex) * pumpIndexStep
	if !s.sleep(ctx, initial) {
		return
	}

	delay := reconnectBase
	for {
		if !s.sleep(ctx, delay) {
			return
		}

		select {
		case <-s.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := s.Connect(ctx); err == nil {
			return
		}

		jitter := time.Duration(rand.Float64() * float64(delay) * reconnectJitter)
		delay = delay*2 + jitter
		if delay > reconnectMax {
			delay = reconnectMax
		}
	}
}

// sleep waits for d, returning false if the session was stopped or the
// context was cancelled while waiting.
func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	}
}

// ---- Teardown ----

// Disconnect stops the session: any in-flight reconnect loop is cancelled,
// the link is closed (errors swallowed, matching the source's best-effort
// cleanup), and the session returns to Idle. Safe to call more than once.
func (s *Session) Disconnect() {
	s.once.Do(func() {
		close(s.done)
	})
	if cancel, ok := s.reconnectCancel.Load().(func()); ok {
		cancel()
	}
	s.link.OnDisconnect(func() {})
	_ = s.link.Close()
	s.setPhase(PhaseIdle)
	s.state.markLinkDown(time.Now())
}

// ---- Command path ----

// do marshals fn onto the loop goroutine and waits for its result, bounded
// by ctx and the session's own lifetime.
func (s *Session) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	select {
	case s.inbox <- func() { result <- fn() }:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

func (s *Session) ready() bool {
	return s.Phase() == PhaseAuthenticated && s.link.IsConnected()
}

// writeAttribute builds a control frame for the given attribute/value,
// writes it, and advances the serial number only once the write succeeds.
// Must run on the loop goroutine (called only from within do's fn).
func (s *Session) writeAttribute(entity string, attr [3]byte, value byte) error {
	if !s.ready() {
		metrics.IncCommand(s.cfg.ID, entity, false)
		return ErrNotConnected
	}

	p0 := make([]byte, 11)
	p0[0] = 0x11
	p0[7] = attr[0]
	p0[8] = attr[1]
	p0[9] = attr[2]
	p0[10] = value

	payload := make([]byte, 0, 15)
	serialBuf := [4]byte{}
	putUint32(serialBuf[:], s.serial+1)
	payload = append(payload, serialBuf[:]...)
	payload = append(payload, p0...)

	frame := codec.Build(codec.CmdControl, payload)
	if err := s.link.WriteWithoutResponse(frame); err != nil {
		metrics.IncCommand(s.cfg.ID, entity, false)
		return err
	}
	s.serial++
	metrics.IncCommand(s.cfg.ID, entity, true)
	return nil
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

// SetPower issues a power command. State is not updated speculatively: the
// device's own echo notification is what eventually flips State.Power.
func (s *Session) SetPower(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		return s.writeAttribute("power", attrPower, boolByte(on))
	})
}

// SetFeed issues a feed command.
func (s *Session) SetFeed(ctx context.Context, on bool) error {
	return s.do(ctx, func() error {
		return s.writeAttribute("feed", attrFeed, boolByte(on))
	})
}

// SetFlow clamps v to the configured bounds and issues a flow command.
func (s *Session) SetFlow(ctx context.Context, v int) error {
	return s.do(ctx, func() error {
		return s.writeAttribute("flow", attrFlow, s.cfg.ClampFlow(v))
	})
}

// SetFrequency clamps v to the configured bounds and issues a frequency
// command.
func (s *Session) SetFrequency(ctx context.Context, v int) error {
	return s.do(ctx, func() error {
		return s.writeAttribute("frequency", attrFrequency, s.cfg.ClampFrequency(v))
	})
}

// SetMode issues a mode command, rejecting any code outside the known set
// without writing anything.
func (s *Session) SetMode(ctx context.Context, code uint8) error {
	return s.do(ctx, func() error {
		if !IsKnownMode(code) {
			metrics.IncCommand(s.cfg.ID, "mode", false)
			return ErrInvalidMode
		}
		return s.writeAttribute("mode", attrMode, code)
	})
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
