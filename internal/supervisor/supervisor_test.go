package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/wavepump/pumpbridge/internal/pump"
)

// fakeLink is a no-op Link: Connect always succeeds immediately, nothing is
// ever written or notified. It's enough to exercise supervisor wiring
// without driving a full pump handshake.
type fakeLink struct {
	mu        sync.Mutex
	connected bool
	notify    chan []byte
}

func newFakeLink() *fakeLink { return &fakeLink{notify: make(chan []byte)} }

func (f *fakeLink) Connect(ctx context.Context) error {
	f.mu.Lock()
	f.connected = true
	f.mu.Unlock()
	return nil
}
func (f *fakeLink) Close() error {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
	return nil
}
func (f *fakeLink) WriteWithoutResponse(frame []byte) error { return nil }
func (f *fakeLink) Notifications() <-chan []byte            { return f.notify }
func (f *fakeLink) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}
func (f *fakeLink) OnDisconnect(cb func()) {}

type fakeBroker struct {
	mu        sync.Mutex
	connected bool
	discovery []string
	published []string
}

func (b *fakeBroker) Connect(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = true
	return nil
}
func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}
func (b *fakeBroker) PublishDiscovery(cfg pump.Config) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discovery = append(b.discovery, cfg.ID)
}
func (b *fakeBroker) PublishState(pumpID string, snap pump.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, pumpID)
}
func (b *fakeBroker) publishCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func testConfigs(n int) []pump.Config {
	cfgs := make([]pump.Config, n)
	for i := range cfgs {
		cfgs[i] = pump.Config{DisplayName: "Pump", MAC: "00:00:00:00:00:00"}
		cfgs[i].ApplyDefaults()
		if i > 0 {
			cfgs[i].ID = cfgs[i].ID + string(rune('a'+i))
		}
	}
	return cfgs
}

func TestStartConnectsBrokerAndAnnouncesDiscovery(t *testing.T) {
	broker := &fakeBroker{}
	cfgs := testConfigs(1)
	sv := New(cfgs, func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	if err := sv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sv.Stop()

	if !broker.connected {
		t.Fatal("expected broker to be connected after Start")
	}
	if len(broker.discovery) != 1 || broker.discovery[0] != cfgs[0].ID {
		t.Fatalf("expected discovery announced for %s, got %v", cfgs[0].ID, broker.discovery)
	}
}

func TestDispatchUnknownPumpIDIsDropped(t *testing.T) {
	broker := &fakeBroker{}
	sv := New(testConfigs(1), func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	// Should not panic and should not touch any session.
	sv.Dispatch("does-not-exist", "power", "on")
}

func TestDispatchUnknownEntityIsDroppedSilently(t *testing.T) {
	broker := &fakeBroker{}
	cfgs := testConfigs(1)
	sv := New(cfgs, func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	sv.Dispatch(cfgs[0].ID, "colour", "red")
}

func TestParseTruthy(t *testing.T) {
	cases := map[string]bool{
		"on": true, "ON": true, " true ": true, "1": true,
		"off": false, "0": false, "garbage": false,
	}
	for in, want := range cases {
		if got := parseTruthy(in); got != want {
			t.Errorf("parseTruthy(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDecimalFloatPermissive(t *testing.T) {
	v, ok := parseDecimal("55.7")
	if !ok || v != 55 {
		t.Fatalf("parseDecimal(55.7) = %d, %v, want 55, true", v, ok)
	}
	if _, ok := parseDecimal("not-a-number"); ok {
		t.Fatal("expected malformed payload to fail parse")
	}
}

func TestStatusReflectsSessionState(t *testing.T) {
	broker := &fakeBroker{}
	cfgs := testConfigs(1)
	sv := New(cfgs, func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	st := sv.Status()
	if len(st.Pumps) != 1 {
		t.Fatalf("expected 1 pump in status, got %d", len(st.Pumps))
	}
	if st.Pumps[0].ID != cfgs[0].ID {
		t.Fatalf("expected pump id %s, got %s", cfgs[0].ID, st.Pumps[0].ID)
	}

	if _, ok := sv.PumpStatusByID("missing"); ok {
		t.Fatal("expected PumpStatusByID to report unknown id")
	}
}

func TestStopIsIdempotentAndClosesBroker(t *testing.T) {
	broker := &fakeBroker{}
	sv := New(testConfigs(2), func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	if err := sv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sv.Stop()
	sv.Stop() // a second Stop must not panic

	if broker.connected {
		t.Fatal("expected broker disconnected after Stop")
	}
}

func TestEventFanOutReachesAllSinks(t *testing.T) {
	broker := &fakeBroker{}
	cfgs := testConfigs(1)
	sv := New(cfgs, func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	received := make(chan pump.StateChangeEvent, 1)
	sv.AddSink(pump.EventSinkFunc(func(e pump.StateChangeEvent) { received <- e }))

	sv.PumpStateChanged(pump.StateChangeEvent{PumpID: cfgs[0].ID, At: time.Now()})

	if broker.publishCount() != 1 {
		t.Fatalf("expected broker to receive 1 publish, got %d", broker.publishCount())
	}
	select {
	case e := <-received:
		if e.PumpID != cfgs[0].ID {
			t.Fatalf("unexpected pump id %s", e.PumpID)
		}
	case <-time.After(time.Second):
		t.Fatal("extra sink never received the event")
	}
}

func TestEventFanOutSurvivesPanickingSink(t *testing.T) {
	broker := &fakeBroker{}
	cfgs := testConfigs(1)
	sv := New(cfgs, func(pump.Config) pump.Link { return newFakeLink() }, broker, nil)

	sv.AddSink(pump.EventSinkFunc(func(pump.StateChangeEvent) { panic("boom") }))

	sv.PumpStateChanged(pump.StateChangeEvent{PumpID: cfgs[0].ID, At: time.Now()})

	if broker.publishCount() != 1 {
		t.Fatalf("expected broker publish despite panicking sink, got %d", broker.publishCount())
	}
}
