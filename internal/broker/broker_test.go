package broker

import (
	"encoding/json"
	"testing"

	"github.com/wavepump/pumpbridge/internal/config"
	"github.com/wavepump/pumpbridge/internal/pump"
)

func TestOnOff(t *testing.T) {
	if onOff(true) != "ON" {
		t.Fatal("expected ON for true")
	}
	if onOff(false) != "OFF" {
		t.Fatal("expected OFF for false")
	}
}

func TestKnownModeNamesMatchesModeTable(t *testing.T) {
	names := knownModeNames()
	want := []string{"Classic Wave", "Cross-flow", "Sine Wave", "Random", "Constant"}
	if len(names) != len(want) {
		t.Fatalf("expected %d mode names, got %d: %v", len(want), len(names), names)
	}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("mode name at %d = %q, want %q", i, names[i], n)
		}
	}
}

// Nothing panics and nothing is sent when no broker connection exists yet;
// PublishState/PublishDiscovery are safe no-ops before Connect succeeds.
func TestPublishBeforeConnectIsNoop(t *testing.T) {
	a := New(config.BrokerConfig{TopicPrefix: "jebao", DiscoveryPrefix: "homeassistant"}, []string{"pump1"}, nopDispatcher{}, nil)

	a.PublishState("pump1", pump.Snapshot{LinkUp: true, StateSeen: true, Power: true})
	a.PublishDiscovery(pump.Config{ID: "pump1", DisplayName: "Pump 1"})
}

func TestDiscoveryDocOmitsEmptyOptionalFields(t *testing.T) {
	doc := discoveryDoc{
		Name:       "Connected",
		StateTopic: "jebao/pump1/connected/state",
		PayloadOn:  "ON",
		PayloadOff: "OFF",
		UniqueID:   "jebao_pump1_connected",
	}
	body, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, absent := range []string{"command_topic", "min", "max", "options", "device_class"} {
		if _, ok := decoded[absent]; ok {
			t.Errorf("expected %q to be omitted from a binary_sensor doc, found in %v", absent, decoded)
		}
	}
	if decoded["payload_on"] != "ON" {
		t.Errorf("expected payload_on to survive marshaling, got %v", decoded["payload_on"])
	}
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(pumpID, entity, payload string) {}
