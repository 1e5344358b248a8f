package broker

import (
	"encoding/json"
	"fmt"

	"github.com/wavepump/pumpbridge/internal/pump"
)

// deviceInfo is the HA "device" block shared by every entity belonging to
// one pump, so Home Assistant groups them under a single device card.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

// discoveryDoc is a generic HA MQTT discovery payload; fields left at their
// zero value are omitted, matching each component's actual requirements.
type discoveryDoc struct {
	Name              string     `json:"name"`
	CommandTopic      string     `json:"command_topic,omitempty"`
	StateTopic        string     `json:"state_topic"`
	PayloadOn         string     `json:"payload_on,omitempty"`
	PayloadOff        string     `json:"payload_off,omitempty"`
	Min               int        `json:"min,omitempty"`
	Max               int        `json:"max,omitempty"`
	Step              int        `json:"step,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Options           []string   `json:"options,omitempty"`
	Icon              string     `json:"icon,omitempty"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	Device            deviceInfo `json:"device"`
	UniqueID          string     `json:"unique_id"`
}

// PublishDiscovery implements supervisor.Broker: it announces every entity
// Home Assistant should auto-discover for cfg, following the component
// shapes (switch/number/sensor/select/binary_sensor) the original bridge
// produced.
func (a *Adapter) PublishDiscovery(cfg pump.Config) {
	id := cfg.ID
	prefix := a.cfg.TopicPrefix
	device := deviceInfo{
		Identifiers:  []string{"jebao_" + id},
		Name:         cfg.DisplayName,
		Manufacturer: "Jebao",
		Model:        "DMP-65",
	}

	a.announce("switch", id, "power", discoveryDoc{
		Name:         "Power",
		CommandTopic: fmt.Sprintf("%s/%s/power/set", prefix, id),
		StateTopic:   fmt.Sprintf("%s/%s/power/state", prefix, id),
		PayloadOn:    "ON",
		PayloadOff:   "OFF",
		Icon:         "mdi:power",
		Device:       device,
		UniqueID:     "jebao_" + id + "_power",
	})

	a.announce("switch", id, "feed", discoveryDoc{
		Name:         "Feed Mode",
		CommandTopic: fmt.Sprintf("%s/%s/feed/set", prefix, id),
		StateTopic:   fmt.Sprintf("%s/%s/feed/state", prefix, id),
		PayloadOn:    "ON",
		PayloadOff:   "OFF",
		Icon:         "mdi:fish",
		Device:       device,
		UniqueID:     "jebao_" + id + "_feed",
	})

	a.announce("number", id, "flow", discoveryDoc{
		Name:              "Flow",
		CommandTopic:      fmt.Sprintf("%s/%s/flow/set", prefix, id),
		StateTopic:        fmt.Sprintf("%s/%s/flow/state", prefix, id),
		Min:               int(cfg.FlowMin),
		Max:               int(cfg.FlowMax),
		Step:              1,
		UnitOfMeasurement: "%",
		Icon:              "mdi:waves",
		Device:            device,
		UniqueID:          "jebao_" + id + "_flow",
	})

	a.announce("sensor", id, "flow_sensor", discoveryDoc{
		Name:              "Flow Level",
		StateTopic:        fmt.Sprintf("%s/%s/flow/state", prefix, id),
		UnitOfMeasurement: "%",
		Icon:              "mdi:waves",
		Device:            device,
		UniqueID:          "jebao_" + id + "_flow_sensor",
		StateClass:        "measurement",
	})

	a.announce("number", id, "frequency", discoveryDoc{
		Name:              "Frequency",
		CommandTopic:      fmt.Sprintf("%s/%s/frequency/set", prefix, id),
		StateTopic:        fmt.Sprintf("%s/%s/frequency/state", prefix, id),
		Min:               int(cfg.FrequencyMin),
		Max:               int(cfg.FrequencyMax),
		Step:              1,
		UnitOfMeasurement: "s",
		Icon:              "mdi:timer",
		Device:            device,
		UniqueID:          "jebao_" + id + "_frequency",
	})

	a.announce("sensor", id, "frequency_sensor", discoveryDoc{
		Name:              "Frequency Level",
		StateTopic:        fmt.Sprintf("%s/%s/frequency/state", prefix, id),
		UnitOfMeasurement: "s",
		Icon:              "mdi:timer",
		Device:            device,
		UniqueID:          "jebao_" + id + "_frequency_sensor",
		StateClass:        "measurement",
	})

	a.announce("sensor", id, "runtime", discoveryDoc{
		Name:              "Runtime Today",
		StateTopic:        fmt.Sprintf("%s/%s/runtime/state", prefix, id),
		UnitOfMeasurement: "h",
		Icon:              "mdi:timer-outline",
		Device:            device,
		UniqueID:          "jebao_" + id + "_runtime",
		StateClass:        "total_increasing",
	})

	a.announce("select", id, "mode", discoveryDoc{
		Name:         "Mode",
		CommandTopic: fmt.Sprintf("%s/%s/mode/set", prefix, id),
		StateTopic:   fmt.Sprintf("%s/%s/mode/state", prefix, id),
		Options:      knownModeNames(),
		Icon:         "mdi:waves-arrow-right",
		Device:       device,
		UniqueID:     "jebao_" + id + "_mode",
	})

	a.announce("binary_sensor", id, "connected", discoveryDoc{
		Name:        "Connected",
		StateTopic:  fmt.Sprintf("%s/%s/connected/state", prefix, id),
		PayloadOn:   "ON",
		PayloadOff:  "OFF",
		DeviceClass: "connectivity",
		Device:      device,
		UniqueID:    "jebao_" + id + "_connected",
	})

	a.logger.Info("published discovery", "pump_id", id)
}

// announce publishes one discovery document to
// {discovery_prefix}/{component}/jebao_{pump_id}/{entity}/config, retained.
func (a *Adapter) announce(component, pumpID, entity string, doc discoveryDoc) {
	topic := fmt.Sprintf("%s/%s/jebao_%s/%s/config", a.cfg.DiscoveryPrefix, component, pumpID, entity)
	body, err := json.Marshal(doc)
	if err != nil {
		a.logger.Error("marshal discovery document failed", "topic", topic, "error", err)
		return
	}
	a.publish(topic, string(body))
}

func knownModeNames() []string {
	names := make([]string, 0, 5)
	for _, code := range []uint8{
		pump.ModeClassicWave, pump.ModeCrossFlow, pump.ModeSineWave, pump.ModeRandom, pump.ModeConstant,
	} {
		names = append(names, pump.ModeName(code))
	}
	return names
}
