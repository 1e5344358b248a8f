// Package broker adapts the supervisor's command/event contract onto a real
// MQTT broker, wrapping github.com/eclipse/paho.mqtt.golang in the manner of
// the teacher's pkg/transport/mqtt client: broker URI handling, connect/lost
// handlers, and subscribe-on-connect.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wavepump/pumpbridge/internal/config"
	"github.com/wavepump/pumpbridge/internal/pump"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
)

// Dispatcher is the narrow surface the adapter needs from the supervisor:
// hand it a decoded (pump_id, entity, payload) command.
type Dispatcher interface {
	Dispatch(pumpID, entity, payload string)
}

// Adapter is the broker-facing half of the bridge: it owns the paho client,
// subscribes to every pump's command topics, republishes state on events,
// and announces Home Assistant auto-discovery documents.
type Adapter struct {
	cfg        config.BrokerConfig
	pumpIDs    []string
	dispatcher Dispatcher
	logger     *slog.Logger

	mu     sync.RWMutex
	client mqtt.Client
}

// New builds an Adapter. pumpIDs is the full set of configured pump ids,
// known up front so every command topic can be subscribed on connect.
func New(cfg config.BrokerConfig, pumpIDs []string, dispatcher Dispatcher, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{cfg: cfg, pumpIDs: pumpIDs, dispatcher: dispatcher, logger: logger}
}

// Connect dials the broker and, once connected, subscribes to every pump's
// five command topics. Matches spec: "{topic_prefix}/{pump_id}/{entity}/set".
func (a *Adapter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", a.cfg.Host, a.cfg.Port))
	opts.SetClientID(a.cfg.ClientID)
	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
		opts.SetPassword(a.cfg.Password)
	}
	opts.SetConnectTimeout(connectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		a.logger.Info("connected to broker", "host", a.cfg.Host, "port", a.cfg.Port)
		a.subscribeAll(client)
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		a.logger.Warn("broker connection lost, paho will auto-reconnect", "error", err)
	})

	client := mqtt.NewClient(opts)

	finished := make(chan struct{})
	token := client.Connect()
	go func() {
		token.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		if err := token.Error(); err != nil {
			return fmt.Errorf("broker: connect: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	return nil
}

func (a *Adapter) subscribeAll(client mqtt.Client) {
	for _, id := range a.pumpIDs {
		for _, entity := range []string{"power", "feed", "flow", "frequency", "mode"} {
			topic := fmt.Sprintf("%s/%s/%s/set", a.cfg.TopicPrefix, id, entity)
			pumpID, ent := id, entity
			client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
				a.dispatcher.Dispatch(pumpID, ent, string(msg.Payload()))
			})
		}
	}
}

// Disconnect closes the broker connection, waiting up to 250ms for
// in-flight publishes to flush (matches paho's own idiom).
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	client := a.client
	a.client = nil
	a.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}

func (a *Adapter) publish(topic, payload string) {
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil || !client.IsConnected() {
		return
	}
	token := client.Publish(topic, qos, true, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			a.logger.Warn("publish failed", "topic", topic, "error", err)
		}
	}()
}

// PublishState implements supervisor.Broker. connected/state is always
// published; every other topic is withheld until the session has seen a
// pump-originated attribute update (state_seen), so clients never see
// synthesized defaults.
func (a *Adapter) PublishState(pumpID string, snap pump.Snapshot) {
	prefix := fmt.Sprintf("%s/%s", a.cfg.TopicPrefix, pumpID)

	a.publish(prefix+"/connected/state", onOff(snap.LinkUp))
	if !snap.StateSeen {
		return
	}

	a.publish(prefix+"/power/state", onOff(snap.Power))
	a.publish(prefix+"/feed/state", onOff(snap.Feed))
	a.publish(prefix+"/flow/state", fmt.Sprintf("%d", snap.FlowPercent))
	a.publish(prefix+"/frequency/state", fmt.Sprintf("%d", snap.FrequencySeconds))
	a.publish(prefix+"/mode/state", snap.ModeName)
	a.publish(prefix+"/runtime/state", fmt.Sprintf("%.2f", snap.RuntimeTodayHrs))
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
