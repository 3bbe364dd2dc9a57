// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/Thermoquad/lilliput-bridge/pkg/host"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MQTTManager publishes to and subscribes on a broker
type MQTTManager interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// mqttManager implements MQTTManager using the paho MQTT client
type mqttManager struct {
	client mqtt.Client
}

func (m *mqttManager) Publish(topic string, qos byte, retained bool, payload interface{}) error {
	var payloadBytes []byte
	switch v := payload.(type) {
	case string:
		payloadBytes = []byte(v)
	case []byte:
		payloadBytes = v
	default:
		var err error
		payloadBytes, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
	}
	token := m.client.Publish(topic, qos, retained, payloadBytes)
	token.Wait()
	return token.Error()
}

func (m *mqttManager) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	token := m.client.Subscribe(topic, qos, handler)
	token.Wait()
	return token.Error()
}

// mqttBridge mirrors a Registry onto retained topics and runs presets,
// actions and commands received on command topics.
//
// Topics, below prefix:
//
//	availability              online / offline (retained, last will)
//	status                    {"status":..,"message":..} (retained)
//	variable/<name>           formatted variable value (retained)
//	preset/<id>/active        ON / OFF (retained)
//	preset/<id>/press         press a preset (any payload)
//	action/<id>/set           run an action, payload is a JSON options object
//	command                   send a custom command, payload is the text
type mqttBridge struct {
	registry *host.Registry
	ready    func() bool
	prefix   string
	logger   zerolog.Logger

	mu        sync.Mutex
	manager   MQTTManager
	published map[string]string
}

func newMQTTBridge(registry *host.Registry, ready func() bool, prefix string) *mqttBridge {
	return &mqttBridge{
		registry:  registry,
		ready:     ready,
		prefix:    strings.TrimSuffix(prefix, "/"),
		logger:    log.With().Str("component", "mqtt").Logger(),
		published: make(map[string]string),
	}
}

func (b *mqttBridge) topic(parts ...string) string {
	return b.prefix + "/" + strings.Join(parts, "/")
}

// AvailabilityTopic is used for the last will
func (b *mqttBridge) AvailabilityTopic() string {
	return b.topic("availability")
}

// onConnect subscribes to the command topics and republishes everything.
// It runs on every (re)connect.
func (b *mqttBridge) onConnect(ctx context.Context, m MQTTManager) error {
	b.mu.Lock()
	b.manager = m
	b.published = make(map[string]string)
	b.mu.Unlock()

	subscriptions := map[string]mqtt.MessageHandler{
		b.topic("preset", "+", "press"): b.presetHandler(ctx),
		b.topic("action", "+", "set"):   b.actionHandler(ctx),
		b.topic("command"):              b.commandHandler(ctx),
	}
	for topic, handler := range subscriptions {
		if err := m.Subscribe(topic, 0, handler); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}

	if err := m.Publish(b.AvailabilityTopic(), 0, true, "online"); err != nil {
		return err
	}
	b.publishState()
	return nil
}

// run publishes registry changes until ctx ends
func (b *mqttBridge) run(ctx context.Context) {
	changes, stop := b.registry.Subscribe()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			b.publishState()
		}
	}
}

// publishState publishes every retained topic whose payload changed
func (b *mqttBridge) publishState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.manager == nil {
		return
	}

	status, message := b.registry.Status()
	statusPayload, _ := json.Marshal(map[string]string{"status": string(status), "message": message})
	b.publishLocked(b.topic("status"), string(statusPayload))

	for name, value := range b.registry.Variables() {
		b.publishLocked(b.topic("variable", name), host.FormatVariable(value))
	}

	for _, p := range b.registry.Presets() {
		state := "OFF"
		if b.registry.PresetActive(p.ID) {
			state = "ON"
		}
		b.publishLocked(b.topic("preset", p.ID, "active"), state)
	}
}

func (b *mqttBridge) publishLocked(topic, payload string) {
	if last, ok := b.published[topic]; ok && last == payload {
		return
	}
	if err := b.manager.Publish(topic, 0, true, payload); err != nil {
		b.logger.Warn().Err(err).Str("topic", topic).Msg("Publish failed")
		return
	}
	b.published[topic] = payload
}

// topicID returns the segment after prefix/kind in topic
func (b *mqttBridge) topicID(topic, kind string) (string, bool) {
	rest := strings.TrimPrefix(topic, b.topic(kind)+"/")
	if rest == topic {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}

func (b *mqttBridge) presetHandler(ctx context.Context) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if msg.Retained() {
			return
		}
		id, ok := b.topicID(msg.Topic(), "preset")
		if !ok {
			return
		}
		b.execute(fmt.Sprintf("preset %s", id), func() error {
			return b.registry.PressPreset(ctx, id)
		})
	}
}

func (b *mqttBridge) actionHandler(ctx context.Context) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if msg.Retained() {
			return
		}
		id, ok := b.topicID(msg.Topic(), "action")
		if !ok {
			return
		}
		opts := host.Options{}
		if payload := strings.TrimSpace(string(msg.Payload())); payload != "" {
			if err := json.Unmarshal([]byte(payload), &opts); err != nil {
				b.logger.Warn().Err(err).Str("action", id).Msg("Invalid action options")
				return
			}
		}
		b.execute(fmt.Sprintf("action %s", id), func() error {
			return b.registry.ExecuteAction(ctx, id, opts)
		})
	}
}

func (b *mqttBridge) commandHandler(ctx context.Context) mqtt.MessageHandler {
	return func(client mqtt.Client, msg mqtt.Message) {
		if msg.Retained() {
			return
		}
		text := strings.TrimSpace(string(msg.Payload()))
		if text == "" {
			return
		}
		b.execute(fmt.Sprintf("command %q", text), func() error {
			return b.registry.ExecuteAction(ctx, "customCommand", host.Options{"command": text})
		})
	}
}

func (b *mqttBridge) execute(what string, run func() error) {
	if !b.ready() {
		b.logger.Info().Str("request", what).Msg("Monitor not connected, request dropped")
		return
	}
	if err := run(); err != nil {
		b.logger.Warn().Err(err).Str("request", what).Msg("Request failed")
		return
	}
	b.logger.Debug().Str("request", what).Msg("Request executed")
}
