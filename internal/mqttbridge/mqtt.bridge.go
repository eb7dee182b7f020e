// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package mqttbridge mirrors vent state to an MQTT broker and turns set
// messages from the broker into vent commands.
//
// Topics, under a configurable prefix:
//
//	<prefix>/vents/<id>/state          retained JSON device record
//	<prefix>/vents/<id>/set/open       true|false
//	<prefix>/vents/<id>/set/temperature  celsius
//	<prefix>/vents/<id>/set/position   0..100
package mqttbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"breezy/internal/config"
	"breezy/internal/events"
	"breezy/internal/registry"
	"breezy/pkg/eventbus"
	"breezy/pkg/logger"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	retryInterval  = 15 * time.Second
	commandTimeout = 5 * time.Second
)

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

type Commander interface {
	SetOpen(ctx context.Context, id int, open bool) error
	SetTemperature(ctx context.Context, id int, celsius float64) error
	SetPosition(ctx context.Context, id, percent int) error
}

type Bridge struct {
	client Client
	bus    *eventbus.Bus
	cmd    Commander
	prefix string
	log    *logger.Logger

	// owned by Run
	published map[int]registry.Device
}

// New builds a bridge with a paho client for conf.Broker.
func New(conf config.MQTTConfig, bus *eventbus.Bus, cmd Commander) *Bridge {
	b := newBridge(nil, conf.TopicPrefix, bus, cmd)

	opts := mqtt.NewClientOptions().
		AddBroker(conf.Broker).
		SetClientID(conf.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetOnConnectHandler(func(mqtt.Client) {
			b.log.Info("connected to %s", conf.Broker)
			if err := b.subscribe(); err != nil {
				b.log.Error("%v", err)
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn("connection lost: %v", err)
		})
	if conf.Username != "" {
		opts.SetUsername(conf.Username).SetPassword(conf.Password)
	}
	b.client = mqtt.NewClient(opts)
	return b
}

// NewWithClient uses an already configured client.
func NewWithClient(client Client, prefix string, bus *eventbus.Bus, cmd Commander) *Bridge {
	return newBridge(client, prefix, bus, cmd)
}

func newBridge(client Client, prefix string, bus *eventbus.Bus, cmd Commander) *Bridge {
	return &Bridge{
		client:    client,
		bus:       bus,
		cmd:       cmd,
		prefix:    strings.TrimRight(prefix, "/"),
		log:       logger.New("MQTT"),
		published: make(map[int]registry.Device),
	}
}

func (b *Bridge) stateTopic(id int) string {
	return fmt.Sprintf("%s/vents/%d/state", b.prefix, id)
}

func (b *Bridge) setFilter() string {
	return b.prefix + "/vents/+/set/+"
}

// Run connects, retrying until ctx ends, then mirrors registry changes.
func (b *Bridge) Run(ctx context.Context) error {
	b.log.Info("Running...")

	for {
		err := wait(b.client.Connect(), connectTimeout)
		if err == nil {
			break
		}
		b.log.Warn("connect failed, retrying in %s: %v", retryInterval, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retryInterval):
		}
	}
	defer b.client.Disconnect(250)

	if err := b.subscribe(); err != nil {
		b.log.Error("%v", err)
	}

	updates, unsubscribe := b.bus.Subscribe(ctx, events.TopicVents, true)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			b.log.Info("Stopped")
			return nil
		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			if u, ok := ev.(events.VentsUpdate); ok {
				b.publishChanges(u.Vents)
			}
		}
	}
}

func (b *Bridge) subscribe() error {
	if err := wait(b.client.Subscribe(b.setFilter(), qos, b.onSet), connectTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.setFilter(), err)
	}
	b.log.Info("subscribed to %s", b.setFilter())
	return nil
}

// publishChanges publishes vents that differ from what was last sent
// and clears the retained state of removed ones.
func (b *Bridge) publishChanges(vents []registry.Device) {
	seen := make(map[int]bool, len(vents))
	for _, d := range vents {
		seen[d.ID] = true
		if prev, ok := b.published[d.ID]; ok && prev == d {
			continue
		}
		payload, err := json.Marshal(d)
		if err != nil {
			b.log.Error("marshal vent %d: %v", d.ID, err)
			continue
		}
		if err := wait(b.client.Publish(b.stateTopic(d.ID), qos, true, payload), connectTimeout); err != nil {
			b.log.Error("publish vent %d: %v", d.ID, err)
			continue
		}
		b.published[d.ID] = d
	}
	for id := range b.published {
		if seen[id] {
			continue
		}
		if err := wait(b.client.Publish(b.stateTopic(id), qos, true, []byte{}), connectTimeout); err != nil {
			b.log.Error("clear vent %d: %v", id, err)
			continue
		}
		delete(b.published, id)
	}
}

func (b *Bridge) onSet(_ mqtt.Client, msg mqtt.Message) {
	if err := b.handleSet(msg.Topic(), msg.Payload()); err != nil {
		b.log.Warn("rejected %s: %v", msg.Topic(), err)
	}
}

func (b *Bridge) handleSet(topic string, payload []byte) error {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/vents/")
	if !ok {
		return fmt.Errorf("unexpected topic")
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[1] != "set" {
		return fmt.Errorf("unexpected topic")
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Errorf("vent id %q: %w", parts[0], err)
	}
	value := strings.TrimSpace(string(payload))

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch parts[2] {
	case "open":
		open, err := parseSwitch(value)
		if err != nil {
			return err
		}
		return b.cmd.SetOpen(ctx, id, open)
	case "temperature":
		c, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("temperature %q: %w", value, err)
		}
		return b.cmd.SetTemperature(ctx, id, c)
	case "position":
		pct, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("position %q: %w", value, err)
		}
		return b.cmd.SetPosition(ctx, id, pct)
	default:
		return fmt.Errorf("unknown setting %q", parts[2])
	}
}

func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "open":
		return true, nil
	case "0", "false", "off", "closed":
		return false, nil
	}
	return false, fmt.Errorf("open %q: not a switch value", s)
}

func wait(t mqtt.Token, timeout time.Duration) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("timed out after %s", timeout)
	}
	return t.Error()
}
