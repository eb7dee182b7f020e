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

package ventlink

import (
	"context"
	"errors"

	"breezy/internal/protocol"
	"breezy/internal/registry"
	"breezy/pkg/logger"
)

// Updater is the slice of the registry the dispatcher writes through.
type Updater interface {
	Update(ctx context.Context, id int, mutate func(*registry.Device)) error
}

// Dispatcher turns inbound datagrams into registry updates and
// pairing notifications.
type Dispatcher struct {
	version  protocol.Version
	registry Updater
	onPaired func(id int)
	counters *Counters
	log      *logger.Logger
}

// NewDispatcher wires inbound events to reg. onPaired may be nil.
func NewDispatcher(version protocol.Version, reg Updater, onPaired func(id int), counters *Counters) *Dispatcher {
	if counters == nil {
		counters = &Counters{}
	}
	return &Dispatcher{
		version:  version,
		registry: reg,
		onPaired: onPaired,
		counters: counters,
		log:      logger.New("Dispatch"),
	}
}

// HandleDatagram matches DatagramHandler.
func (d *Dispatcher) HandleDatagram(ctx context.Context, peer string, data []byte) {
	ev, err := protocol.Parse(data, d.version)
	if err != nil {
		d.counters.malformed.Add(1)
		d.log.Warn("dropping datagram from %s: %v", peer, err)
		return
	}
	d.Dispatch(ctx, ev)
}

func (d *Dispatcher) Dispatch(ctx context.Context, ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.PairingComplete:
		d.log.Info("pairing complete, gateway assigned id %d", e.ID)
		if d.onPaired != nil {
			d.onPaired(e.ID)
		}

	case protocol.TemperatureReport:
		d.update(ctx, e.ID, func(dev *registry.Device) {
			dev.LastKnownTemperature = e.Temperature
		})

	case protocol.LegacyDirectReading:
		temp := e.Temperature()
		d.update(ctx, e.ID, func(dev *registry.Device) {
			dev.LastKnownTemperature = temp
		})

	case protocol.PositionReport:
		d.update(ctx, e.ID, func(dev *registry.Device) {
			dev.ManualPositionPercent = e.Percent
			dev.Open = e.Percent > 0
		})

	case protocol.Unknown:
		d.counters.unknown.Add(1)
		d.log.Debug("ignoring kind %d", e.Kind)

	default:
		d.counters.unknown.Add(1)
		d.log.Warn("unhandled event %T", ev)
	}
}

func (d *Dispatcher) update(ctx context.Context, id int, mutate func(*registry.Device)) {
	err := d.registry.Update(ctx, id, mutate)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrUnknownDevice):
		d.log.Debug("report for unknown vent %d dropped", id)
	default:
		d.log.Error("update vent %d: %v", id, err)
	}
}
