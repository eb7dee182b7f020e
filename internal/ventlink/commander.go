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
	"fmt"
	"math"
	"strconv"

	"breezy/internal/protocol"
	"breezy/internal/registry"
	"breezy/pkg/logger"
)

var (
	ErrInvalidPosition = errors.New("position must be within 0..100")
	ErrInvalidSetpoint = errors.New("setpoint is not a number")
)

// Transmitter queues a datagram for the gateway.
type Transmitter interface {
	Send(kind int, v protocol.Value)
}

type CommanderOptions struct {
	Version     protocol.Version
	MinSetpoint float64
	MaxSetpoint float64
}

// Commander records user intent in the registry and forwards it to the
// gateway. Intent is recorded first so commands for unknown vents are
// rejected without touching the network.
type Commander struct {
	opts     CommanderOptions
	tx       Transmitter
	registry Updater
	log      *logger.Logger
}

func NewCommander(opts CommanderOptions, tx Transmitter, reg Updater) *Commander {
	if opts.MinSetpoint == 0 && opts.MaxSetpoint == 0 {
		opts.MinSetpoint, opts.MaxSetpoint = 10, 30
	}
	return &Commander{
		opts:     opts,
		tx:       tx,
		registry: reg,
		log:      logger.New("Commander"),
	}
}

// SendCommand sends a raw kind/value pair.
func (c *Commander) SendCommand(kind int, v protocol.Value) {
	c.tx.Send(kind, v)
}

func (c *Commander) SetOpen(ctx context.Context, id int, open bool) error {
	pct := 0
	if open {
		pct = 100
	}
	err := c.registry.Update(ctx, id, func(d *registry.Device) {
		d.Open = open
		if c.opts.Version == protocol.VersionString {
			d.ManualPositionPercent = pct
		}
	})
	if err != nil {
		return fmt.Errorf("set open vent %d: %w", id, err)
	}

	if c.opts.Version == protocol.VersionLegacy {
		c.tx.Send(id, protocol.Float(float32(pct/100)))
	} else {
		c.tx.Send(int(protocol.KindPosition), protocol.Text(protocol.FormatPosition(id, pct)))
	}
	c.log.Info("vent %d open=%t", id, open)
	return nil
}

// SetTemperature clamps celsius to the configured setpoint range and
// switches the vent to temperature mode.
func (c *Commander) SetTemperature(ctx context.Context, id int, celsius float64) error {
	if math.IsNaN(celsius) || math.IsInf(celsius, 0) {
		return ErrInvalidSetpoint
	}
	celsius = math.Max(c.opts.MinSetpoint, math.Min(c.opts.MaxSetpoint, celsius))
	celsius = math.Round(celsius*10) / 10

	err := c.registry.Update(ctx, id, func(d *registry.Device) {
		d.TargetTemperature = strconv.FormatFloat(celsius, 'f', 1, 64)
		d.ControlMode = registry.ModeTemperature
	})
	if err != nil {
		return fmt.Errorf("set temperature vent %d: %w", id, err)
	}

	if c.opts.Version == protocol.VersionLegacy {
		c.tx.Send(int(protocol.KindTemperature), protocol.Float(float32(celsius)))
	} else {
		c.tx.Send(int(protocol.KindTemperature), protocol.Text(protocol.FormatTemperature(id, celsius)))
	}
	c.log.Info("vent %d target=%.1f", id, celsius)
	return nil
}

// SetPosition switches the vent to manual mode at percent open.
func (c *Commander) SetPosition(ctx context.Context, id, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidPosition, percent)
	}
	err := c.registry.Update(ctx, id, func(d *registry.Device) {
		d.ManualPositionPercent = percent
		d.Open = percent > 0
		d.ControlMode = registry.ModeManual
	})
	if err != nil {
		return fmt.Errorf("set position vent %d: %w", id, err)
	}

	if c.opts.Version == protocol.VersionLegacy {
		c.tx.Send(int(protocol.KindPosition), protocol.Float(float32(percent)))
	} else {
		c.tx.Send(int(protocol.KindPosition), protocol.Text(protocol.FormatPosition(id, percent)))
	}
	c.log.Info("vent %d position=%d%%", id, percent)
	return nil
}

// SetMode changes the control mode locally; the gateway learns the mode
// from the next setpoint or position command.
func (c *Commander) SetMode(ctx context.Context, id int, mode registry.ControlMode) error {
	if _, err := registry.ParseControlMode(string(mode)); err != nil {
		return err
	}
	err := c.registry.Update(ctx, id, func(d *registry.Device) { d.ControlMode = mode })
	if err != nil {
		return fmt.Errorf("set mode vent %d: %w", id, err)
	}
	return nil
}

// RequestPairing asks the gateway to pair a new vent. An empty code
// pairs whichever vent is in pairing mode.
func (c *Commander) RequestPairing(code string) {
	if c.opts.Version == protocol.VersionLegacy {
		c.tx.Send(int(protocol.KindPairing), protocol.Float(0))
		return
	}
	if code == "" {
		code = "0"
	}
	c.tx.Send(int(protocol.KindPairing), protocol.Text(code))
}
