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

// Package pictrl is a small PI controller with output clamping, a
// deadband, integral decay and optional anti-windup.
package pictrl

import (
	"math"
	"time"

	"breezy/pkg/logger"
)

type Controller struct {
	Kp, Ki      float64
	OutputMin   float64
	OutputMax   float64
	Deadband    float64
	DecayFactor float64 // fraction of the integral kept per second, [0,1]
	AntiWindup  bool

	intErr   float64
	lastTime time.Time
	now      func() time.Time
	log      *logger.Logger
}

func New(kp, ki float64) *Controller {
	return &Controller{
		Kp:        kp,
		Ki:        ki,
		OutputMin: math.Inf(-1),
		OutputMax: math.Inf(1),
		now:       time.Now,
		log:       logger.New("PI Control"),
	}
}

func (pi *Controller) WithOutputLimits(min, max float64) *Controller {
	pi.OutputMin, pi.OutputMax = min, max
	return pi
}

func (pi *Controller) WithDeadband(db float64) *Controller {
	pi.Deadband = db
	return pi
}

func (pi *Controller) WithDecay(factor float64) *Controller {
	pi.DecayFactor = factor
	return pi
}

func (pi *Controller) WithAntiWindup(enabled bool) *Controller {
	pi.AntiWindup = enabled
	return pi
}

// Reset clears the integral, e.g. when the setpoint source changes.
func (pi *Controller) Reset() {
	pi.intErr = 0
	pi.lastTime = time.Time{}
}

// Update steps the controller by the wall time since the previous call.
// The first call only applies the proportional term.
func (pi *Controller) Update(setpoint, measurement float64) float64 {
	now := pi.now()
	var dt time.Duration
	if !pi.lastTime.IsZero() && now.After(pi.lastTime) {
		dt = now.Sub(pi.lastTime)
	}
	pi.lastTime = now
	return pi.Step(setpoint, measurement, dt)
}

// Step advances the controller by dt and returns the clamped output.
func (pi *Controller) Step(setpoint, measurement float64, dt time.Duration) float64 {
	secs := dt.Seconds()

	err := setpoint - measurement
	if math.Abs(err) < pi.Deadband {
		err = 0
	}

	if secs > 0 {
		pi.intErr += err * secs
		if pi.DecayFactor > 0 && pi.DecayFactor < 1 {
			pi.intErr *= math.Pow(pi.DecayFactor, secs)
		}
	}

	output := pi.Kp*err + pi.Ki*pi.intErr

	clamped := false
	if output > pi.OutputMax {
		output, clamped = pi.OutputMax, true
	} else if output < pi.OutputMin {
		output, clamped = pi.OutputMin, true
	}
	if clamped && pi.AntiWindup && secs > 0 {
		// undo this step's integration
		pi.intErr -= err * secs
	}

	pi.log.Debug("dt=%.2fs err=%.2f int=%.2f out=%.2f", secs, err, pi.intErr, output)
	return output
}
