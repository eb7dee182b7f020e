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

package pictrl

import (
	"math"
	"testing"
	"time"
)

func TestStep_ProportionalAndClamp(t *testing.T) {
	pi := New(10, 0).WithOutputLimits(0, 100)
	tests := []struct {
		setpoint, measured, want float64
	}{
		{21, 20, 10},
		{21, 10, 100},
		{21, 25, 0},
		{21, 21, 0},
	}
	for _, tc := range tests {
		if got := pi.Step(tc.setpoint, tc.measured, 0); got != tc.want {
			t.Errorf("Step(%v, %v) = %v, want %v", tc.setpoint, tc.measured, got, tc.want)
		}
	}
}

func TestStep_IntegralAccumulates(t *testing.T) {
	pi := New(0, 1)
	pi.Step(20, 19, time.Second)
	if got := pi.Step(20, 19, time.Second); math.Abs(got-2) > 1e-9 {
		t.Fatalf("got %v, want 2", got)
	}
}

func TestStep_Deadband(t *testing.T) {
	pi := New(10, 1).WithDeadband(0.5)
	if got := pi.Step(20, 19.7, time.Second); got != 0 {
		t.Fatalf("inside deadband got %v, want 0", got)
	}
}

func TestStep_AntiWindup(t *testing.T) {
	pi := New(0, 1).WithOutputLimits(0, 5).WithAntiWindup(true)
	for i := 0; i < 100; i++ {
		pi.Step(30, 20, time.Second)
	}
	// integral held at the limit, so output drops as soon as the error flips
	if got := pi.Step(20, 21, time.Second); got >= 5 {
		t.Fatalf("integral wound up: got %v", got)
	}
}

func TestStep_Decay(t *testing.T) {
	pi := New(0, 1).WithDecay(0.5)
	pi.Step(21, 20, time.Second) // int = 1 * 0.5
	if got := pi.Step(20, 20, time.Second); math.Abs(got-0.25) > 1e-9 {
		t.Fatalf("got %v, want 0.25", got)
	}
}

func TestUpdate_UsesElapsedTime(t *testing.T) {
	now := time.Unix(0, 0)
	pi := New(0, 1)
	pi.now = func() time.Time { return now }

	pi.Update(21, 20) // first call, no integration
	now = now.Add(2 * time.Second)
	if got := pi.Update(21, 20); math.Abs(got-2) > 1e-9 {
		t.Fatalf("got %v, want 2", got)
	}
	pi.Reset()
	if got := pi.Update(21, 20); got != 0 {
		t.Fatalf("after Reset got %v, want 0", got)
	}
}
