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

package registry

import "fmt"

type ControlMode string

const (
	ModeTemperature ControlMode = "temperature"
	ModeManual      ControlMode = "manual"
)

func ParseControlMode(s string) (ControlMode, error) {
	switch m := ControlMode(s); m {
	case ModeTemperature, ModeManual:
		return m, nil
	default:
		return "", fmt.Errorf("unknown control mode %q", s)
	}
}

// Device is one vent as the app knows it. Temperatures are decimal
// strings exactly as reported or entered.
type Device struct {
	ID                    int         `yaml:"id" json:"id"`
	DisplayName           string      `yaml:"name" json:"name"`
	LastKnownTemperature  string      `yaml:"temperature" json:"temperature"`
	TargetTemperature     string      `yaml:"target_temperature" json:"target_temperature"`
	Open                  bool        `yaml:"open" json:"open"`
	ControlMode           ControlMode `yaml:"control_mode" json:"control_mode"`
	ManualPositionPercent int         `yaml:"manual_position" json:"manual_position"`
}

// NewDevice returns a freshly paired vent with the app defaults:
// closed, temperature mode, 20.0°C.
func NewDevice(id int, name string) Device {
	return Device{
		ID:                   id,
		DisplayName:          name,
		LastKnownTemperature: "20.0",
		TargetTemperature:    "20.0",
		ControlMode:          ModeTemperature,
	}
}
