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

package events

import (
	"breezy/internal/registry"
	"breezy/pkg/eventbus"
	"time"
)

var (
	TopicVents   eventbus.Topic = "vents"
	TopicPairing eventbus.Topic = "pairing"
)

// VentsUpdate carries the full registry snapshot after a change.
type VentsUpdate struct {
	Vents []registry.Device
	Time  time.Time
}

// PairingCompleted is published when the gateway assigns a device id.
type PairingCompleted struct {
	DeviceID int
	Time     time.Time
}
