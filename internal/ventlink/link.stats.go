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

import "sync/atomic"

// Stats is a point-in-time copy of the link counters.
type Stats struct {
	Sent        int64 `json:"sent"`
	SendErrors  int64 `json:"send_errors"`
	Received    int64 `json:"received"`
	Malformed   int64 `json:"malformed"`
	Unknown     int64 `json:"unknown"`
	Dropped     int64 `json:"dropped"`
	ActivePeers int64 `json:"active_peers"`
}

// Counters are shared by the sender, listener and dispatcher of one link.
type Counters struct {
	sent        atomic.Int64
	sendErrors  atomic.Int64
	received    atomic.Int64
	malformed   atomic.Int64
	unknown     atomic.Int64
	dropped     atomic.Int64
	activePeers atomic.Int64
}

func (c *Counters) Snapshot() Stats {
	return Stats{
		Sent:        c.sent.Load(),
		SendErrors:  c.sendErrors.Load(),
		Received:    c.received.Load(),
		Malformed:   c.malformed.Load(),
		Unknown:     c.unknown.Load(),
		Dropped:     c.dropped.Load(),
		ActivePeers: c.activePeers.Load(),
	}
}
