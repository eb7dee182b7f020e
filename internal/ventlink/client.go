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

// Package ventlink talks to the vent gateway over UDP: commands go out
// through a Sender, reports come back through a Listener and are applied
// to the registry by a Dispatcher.
package ventlink

import (
	"context"
	"sync"
	"time"

	"breezy/internal/protocol"
	"breezy/pkg/logger"
)

type Config struct {
	Version     protocol.Version
	GatewayHost string
	GatewayPort int
	ListenHost  string
	ListenPort  int
	PeerQueue   int
	MinSetpoint float64
	MaxSetpoint float64
}

// Client bundles one gateway link.
type Client struct {
	*Commander

	sender   *Sender
	listener *Listener
	counters *Counters
	log      *logger.Logger

	mu       sync.RWMutex
	onPaired []func(id int)
}

func NewClient(cfg Config, reg Updater) *Client {
	c := &Client{
		counters: &Counters{},
		log:      logger.New("VentLink"),
	}
	c.sender = NewSender(cfg.GatewayHost, cfg.GatewayPort, c.counters)
	dispatcher := NewDispatcher(cfg.Version, reg, c.paired, c.counters)
	c.listener = NewListener(cfg.ListenHost, cfg.ListenPort, cfg.PeerQueue, dispatcher.HandleDatagram, c.counters)
	c.Commander = NewCommander(CommanderOptions{
		Version:     cfg.Version,
		MinSetpoint: cfg.MinSetpoint,
		MaxSetpoint: cfg.MaxSetpoint,
	}, c.sender, reg)
	return c
}

// OnPaired registers fn to receive gateway-assigned ids. fn runs on a
// receive worker and must not block.
func (c *Client) OnPaired(fn func(id int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPaired = append(c.onPaired, fn)
}

func (c *Client) paired(id int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.onPaired {
		fn(id)
	}
}

// StartListening binds the listener port.
func (c *Client) StartListening() error {
	return c.listener.Bind()
}

func (c *Client) Listener() *Listener { return c.listener }
func (c *Client) Sender() *Sender     { return c.sender }
func (c *Client) Stats() Stats        { return c.counters.Snapshot() }

// Run serves the listener until ctx is done, then waits briefly for
// in-flight sends.
func (c *Client) Run(ctx context.Context) error {
	err := c.listener.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cerr := c.sender.Close(closeCtx); cerr != nil {
		c.log.Warn("in-flight sends abandoned: %v", cerr)
	}
	return err
}
