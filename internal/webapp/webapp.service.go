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

// Package webapp serves the vent dashboard: a JSON API over the registry
// and a websocket that streams the vent list and accepts commands.
package webapp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"breezy/internal/events"
	"breezy/internal/pairing"
	"breezy/internal/registry"
	"breezy/internal/ventlink"
	"breezy/pkg/eventbus"
	"breezy/pkg/logger"
)

type Registry interface {
	List(ctx context.Context) ([]registry.Device, error)
	FindByID(ctx context.Context, id int) (registry.Device, bool)
	Remove(ctx context.Context, id int) error
}

type Commander interface {
	SetOpen(ctx context.Context, id int, open bool) error
	SetTemperature(ctx context.Context, id int, celsius float64) error
	SetPosition(ctx context.Context, id, percent int) error
	SetMode(ctx context.Context, id int, mode registry.ControlMode) error
}

type Pairer interface {
	Pair(ctx context.Context, code, name string) (pairing.Result, error)
}

// WebAppRequest is a command sent by a websocket client.
type WebAppRequest struct {
	Command     string    `json:"command"`
	ID          int       `json:"id,omitempty"`
	Open        bool      `json:"open,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	DeltaC      float64   `json:"delta,omitempty"`
	Position    int       `json:"position,omitempty"`
	Mode        string    `json:"mode,omitempty"`
	Code        string    `json:"code,omitempty"`
	Name        string    `json:"name,omitempty"`
	client      *wsClient `json:"-"`
}

// WebAppMessage is pushed to websocket clients.
type WebAppMessage struct {
	Type   string            `json:"type"` // vents, paired, error
	Vents  []registry.Device `json:"vents,omitempty"`
	Device *registry.Device  `json:"device,omitempty"`
	Error  string            `json:"error,omitempty"`
}

type Service struct {
	bus      *eventbus.Bus
	reg      Registry
	cmd      Commander
	pair     Pairer
	requests chan WebAppRequest
	clients  *clientSet
	log      *logger.Logger

	httpHandler http.Handler
}

func New(bus *eventbus.Bus, reg Registry, cmd Commander, pair Pairer) *Service {
	log := logger.New("WebApp")
	s := &Service{
		bus:      bus,
		reg:      reg,
		cmd:      cmd,
		pair:     pair,
		requests: make(chan WebAppRequest, 8),
		clients:  newClientSet(log),
		log:      log,
	}
	s.httpHandler = s.buildHTTPHandler()
	return s
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpHandler.ServeHTTP(w, r)
}

// Run forwards registry changes to websocket clients and executes
// websocket commands until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("Running...")
	defer s.clients.closeAll()

	updates, unsubscribe := s.bus.Subscribe(ctx, events.TopicVents, true)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stopped")
			return nil

		case ev, ok := <-updates:
			if !ok {
				return nil
			}
			if u, ok := ev.(events.VentsUpdate); ok {
				s.clients.broadcast(WebAppMessage{Type: "vents", Vents: u.Vents})
			}

		case req := <-s.requests:
			s.log.Debug("msg from client: %+v", req)
			if err := s.handle(ctx, req); err != nil {
				s.log.Warn("%s: %v", req.Command, err)
				s.clients.send(req.client, WebAppMessage{Type: "error", Error: err.Error()})
			}
		}
	}
}

func (s *Service) handle(ctx context.Context, req WebAppRequest) error {
	switch req.Command {
	case "broadcast":
		vents, err := s.reg.List(ctx)
		if err != nil {
			return err
		}
		s.clients.send(req.client, WebAppMessage{Type: "vents", Vents: vents})
		return nil
	case "set_open":
		return s.cmd.SetOpen(ctx, req.ID, req.Open)
	case "toggle_open":
		d, ok := s.reg.FindByID(ctx, req.ID)
		if !ok {
			return fmt.Errorf("vent %d: %w", req.ID, registry.ErrUnknownDevice)
		}
		return s.cmd.SetOpen(ctx, req.ID, !d.Open)
	case "set_temperature":
		return s.cmd.SetTemperature(ctx, req.ID, req.Temperature)
	case "change_setpoint":
		d, ok := s.reg.FindByID(ctx, req.ID)
		if !ok {
			return fmt.Errorf("vent %d: %w", req.ID, registry.ErrUnknownDevice)
		}
		current, err := strconv.ParseFloat(d.TargetTemperature, 64)
		if err != nil {
			return fmt.Errorf("vent %d target %q: %w", req.ID, d.TargetTemperature, err)
		}
		return s.cmd.SetTemperature(ctx, req.ID, current+req.DeltaC)
	case "set_position":
		return s.cmd.SetPosition(ctx, req.ID, req.Position)
	case "set_mode":
		return s.cmd.SetMode(ctx, req.ID, registry.ControlMode(req.Mode))
	case "remove":
		return s.reg.Remove(ctx, req.ID)
	case "pair":
		// pairing waits on the gateway; keep the loop responsive
		go func() {
			res, err := s.pair.Pair(ctx, req.Code, req.Name)
			if err != nil {
				s.clients.send(req.client, WebAppMessage{Type: "error", Error: err.Error()})
				return
			}
			s.clients.send(req.client, WebAppMessage{Type: "paired", Device: &res.Device})
		}()
		return nil
	default:
		return fmt.Errorf("unknown command %q", req.Command)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnknownDevice):
		return http.StatusNotFound
	case errors.Is(err, pairing.ErrAlreadyPaired), errors.Is(err, registry.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, ventlink.ErrInvalidPosition), errors.Is(err, ventlink.ErrInvalidSetpoint):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

var pairTimeout = 30 * time.Second
