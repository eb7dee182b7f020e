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

// Package pairing runs the add-a-vent flow: ask the gateway to pair,
// wait for the id it assigns, and register the new vent.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"breezy/internal/events"
	"breezy/internal/registry"
	"breezy/pkg/eventbus"
	"breezy/pkg/logger"

	"github.com/google/uuid"
)

var ErrAlreadyPaired = errors.New("vent already paired")

type Registry interface {
	Add(ctx context.Context, d registry.Device) error
	NextID(ctx context.Context) (int, error)
}

type Requester interface {
	RequestPairing(code string)
}

type Result struct {
	Session  uuid.UUID       `json:"session"`
	Device   registry.Device `json:"device"`
	Assigned bool            `json:"assigned"` // id came from the gateway
}

// Service runs one pairing at a time.
type Service struct {
	bus     *eventbus.Bus
	reg     Registry
	req     Requester
	timeout time.Duration
	log     *logger.Logger

	mu sync.Mutex
}

func New(bus *eventbus.Bus, reg Registry, req Requester, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		bus:     bus,
		reg:     reg,
		req:     req,
		timeout: timeout,
		log:     logger.New("Pairing"),
	}
}

// Pair requests pairing with code and registers the resulting vent as
// name. If the gateway stays silent past the timeout, the next free id
// is used instead.
func (s *Service) Pair(ctx context.Context, code, name string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := Result{Session: uuid.New()}

	subCtx, unsubscribe := context.WithCancel(ctx)
	defer unsubscribe()
	ch, _ := s.bus.Subscribe(subCtx, events.TopicPairing, false)

	s.log.Info("[%s] requesting pairing (code=%q)", res.Session, code)
	s.req.RequestPairing(code)

	id, err := s.await(ctx, ch)
	switch {
	case err == nil:
		res.Assigned = true
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		id, err = s.reg.NextID(ctx)
		if err != nil {
			return res, fmt.Errorf("pairing %s: %w", res.Session, err)
		}
		s.log.Warn("[%s] no reply from gateway after %s, using id %d", res.Session, s.timeout, id)
	default:
		return res, fmt.Errorf("pairing %s: %w", res.Session, err)
	}

	if name == "" {
		name = "Vent " + strconv.Itoa(id)
	}
	res.Device = registry.NewDevice(id, name)
	if err := s.reg.Add(ctx, res.Device); err != nil {
		if errors.Is(err, registry.ErrDuplicateID) {
			err = fmt.Errorf("%w: id %d", ErrAlreadyPaired, id)
		}
		return res, fmt.Errorf("pairing %s: %w", res.Session, err)
	}
	s.log.Info("[%s] paired vent %d (%s)", res.Session, id, name)
	return res, nil
}

func (s *Service) await(ctx context.Context, ch <-chan eventbus.Event) (int, error) {
	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, context.DeadlineExceeded
		case ev, ok := <-ch:
			if !ok {
				if ctx.Err() != nil {
					return 0, ctx.Err()
				}
				return 0, eventbus.ErrClosed
			}
			if p, ok := ev.(events.PairingCompleted); ok {
				return p.DeviceID, nil
			}
		}
	}
}
