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

// Package registry owns the set of known vents. All reads and writes go
// through the goroutine running Registry.Run, so callers on any goroutine
// see a serialized history of changes.
package registry

import (
	"context"
	"errors"
	"sort"
	"time"

	"breezy/pkg/logger"
)

var (
	ErrUnknownDevice = errors.New("unknown device")
	ErrDuplicateID   = errors.New("device id already registered")
	ErrStopped       = errors.New("registry stopped")
)

const defaultFirstID = 100

type Options struct {
	Store        *Store        // nil keeps the registry in memory only
	SaveInterval time.Duration // how often dirty state is flushed to Store
	FirstID      int           // lowest id handed out by NextID
	OnChange     func([]Device)
}

type Registry struct {
	requests chan func()
	stopped  chan struct{}
	devices  map[int]Device
	opts     Options
	dirty    bool
	log      *logger.Logger
}

func New(opts Options) *Registry {
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = 5 * time.Second
	}
	if opts.FirstID <= 0 {
		opts.FirstID = defaultFirstID
	}
	r := &Registry{
		requests: make(chan func()),
		stopped:  make(chan struct{}),
		devices:  make(map[int]Device),
		opts:     opts,
		log:      logger.New("Registry"),
	}
	r.loadFromStore()
	return r
}

func (r *Registry) loadFromStore() {
	if r.opts.Store == nil {
		return
	}
	vents, err := r.opts.Store.Load()
	if err != nil {
		r.log.Error("failed to load vents: %v", err)
		return
	}
	for _, d := range vents {
		if _, dup := r.devices[d.ID]; dup {
			r.log.Warn("duplicate vent id %d in %s, keeping the later entry", d.ID, r.opts.Store.Path())
		}
		if d.ControlMode == "" {
			d.ControlMode = ModeTemperature
		}
		r.devices[d.ID] = d
	}
	r.log.Info("loaded %d vents from %s", len(r.devices), r.opts.Store.Path())
}

func (r *Registry) Run(ctx context.Context) error {
	r.log.Info("Running...")
	defer close(r.stopped)

	ticker := time.NewTicker(r.opts.SaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.save()
			r.log.Info("Stopped")
			return nil
		case fn := <-r.requests:
			fn()
		case <-ticker.C:
			r.save()
		}
	}
}

func (r *Registry) save() {
	if !r.dirty || r.opts.Store == nil {
		return
	}
	if err := r.opts.Store.Save(r.snapshot()); err != nil {
		r.log.Error("failed to save vents: %v", err)
		return
	}
	r.dirty = false
	r.log.Debug("saved %d vents", len(r.devices))
}

// do runs fn on the registry goroutine and waits for it to finish.
func (r *Registry) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	req := func() {
		defer close(done)
		fn()
	}
	select {
	case r.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

func (r *Registry) changed() {
	r.dirty = true
	if r.opts.OnChange != nil {
		r.opts.OnChange(r.snapshot())
	}
}

func (r *Registry) snapshot() []Device {
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) FindByID(ctx context.Context, id int) (Device, bool) {
	var d Device
	var ok bool
	if err := r.do(ctx, func() { d, ok = r.devices[id] }); err != nil {
		return Device{}, false
	}
	return d, ok
}

// Update applies mutate to the vent with id. mutate runs on the registry
// goroutine and must not call back into the Registry. The id is restored
// if mutate changes it.
func (r *Registry) Update(ctx context.Context, id int, mutate func(*Device)) error {
	var found bool
	err := r.do(ctx, func() {
		d, ok := r.devices[id]
		if !ok {
			return
		}
		found = true
		before := d
		mutate(&d)
		d.ID = id
		if d == before {
			return
		}
		r.devices[id] = d
		r.changed()
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownDevice
	}
	return nil
}

func (r *Registry) Add(ctx context.Context, d Device) error {
	var dup bool
	err := r.do(ctx, func() {
		if _, dup = r.devices[d.ID]; dup {
			return
		}
		r.devices[d.ID] = d
		r.changed()
	})
	if err != nil {
		return err
	}
	if dup {
		return ErrDuplicateID
	}
	r.log.Info("added vent %d (%s)", d.ID, d.DisplayName)
	return nil
}

func (r *Registry) Remove(ctx context.Context, id int) error {
	var found bool
	err := r.do(ctx, func() {
		if _, found = r.devices[id]; found {
			delete(r.devices, id)
			r.changed()
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return ErrUnknownDevice
	}
	r.log.Info("removed vent %d", id)
	return nil
}

// List returns all vents ordered by id.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	var out []Device
	err := r.do(ctx, func() { out = r.snapshot() })
	return out, err
}

// NextID returns max(FirstID, highest id + 1).
func (r *Registry) NextID(ctx context.Context) (int, error) {
	next := r.opts.FirstID
	err := r.do(ctx, func() {
		for id := range r.devices {
			if id+1 > next {
				next = id + 1
			}
		}
	})
	return next, err
}
