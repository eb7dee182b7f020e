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

package pairing

import (
	"context"
	"errors"
	"testing"
	"time"

	"breezy/internal/events"
	"breezy/internal/registry"
	"breezy/pkg/eventbus"
)

type gatewayFunc func(code string)

func (f gatewayFunc) RequestPairing(code string) { f(code) }

func startRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New(registry.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func TestPair_UsesGatewayAssignedID(t *testing.T) {
	bus := eventbus.New()
	reg := startRegistry(t)
	var gotCode string
	gw := gatewayFunc(func(code string) {
		gotCode = code
		go bus.Publish(events.TopicPairing, events.PairingCompleted{DeviceID: 42, Time: time.Now()})
	})

	res, err := New(bus, reg, gw, time.Second).Pair(context.Background(), "QR-9", "Kitchen")
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if gotCode != "QR-9" {
		t.Fatalf("gateway got code %q", gotCode)
	}
	if !res.Assigned || res.Device != registry.NewDevice(42, "Kitchen") {
		t.Fatalf("unexpected result %+v", res)
	}
	if d, ok := reg.FindByID(context.Background(), 42); !ok || d.LastKnownTemperature != "20.0" || d.Open {
		t.Fatalf("vent not registered with defaults: %+v", d)
	}
}

func TestPair_FallsBackToNextIDOnTimeout(t *testing.T) {
	bus := eventbus.New()
	reg := startRegistry(t)
	_ = reg.Add(context.Background(), registry.NewDevice(150, "Existing"))

	res, err := New(bus, reg, gatewayFunc(func(string) {}), 20*time.Millisecond).Pair(context.Background(), "", "")
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if res.Assigned || res.Device.ID != 151 || res.Device.DisplayName != "Vent 151" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestPair_StaleNotificationIsIgnored(t *testing.T) {
	bus := eventbus.New()
	reg := startRegistry(t)
	bus.Publish(events.TopicPairing, events.PairingCompleted{DeviceID: 7})

	res, err := New(bus, reg, gatewayFunc(func(string) {}), 20*time.Millisecond).Pair(context.Background(), "", "x")
	if err != nil {
		t.Fatalf("Pair() error = %v", err)
	}
	if res.Device.ID == 7 {
		t.Fatalf("pairing picked up a notification from before the request")
	}
}

func TestPair_DuplicateID(t *testing.T) {
	bus := eventbus.New()
	reg := startRegistry(t)
	_ = reg.Add(context.Background(), registry.NewDevice(42, "Old"))
	gw := gatewayFunc(func(string) {
		go bus.Publish(events.TopicPairing, events.PairingCompleted{DeviceID: 42})
	})

	_, err := New(bus, reg, gw, time.Second).Pair(context.Background(), "", "New")
	if !errors.Is(err, ErrAlreadyPaired) {
		t.Fatalf("got %v, want ErrAlreadyPaired", err)
	}
}

func TestPair_Cancelled(t *testing.T) {
	bus := eventbus.New()
	reg := startRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	gw := gatewayFunc(func(string) { cancel() })

	_, err := New(bus, reg, gw, time.Second).Pair(ctx, "", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if list, _ := reg.List(context.Background()); len(list) != 0 {
		t.Fatalf("cancelled pairing registered %+v", list)
	}
}
