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

package eventbus

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event")
	}
	return nil
}

func TestBus_NewestEventReplacesUnread(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(context.Background(), "t", false)
	defer unsub()

	b.Publish("t", 1)
	b.Publish("t", 2)
	b.Publish("t", 3)

	if ev := recv(t, ch); ev != 3 {
		t.Fatalf("got %v, want 3", ev)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected extra event %v", ev)
	default:
	}
	if s := b.Stats(); s.Published != 3 || s.Replaced != 2 || s.Dropped != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestBus_WithLastAndTopics(t *testing.T) {
	b := New()
	b.Publish("a", "old")

	withLast, unsubA := b.Subscribe(context.Background(), "a", true)
	defer unsubA()
	if ev := recv(t, withLast); ev != "old" {
		t.Fatalf("got %v, want old", ev)
	}

	other, unsubB := b.Subscribe(context.Background(), "b", true)
	defer unsubB()
	b.Publish("a", "new")
	if ev := recv(t, withLast); ev != "new" {
		t.Fatalf("got %v, want new", ev)
	}
	select {
	case ev := <-other:
		t.Fatalf("topic b received %v", ev)
	default:
	}
	if last, ok := b.GetLast("a"); !ok || last != "new" {
		t.Fatalf("GetLast = %v, %v", last, ok)
	}
}

func TestBus_UnsubscribeAndCancelCloseChannel(t *testing.T) {
	b := New()
	ch1, unsub := b.Subscribe(context.Background(), "t", false)
	unsub()
	unsub() // idempotent

	ctx, cancel := context.WithCancel(context.Background())
	ch2, _ := b.Subscribe(ctx, "t", false)
	cancel()

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("expected closed channel")
			}
		case <-time.After(time.Second):
			t.Fatalf("channel not closed")
		}
	}
	b.Publish("t", 1) // no subscribers left, must not panic
}

func TestBus_Close(t *testing.T) {
	b := New()
	ch, _ := b.Subscribe(context.Background(), "t", false)
	b.Close()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	b.Publish("t", 1)
	late, _ := b.Subscribe(context.Background(), "t", false)
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after Close should return a closed channel")
	}
}
