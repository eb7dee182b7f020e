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

package emoncms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"breezy/internal/config"
	"breezy/internal/registry"
	"breezy/internal/ventlink"
)

type staticRegistry []registry.Device

func (r staticRegistry) List(context.Context) ([]registry.Device, error) { return r, nil }

type staticLink ventlink.Stats

func (s staticLink) Stats() ventlink.Stats { return ventlink.Stats(s) }

func TestTick_PostsOneNodePerVent(t *testing.T) {
	var mu sync.Mutex
	posted := map[string]map[string]float64{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/input/post" || r.URL.Query().Get("apikey") != "k3y" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var data map[string]float64
		if err := json.Unmarshal([]byte(r.URL.Query().Get("fulljson")), &data); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		posted[r.URL.Query().Get("node")] = data
		mu.Unlock()
	}))
	defer srv.Close()

	office := registry.NewDevice(7, "Office")
	office.LastKnownTemperature = "21.5"
	office.ManualPositionPercent = 40
	office.Open = true
	broken := registry.NewDevice(8, "Broken")
	broken.LastKnownTemperature = "n/a"

	svc := New(staticRegistry{office, broken}, staticLink{Sent: 3, Malformed: 1}, config.DataLoggerConfig{
		EmonCMSAddr:   srv.URL + "/",
		EmonCMSApiKey: "k3y",
	})
	svc.tick(context.Background())

	if len(posted) != 3 {
		t.Fatalf("posted nodes %v, want vent_7, vent_8 and link", posted)
	}
	v7 := posted["vent_7"]
	if v7["temperature"] != 21.5 || v7["position"] != 40 || v7["open"] != 1 || v7["target"] != 20 {
		t.Fatalf("vent_7 = %v", v7)
	}
	if _, ok := posted["vent_8"]["temperature"]; ok {
		t.Fatalf("unparsable temperature should be skipped: %v", posted["vent_8"])
	}
	if posted["link"]["sent"] != 3 || posted["link"]["malformed"] != 1 {
		t.Fatalf("link = %v", posted["link"])
	}
}

func TestPost_ReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	svc := New(staticRegistry{}, nil, config.DataLoggerConfig{EmonCMSAddr: srv.URL})
	if err := svc.emoncmsInputPost(context.Background(), "n", map[string]float64{"a": 1}); err == nil {
		t.Fatalf("expected error for 401")
	}
}
