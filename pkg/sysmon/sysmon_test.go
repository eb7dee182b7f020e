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

package sysmon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type linkStats struct {
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
}

func TestService_JSONIncludesSources(t *testing.T) {
	s := New(t.TempDir())
	s.AddSource("link", func() any { return linkStats{Sent: 3, Received: 5} })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	var m Metrics
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.Sources["link"]; got["sent"] != 3 || got["received"] != 5 {
		t.Fatalf("link source = %v", got)
	}
	if m.GoVersion == "" {
		t.Fatalf("missing go version")
	}
}

func TestService_HTMLListsSourceCounters(t *testing.T) {
	s := New(t.TempDir())
	s.AddSource("link", func() any { return linkStats{Sent: 7} })

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "<h2>link</h2>") || !strings.Contains(body, "<tr><th>sent</th><td>7</td></tr>") {
		t.Fatalf("html missing link counters:\n%s", body)
	}
}

func TestService_BadSourceIsSkipped(t *testing.T) {
	s := New(t.TempDir())
	s.AddSource("bad", func() any { return "not counters" })
	if m := s.Collect(); len(m.Sources) != 0 {
		t.Fatalf("bad source should be skipped, got %v", m.Sources)
	}
}
