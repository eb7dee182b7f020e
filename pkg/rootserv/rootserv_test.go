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

package rootserv

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRootServer_MountsAndIndex(t *testing.T) {
	rs := New(":0")
	rs.Attach("vents", "Vents", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "path="+r.URL.Path)
	}))
	srv := httptest.NewServer(rs.Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get("/vents/list"); code != 200 || body != "path=/list" {
		t.Fatalf("mounted handler got %d %q", code, body)
	}
	if code, body := get("/index"); code != 200 || !strings.Contains(body, `href="/vents/"`) {
		t.Fatalf("index got %d %q", code, body)
	}
	if code, body := get("/"); code != 200 || !strings.Contains(body, "Services") {
		t.Fatalf("root should redirect to the index, got %d %q", code, body)
	}
	if code, _ := get("/nope"); code != http.StatusNotFound {
		t.Fatalf("unknown path got %d", code)
	}
}
