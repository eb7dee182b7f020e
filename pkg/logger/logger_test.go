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

package logger

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	debug := IsDebug()
	t.Cleanup(func() {
		Close()
		EnableDebug(debug)
		SetOutput(nopWriter{})
	})
	return &buf
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestLogger_LevelsAndCaller(t *testing.T) {
	buf := captureOutput(t)
	EnableDebug(false)
	log := New("Test")

	log.Info("hello %d", 1)
	log.Debug("hidden")
	log.Error("bad %s", "thing")
	EnableDebug(true)
	log.Debug("shown")

	out := buf.String()
	for _, want := range []string{
		"[Test] INFO: hello 1",
		"[Test] ERROR: (logger_test.go:",
		") bad thing",
		"[Test] DEBUG: shown",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line logged while disabled:\n%s", out)
	}
}

func TestLogger_FatalPanics(t *testing.T) {
	captureOutput(t)
	defer func() {
		if r := recover(); r != "boom 7" {
			t.Fatalf("recover() = %v, want boom 7", r)
		}
	}()
	New("Test").Fatal("boom %d", 7)
}

func TestWebService_TailToggleClear(t *testing.T) {
	captureOutput(t)
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	EnableDebug(false)
	New("Web").Info("first line")

	svc := WebService("/logger")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "first line") {
		t.Fatalf("tail missing line: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/toggle", nil))
	if rec.Code != http.StatusSeeOther || !IsDebug() {
		t.Fatalf("toggle: code %d debug %v", rec.Code, IsDebug())
	}

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clear", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("clear: code %d", rec.Code)
	}
	if lines, _ := tail(10); len(lines) != 0 {
		t.Fatalf("log not cleared: %v", lines)
	}

	rec = httptest.NewRecorder()
	svc.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(rec.Body.String(), `action="/logger/toggle"`) {
		t.Fatalf("html page missing toggle form")
	}
}
