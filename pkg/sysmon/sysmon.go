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

// Package sysmon serves process, host and application counters as an
// HTML page or JSON.
package sysmon

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"

	"breezy/pkg/logger"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

const gb = 1024 * 1024 * 1024

type Metrics struct {
	GoVersion  string                      `json:"go_version"`
	Goroutines int                         `json:"goroutines"`
	CPU        CPUStats                    `json:"cpu"`
	Memory     MemoryStats                 `json:"memory"`
	Disk       DiskStats                   `json:"disk"`
	Sources    map[string]map[string]int64 `json:"sources,omitempty"`
}

type CPUStats struct {
	SystemPercent  float64 `json:"system_percent"`
	ProcessPercent float64 `json:"process_percent"`
}

type MemoryStats struct {
	SystemTotal uint64 `json:"system_total"`
	SystemUsed  uint64 `json:"system_used"`
	SystemFree  uint64 `json:"system_free"`
	ProcessRSS  uint64 `json:"process_rss"`
}

// Source supplies application counters. Any value that marshals to a
// flat JSON object of integers works, such as a stats struct.
type Source func() any

type Service struct {
	dir string
	log *logger.Logger

	mu      sync.RWMutex
	sources map[string]Source
}

// New reports disk usage for dir, or the working directory when empty.
func New(dir string) *Service {
	if dir == "" {
		dir, _ = os.Getwd()
	}
	return &Service{
		log:     logger.New("System Monitor"),
		dir:     dir,
		sources: make(map[string]Source),
	}
}

func (s *Service) AddSource(name string, src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[name] = src
}

// Collect gathers a snapshot. Probes that fail are left zero.
func (s *Service) Collect() Metrics {
	m := Metrics{
		GoVersion:  runtime.Version(),
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		m.CPU.SystemPercent = pct[0]
	}
	if vmem, err := mem.VirtualMemory(); err == nil {
		m.Memory.SystemTotal = vmem.Total
		m.Memory.SystemUsed = vmem.Used
		m.Memory.SystemFree = vmem.Available
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := p.MemoryInfo(); err == nil {
			m.Memory.ProcessRSS = mi.RSS
		}
		if pct, err := p.CPUPercent(); err == nil {
			m.CPU.ProcessPercent = pct
		}
	}
	if d, err := DiskUsage(s.dir); err == nil {
		m.Disk = d
	} else {
		s.log.Debug("disk usage %s: %v", s.dir, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sources) > 0 {
		m.Sources = make(map[string]map[string]int64, len(s.sources))
	}
	for name, src := range s.sources {
		counters, err := flatten(src())
		if err != nil {
			s.log.Warn("source %s: %v", name, err)
			continue
		}
		m.Sources[name] = counters
	}
	return m
}

func flatten(v any) (map[string]int64, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]int64
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("not a flat counter set: %w", err)
	}
	return out, nil
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m := s.Collect()

	if r.Header.Get("Accept") == "application/json" {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
	<title>System Monitor</title>
	<style>
		body { font-family: sans-serif; margin: 2em; background: #f9f9f9; }
		table { border-collapse: collapse; width: 60%%; margin-top: 1em; }
		th, td { border: 1px solid #ccc; padding: 0.6em 1em; text-align: left; }
		th { background: #eee; }
	</style>
</head>
<body>
	<h1>System Monitor</h1>
	<p>Go %s, %d goroutines</p>
	<h2>CPU</h2>
	<table>
		<tr><th>System %%</th><th>Process %%</th></tr>
		<tr><td>%.2f%%</td><td>%.2f%%</td></tr>
	</table>
	<h2>Memory</h2>
	<table>
		<tr><th>System Total</th><th>System Used</th><th>System Free</th><th>Process RSS</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td><td>%.2f MB</td></tr>
	</table>
	<h2>Disk (%s)</h2>
	<table>
		<tr><th>Total</th><th>Used</th><th>Free</th></tr>
		<tr><td>%.2f GB</td><td>%.2f GB</td><td>%.2f GB</td></tr>
	</table>
`,
		m.GoVersion, m.Goroutines,
		m.CPU.SystemPercent, m.CPU.ProcessPercent,
		float64(m.Memory.SystemTotal)/gb,
		float64(m.Memory.SystemUsed)/gb,
		float64(m.Memory.SystemFree)/gb,
		float64(m.Memory.ProcessRSS)/(1024*1024),
		html.EscapeString(s.dir),
		float64(m.Disk.Total)/gb,
		float64(m.Disk.Used)/gb,
		float64(m.Disk.Free)/gb,
	)

	names := make([]string, 0, len(m.Sources))
	for name := range m.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "\t<h2>%s</h2>\n\t<table>\n", html.EscapeString(name))
		counters := m.Sources[name]
		keys := make([]string, 0, len(counters))
		for k := range counters {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "\t\t<tr><th>%s</th><td>%d</td></tr>\n", html.EscapeString(k), counters[k])
		}
		fmt.Fprintln(w, "\t</table>")
	}
	fmt.Fprintln(w, "</body>\n</html>")
}
