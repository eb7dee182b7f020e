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

// Package emoncms posts vent readings to an EmonCMS input endpoint.
package emoncms

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"breezy/internal/config"
	"breezy/internal/registry"
	"breezy/internal/ventlink"
	"breezy/pkg/logger"
)

type Registry interface {
	List(ctx context.Context) ([]registry.Device, error)
}

// LinkStats is optional; when set its counters go to the "link" node.
type LinkStats interface {
	Stats() ventlink.Stats
}

type DataLogger struct {
	addr     string
	apiKey   string
	interval time.Duration
	http     *http.Client
	log      *logger.Logger

	reg  Registry
	link LinkStats
}

func New(reg Registry, link LinkStats, conf config.DataLoggerConfig) *DataLogger {
	interval := time.Duration(conf.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	return &DataLogger{
		addr:     strings.TrimRight(conf.EmonCMSAddr, "/"),
		apiKey:   conf.EmonCMSApiKey,
		interval: interval,
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      logger.New("DataLogger"),
		reg:      reg,
		link:     link,
	}
}

func (c *DataLogger) emoncmsInputPost(ctx context.Context, node string, data map[string]float64) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal node %s: %w", node, err)
	}

	q := url.Values{}
	q.Set("node", node)
	q.Set("apikey", c.apiKey)
	q.Set("fulljson", string(body))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/input/post?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post node %s: %w", node, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("post node %s: %s", node, resp.Status)
	}
	return nil
}

func boolAsNumber(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// ventData maps each vent to an input node. Values that do not parse
// as numbers are skipped.
func (c *DataLogger) ventData(vents []registry.Device) map[string]map[string]float64 {
	nodes := make(map[string]map[string]float64, len(vents)+1)
	for _, d := range vents {
		data := map[string]float64{
			"position": float64(d.ManualPositionPercent),
			"open":     boolAsNumber(d.Open),
			"manual":   boolAsNumber(d.ControlMode == registry.ModeManual),
		}
		if t, err := strconv.ParseFloat(d.LastKnownTemperature, 64); err == nil {
			data["temperature"] = t
		} else {
			c.log.Debug("vent %d temperature %q: %v", d.ID, d.LastKnownTemperature, err)
		}
		if t, err := strconv.ParseFloat(d.TargetTemperature, 64); err == nil {
			data["target"] = t
		}
		nodes["vent_"+strconv.Itoa(d.ID)] = data
	}
	return nodes
}

func (c *DataLogger) linkData() map[string]float64 {
	s := c.link.Stats()
	return map[string]float64{
		"sent":      float64(s.Sent),
		"received":  float64(s.Received),
		"malformed": float64(s.Malformed),
		"dropped":   float64(s.Dropped),
	}
}

func (c *DataLogger) tick(ctx context.Context) {
	vents, err := c.reg.List(ctx)
	if err != nil {
		c.log.Error("list vents: %v", err)
		return
	}
	nodes := c.ventData(vents)
	if c.link != nil {
		nodes["link"] = c.linkData()
	}
	for node, nodeData := range nodes {
		if err := c.emoncmsInputPost(ctx, node, nodeData); err != nil {
			c.log.Error("%v", err)
		}
	}
}

func (c *DataLogger) Run(ctx context.Context) error {
	c.log.Info("Running...")
	defer c.log.Info("Stopped.")

	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			c.tick(ctx)
		}
	}
}
