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

// Package config loads the JSON app config from var/config/breezy.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"breezy/internal/protocol"
)

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type ListenerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	// datagrams buffered per peer before drops
	PeerQueue int `json:"peer_queue"`
}

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type RegistryConfig struct {
	Path                string `json:"path"`
	SaveIntervalSeconds int    `json:"save_interval_seconds"`
}

// PairingConfig.FirstID is the lowest id handed out when the gateway does
// not assign one. Legacy deployments address vents by kind, so only ids
// 0 and 2..5 receive readings there; it defaults to 2 for legacy.
type PairingConfig struct {
	TimeoutSeconds int `json:"timeout_seconds"`
	FirstID        int `json:"first_id"`
}

type VentsConfig struct {
	MaxSetpointC float64 `json:"max_setpoint_c"`
	MinSetpointC float64 `json:"min_setpoint_c"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"` // empty disables the bridge
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

type DataLoggerConfig struct {
	EmonCMSAddr     string `json:"emoncms_addr"` // empty disables the logger
	EmonCMSApiKey   string `json:"emoncms_apikey"`
	IntervalSeconds int    `json:"interval_seconds"`
}

type SimulatorConfig struct {
	ReportIntervalSeconds int     `json:"report_interval_seconds"`
	RoomTemperatureC      float64 `json:"room_temperature_c"`
}

type Config struct {
	Protocol   protocol.Version `json:"protocol"`
	Gateway    GatewayConfig    `json:"gateway"`
	Listener   ListenerConfig   `json:"listener"`
	HTTP       HTTPConfig       `json:"http"`
	Registry   RegistryConfig   `json:"registry"`
	Pairing    PairingConfig    `json:"pairing"`
	Vents      VentsConfig      `json:"vents"`
	MQTT       MQTTConfig       `json:"mqtt"`
	DataLogger DataLoggerConfig `json:"datalogger"`
	Simulator  SimulatorConfig  `json:"simulator"`

	// not loaded from file
	RootDir string `json:"-"`
}

// Default is the config used when no file exists.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path and applies defaults. A missing file yields Default.
// Relative paths in the file resolve against rootDir.
func Load(path, rootDir string) (*Config, error) {
	c := &Config{}
	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("open config: %w", err)
	default:
		defer f.Close()
		dec := json.NewDecoder(f)
		dec.DisallowUnknownFields()
		if err := dec.Decode(c); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	c.RootDir = rootDir
	c.applyDefaults()
	if !filepath.IsAbs(c.Registry.Path) {
		c.Registry.Path = filepath.Join(rootDir, c.Registry.Path)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Protocol == "" {
		c.Protocol = protocol.VersionString
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = "192.168.4.195"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = 5000
	}
	if c.Listener.Port == 0 {
		c.Listener.Port = 3001
	}
	if c.Listener.PeerQueue == 0 {
		c.Listener.PeerQueue = 16
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Registry.Path == "" {
		c.Registry.Path = "var/cache/vents.yml"
	}
	if c.Registry.SaveIntervalSeconds == 0 {
		c.Registry.SaveIntervalSeconds = 5
	}
	if c.Pairing.TimeoutSeconds == 0 {
		c.Pairing.TimeoutSeconds = 10
	}
	if c.Pairing.FirstID == 0 {
		c.Pairing.FirstID = 100
		if v, err := protocol.ParseVersion(string(c.Protocol)); err == nil && v == protocol.VersionLegacy {
			c.Pairing.FirstID = 2
		}
	}
	if c.Vents.MaxSetpointC == 0 {
		c.Vents.MaxSetpointC = 30
	}
	if c.Vents.MinSetpointC == 0 {
		c.Vents.MinSetpointC = 10
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "breezy"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "breezy"
	}
	if c.DataLogger.IntervalSeconds == 0 {
		c.DataLogger.IntervalSeconds = 60
	}
	if c.Simulator.ReportIntervalSeconds == 0 {
		c.Simulator.ReportIntervalSeconds = 5
	}
	if c.Simulator.RoomTemperatureC == 0 {
		c.Simulator.RoomTemperatureC = 18
	}
}

func (c *Config) Validate() error {
	v, err := protocol.ParseVersion(string(c.Protocol))
	if err != nil {
		return err
	}
	c.Protocol = v

	if v == protocol.VersionLegacy && !protocol.LegacyAddressable(c.Pairing.FirstID) {
		return fmt.Errorf("pairing.first_id %d cannot receive legacy readings", c.Pairing.FirstID)
	}
	if !validPort(c.Gateway.Port) {
		return fmt.Errorf("gateway.port %d out of range", c.Gateway.Port)
	}
	if !validPort(c.Listener.Port) {
		return fmt.Errorf("listener.port %d out of range", c.Listener.Port)
	}
	if c.Listener.PeerQueue < 1 {
		return fmt.Errorf("listener.peer_queue must be positive")
	}
	if c.Vents.MinSetpointC >= c.Vents.MaxSetpointC {
		return fmt.Errorf("vents.min_setpoint_c must be below max_setpoint_c")
	}
	if c.Pairing.TimeoutSeconds < 0 || c.Registry.SaveIntervalSeconds < 0 || c.DataLogger.IntervalSeconds < 0 {
		return fmt.Errorf("intervals must not be negative")
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p <= 65535 }

func (c *Config) PairingTimeout() time.Duration {
	return time.Duration(c.Pairing.TimeoutSeconds) * time.Second
}

func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.Registry.SaveIntervalSeconds) * time.Second
}
