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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"breezy/internal/config"
	"breezy/internal/emoncms"
	"breezy/internal/events"
	"breezy/internal/mqttbridge"
	"breezy/internal/pairing"
	"breezy/internal/registry"
	"breezy/internal/ventlink"
	"breezy/internal/webapp"
	"breezy/pkg/appctx"
	"breezy/pkg/eventbus"
	"breezy/pkg/logger"
	"breezy/pkg/rootserv"
	"breezy/pkg/service"
	"breezy/pkg/sysmon"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}

	logPath := filepath.Join(rootdir, "var/logs/breezy.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Fprintf(os.Stderr, "log file %s: %v\n", logPath, err)
	}
	defer logger.Close()
	log := logger.New("Main")

	confPath := filepath.Join(rootdir, "var/config/breezy.json")
	appConf, err := config.Load(confPath, rootdir)
	if err != nil {
		log.Error("%v", err)
		return 1
	}
	log.Info("config %s, protocol %s, gateway %s:%d",
		confPath, appConf.Protocol, appConf.Gateway.Host, appConf.Gateway.Port)

	bus := eventbus.New()
	defer bus.Close()

	reg := registry.New(registry.Options{
		Store:        registry.NewStore(appConf.Registry.Path),
		SaveInterval: appConf.SaveInterval(),
		FirstID:      appConf.Pairing.FirstID,
		OnChange: func(vents []registry.Device) {
			bus.Publish(events.TopicVents, events.VentsUpdate{Vents: vents, Time: time.Now()})
		},
	})

	link := ventlink.NewClient(ventlink.Config{
		Version:     appConf.Protocol,
		GatewayHost: appConf.Gateway.Host,
		GatewayPort: appConf.Gateway.Port,
		ListenHost:  appConf.Listener.Host,
		ListenPort:  appConf.Listener.Port,
		PeerQueue:   appConf.Listener.PeerQueue,
		MinSetpoint: appConf.Vents.MinSetpointC,
		MaxSetpoint: appConf.Vents.MaxSetpointC,
	}, reg)
	link.OnPaired(func(id int) {
		bus.Publish(events.TopicPairing, events.PairingCompleted{DeviceID: id, Time: time.Now()})
	})

	// a listener that cannot bind is a startup fault
	if err := link.StartListening(); err != nil {
		log.Error("%v", err)
		return 1
	}

	pairer := pairing.New(bus, reg, link, appConf.PairingTimeout())

	server := rootserv.New(appConf.HTTP.Addr)
	webApp := webapp.New(bus, reg, link, pairer)
	sysMonitor := sysmon.New(rootdir)
	sysMonitor.AddSource("vent link", func() any { return link.Stats() })
	sysMonitor.AddSource("event bus", func() any { return bus.Stats() })

	server.Attach("/", "Vents", webApp)
	server.Attach("/logger", "Logger", logger.WebService("/logger"))
	server.Attach("/monitor", "System Monitor", sysMonitor)

	services := []service.Runnable{reg, link, webApp, server}

	if appConf.MQTT.Broker != "" {
		services = append(services, mqttbridge.New(appConf.MQTT, bus, link))
	}
	if appConf.DataLogger.EmonCMSAddr != "" {
		services = append(services, emoncms.New(reg, link, appConf.DataLogger))
	}

	ctx, ctxCancel := appctx.New()
	defer ctxCancel()

	// waits for all services to stop
	return <-service.Start(ctx, ctxCancel, services)
}

