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

// Command ventsim stands in for the vent gateway on a development machine.
// Point the app's gateway.host at this machine and start both.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"breezy/internal/config"
	"breezy/internal/registry"
	"breezy/internal/ventsim"
	"breezy/pkg/appctx"
	"breezy/pkg/logger"
	"breezy/pkg/service"
)

func main() {
	os.Exit(run())
}

func run() int {
	rootdir := os.Getenv("PROJECT_ROOT")
	if rootdir == "" {
		rootdir = "."
	}
	if err := logger.Init(filepath.Join(rootdir, "var/logs/ventsim.log")); err != nil {
		fmt.Fprintf(os.Stderr, "log file: %v\n", err)
	}
	defer logger.Close()
	log := logger.New("Main")

	confPath := filepath.Join(rootdir, "var/config/breezy.json")
	appConf, err := config.Load(confPath, rootdir)
	if err != nil {
		log.Error("%v", err)
		return 1
	}

	sim := ventsim.New(ventsim.Options{
		Version:        appConf.Protocol,
		ListenAddr:     ":" + strconv.Itoa(appConf.Gateway.Port),
		AppPort:        appConf.Listener.Port,
		ReportInterval: time.Duration(appConf.Simulator.ReportIntervalSeconds) * time.Second,
		AmbientC:       appConf.Simulator.RoomTemperatureC,
		FirstID:        appConf.Pairing.FirstID,
	})

	// vents the app already knows about exist on the simulated gateway too
	known, err := registry.NewStore(appConf.Registry.Path).Load()
	if err != nil {
		log.Warn("no known vents: %v", err)
	}
	for _, d := range known {
		sim.AddVent(d.ID)
	}

	if err := sim.Bind(); err != nil {
		log.Error("%v", err)
		return 1
	}
	fmt.Printf("simulating %d vents, protocol %s\n", len(known), appConf.Protocol)

	ctx, ctxCancel := appctx.New()
	defer ctxCancel()
	return <-service.Start(ctx, ctxCancel, []service.Runnable{sim})
}
