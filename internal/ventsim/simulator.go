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

// Package ventsim plays the vent gateway for development: it accepts
// commands on the gateway port, pairs vents, and reports simulated room
// temperatures back to the app's listener port.
package ventsim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"breezy/internal/pictrl"
	"breezy/internal/protocol"
	"breezy/pkg/logger"
)

const (
	supplyTempC = 35.0  // air through a fully open vent
	heatRate    = 0.004 // per second at 100% open
	lossRate    = 0.001 // per second towards ambient
)

type Options struct {
	Version        protocol.Version
	ListenAddr     string // gateway address, e.g. ":5000"
	AppPort        int    // app listener port reports are sent to
	ReportInterval time.Duration
	AmbientC       float64
	FirstID        int
}

type VentState struct {
	ID           int     `json:"id"`
	TemperatureC float64 `json:"temperature"`
	TargetC      float64 `json:"target"`
	Position     int     `json:"position"`
	Manual       bool    `json:"manual"`
}

type vent struct {
	VentState
	pi *pictrl.Controller
}

type Simulator struct {
	opts Options
	log  *logger.Logger

	mu     sync.Mutex
	conn   net.PacketConn
	app    net.Addr
	vents  map[int]*vent
	nextID int
}

func New(opts Options) *Simulator {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 5 * time.Second
	}
	if opts.AmbientC == 0 {
		opts.AmbientC = 18
	}
	if opts.FirstID <= 0 {
		opts.FirstID = 100
	}
	return &Simulator{
		opts:   opts,
		log:    logger.New("VentSim"),
		vents:  make(map[int]*vent),
		nextID: opts.FirstID,
	}
}

func (s *Simulator) Bind() error {
	conn, err := net.ListenPacket("udp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.opts.ListenAddr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.log.Info("gateway listening on %s", conn.LocalAddr())
	return nil
}

func (s *Simulator) LocalAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// AddVent registers a vent as if it had been paired earlier.
func (s *Simulator) AddVent(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addVentLocked(id)
}

func (s *Simulator) addVentLocked(id int) *vent {
	if v, ok := s.vents[id]; ok {
		return v
	}
	v := &vent{
		VentState: VentState{ID: id, TemperatureC: s.opts.AmbientC, TargetC: 20},
		pi:        pictrl.New(40, 0.05).WithOutputLimits(0, 100).WithAntiWindup(true).WithDeadband(0.1),
	}
	s.vents[id] = v
	if id >= s.nextID {
		s.nextID = id + 1
	}
	return v
}

func (s *Simulator) Vents() []VentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VentState, 0, len(s.vents))
	for _, v := range s.vents {
		out = append(out, v.VentState)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Simulator) Run(ctx context.Context) error {
	if s.LocalAddr() == nil {
		if err := s.Bind(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reportLoop(ctx)
	}()

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.log.Error("receive: %v", err)
			continue
		}
		if err := s.handle(buf[:n], from); err != nil {
			s.log.Warn("command from %s: %v", from, err)
		}
	}
	wg.Wait()
	s.log.Info("Stopped")
	return nil
}

func (s *Simulator) reportLoop(ctx context.Context) {
	tick := time.NewTicker(s.opts.ReportInterval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			s.step(s.opts.ReportInterval)
			s.report()
		}
	}
}

// handle applies one command datagram and remembers where the app lives.
func (s *Simulator) handle(pkt []byte, from net.Addr) error {
	frame, err := protocol.Decode(pkt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.app = appAddr(from, s.opts.AppPort)
	s.mu.Unlock()

	if frame.Kind == protocol.KindPairing {
		return s.pair(frame)
	}
	if s.opts.Version == protocol.VersionLegacy {
		return s.handleLegacy(frame)
	}

	ev, err := protocol.Classify(frame, protocol.VersionString)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch e := ev.(type) {
	case protocol.TemperatureReport:
		v, ok := s.vents[e.ID]
		if !ok {
			return fmt.Errorf("unknown vent %d", e.ID)
		}
		target, err := strconv.ParseFloat(e.Temperature, 64)
		if err != nil {
			return err
		}
		v.TargetC, v.Manual = target, false
		v.pi.Reset()
	case protocol.PositionReport:
		v, ok := s.vents[e.ID]
		if !ok {
			return fmt.Errorf("unknown vent %d", e.ID)
		}
		v.Position, v.Manual = e.Percent, true
	default:
		return fmt.Errorf("unsupported command %T", ev)
	}
	return nil
}

// Legacy commands carry no vent id for setpoints and positions, so they
// apply to every vent. Any other kind opens or closes the vent with
// that id.
func (s *Simulator) handleLegacy(frame protocol.Frame) error {
	value, err := frame.Float()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch frame.Kind {
	case protocol.KindTemperature:
		for _, v := range s.vents {
			v.TargetC, v.Manual = float64(value), false
			v.pi.Reset()
		}
	case protocol.KindPosition:
		for _, v := range s.vents {
			v.Position, v.Manual = int(value), true
		}
	default:
		v, ok := s.vents[int(frame.Kind)]
		if !ok {
			return fmt.Errorf("unknown vent %d", frame.Kind)
		}
		v.Manual = true
		v.Position = 0
		if value > 0 {
			v.Position = 100
		}
	}
	return nil
}

func (s *Simulator) pair(frame protocol.Frame) error {
	s.mu.Lock()
	id := s.nextID
	s.addVentLocked(id)
	s.mu.Unlock()

	s.log.Info("paired vent %d", id)
	if s.opts.Version == protocol.VersionLegacy {
		return s.send(int(protocol.KindPairing), protocol.Float(float32(id)))
	}
	return s.send(int(protocol.KindPairing), protocol.Text(strconv.Itoa(id)))
}

// step advances room temperatures by dt.
func (s *Simulator) step(dt time.Duration) {
	secs := dt.Seconds()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vents {
		if !v.Manual {
			v.Position = int(math.Round(v.pi.Step(v.TargetC, v.TemperatureC, dt)))
		}
		open := float64(v.Position) / 100
		v.TemperatureC += (supplyTempC-v.TemperatureC)*heatRate*open*secs +
			(s.opts.AmbientC-v.TemperatureC)*lossRate*secs
	}
}

// report sends every vent's temperature and position to the app.
func (s *Simulator) report() {
	vents := s.Vents()
	for _, v := range vents {
		var err error
		if s.opts.Version == protocol.VersionLegacy {
			if uint32(v.ID) == protocol.KindPairing || v.ID > 5 {
				continue // not addressable in the legacy protocol
			}
			err = s.send(v.ID, protocol.Float(float32(v.TemperatureC)))
		} else {
			err = s.send(int(protocol.KindTemperature), protocol.Text(protocol.FormatTemperature(v.ID, v.TemperatureC)))
			if err == nil {
				err = s.send(int(protocol.KindPosition), protocol.Text(protocol.FormatPosition(v.ID, v.Position)))
			}
		}
		if err != nil {
			s.log.Debug("report vent %d: %v", v.ID, err)
		}
	}
}

var errNoApp = errors.New("no app has contacted the gateway yet")

func (s *Simulator) send(kind int, v protocol.Value) error {
	s.mu.Lock()
	conn, app := s.conn, s.app
	s.mu.Unlock()
	if conn == nil || app == nil {
		return errNoApp
	}
	pkt, err := protocol.Encode(protocol.Command{Kind: kind, Value: v})
	if err != nil {
		return err
	}
	_, err = conn.WriteTo(pkt, app)
	return err
}

// appAddr is the sender's host at the app listener port.
func appAddr(from net.Addr, port int) net.Addr {
	if udp, ok := from.(*net.UDPAddr); ok {
		return &net.UDPAddr{IP: udp.IP, Port: port, Zone: udp.Zone}
	}
	return from
}
