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

package ventlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"breezy/pkg/logger"
)

type State int32

const (
	StateIdle State = iota
	StateBound
	StateListening
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

var ErrAlreadyBound = errors.New("listener already bound")

const (
	maxDatagram      = 64 * 1024
	defaultPeerQueue = 16

	// persistent read errors back off between these bounds
	readBackoffMin = 10 * time.Millisecond
	readBackoffMax = time.Second
)

// DatagramHandler is called once per received datagram, serially per peer.
type DatagramHandler func(ctx context.Context, peer string, data []byte)

// Listener receives datagrams on a fixed local port. Datagrams are fanned
// out to one worker goroutine per peer address; an empty datagram ends
// that peer's worker and the next datagram from it starts a new one.
type Listener struct {
	addr      string
	peerQueue int
	handle    DatagramHandler
	counters  *Counters
	log       *logger.Logger

	state atomic.Int32
	mu    sync.Mutex
	conn  net.PacketConn

	// owned by the read loop
	peers map[string]chan []byte
	wg    sync.WaitGroup
}

// NewListener listens on host:port. An empty host binds all interfaces.
func NewListener(host string, port, peerQueue int, handle DatagramHandler, counters *Counters) *Listener {
	if peerQueue <= 0 {
		peerQueue = defaultPeerQueue
	}
	if counters == nil {
		counters = &Counters{}
	}
	return &Listener{
		addr:      net.JoinHostPort(host, strconv.Itoa(port)),
		peerQueue: peerQueue,
		handle:    handle,
		counters:  counters,
		log:       logger.New("Listener"),
		peers:     make(map[string]chan []byte),
	}
}

func (l *Listener) State() State { return State(l.state.Load()) }

// LocalAddr is the bound address, or nil before Bind.
func (l *Listener) LocalAddr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Bind opens the listening socket. A failure here is a startup fault.
func (l *Listener) Bind() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return ErrAlreadyBound
	}
	conn, err := net.ListenPacket("udp", l.addr)
	if err != nil {
		l.state.Store(int32(StateFailed))
		return fmt.Errorf("bind %s: %w", l.addr, err)
	}
	l.conn = conn
	l.state.Store(int32(StateBound))
	l.log.Info("bound %s", conn.LocalAddr())
	return nil
}

// Run binds if needed and reads until ctx is cancelled. It returns only
// after the socket is closed and every peer worker has finished.
func (l *Listener) Run(ctx context.Context) error {
	if l.State() == StateIdle {
		if err := l.Bind(); err != nil {
			return err
		}
	}
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("listener in state %s", l.State())
	}

	l.state.Store(int32(StateListening))
	l.log.Info("Running...")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		conn.Close()
	}()

	buf := make([]byte, maxDatagram)
	var backoff time.Duration
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			backoff = min(max(2*backoff, readBackoffMin), readBackoffMax)
			l.log.Error("receive: %v, retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		l.counters.received.Add(1)
		l.route(ctx, addr.String(), append([]byte(nil), buf[:n]...))
	}

	for peer, ch := range l.peers {
		close(ch)
		delete(l.peers, peer)
	}
	l.wg.Wait()
	l.state.Store(int32(StateStopped))
	l.log.Info("Stopped")
	return nil
}

func (l *Listener) route(ctx context.Context, peer string, pkt []byte) {
	ch, ok := l.peers[peer]

	if len(pkt) == 0 {
		l.log.Info("empty datagram from %s, closing its receive loop", peer)
		if ok {
			close(ch)
			delete(l.peers, peer)
		}
		return
	}

	if !ok {
		ch = make(chan []byte, l.peerQueue)
		l.peers[peer] = ch
		l.wg.Add(1)
		go l.peerLoop(ctx, peer, ch)
	}

	select {
	case ch <- pkt:
	default:
		l.counters.dropped.Add(1)
		l.log.Warn("receive queue full for %s, dropping datagram", peer)
	}
}

func (l *Listener) peerLoop(ctx context.Context, peer string, ch <-chan []byte) {
	defer l.wg.Done()
	l.counters.activePeers.Add(1)
	defer l.counters.activePeers.Add(-1)

	l.log.Debug("receive loop started for %s", peer)
	for pkt := range ch {
		if ctx.Err() != nil {
			continue // drain
		}
		l.handle(ctx, peer, pkt)
	}
	l.log.Debug("receive loop ended for %s", peer)
}
