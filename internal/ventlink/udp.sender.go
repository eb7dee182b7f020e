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

	"breezy/internal/protocol"
	"breezy/pkg/logger"
)

var ErrSenderClosed = errors.New("sender closed")

// Sender delivers commands to the vent gateway, one UDP socket per datagram.
// Delivery is best effort: nothing is acknowledged or retried.
type Sender struct {
	addr     string
	counters *Counters
	log      *logger.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewSender(host string, port int, counters *Counters) *Sender {
	if counters == nil {
		counters = &Counters{}
	}
	return &Sender{
		addr:     net.JoinHostPort(host, strconv.Itoa(port)),
		counters: counters,
		log:      logger.New("Sender"),
	}
}

func (s *Sender) Addr() string { return s.addr }

// Send transmits in the background and returns immediately.
// Failures are logged, never reported to the caller.
func (s *Sender) Send(kind int, v protocol.Value) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Warn("dropping kind=%d value=%q: %v", kind, v.String(), ErrSenderClosed)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if err := s.SendNow(kind, v); err != nil {
			s.log.Error("%v", err)
		}
	}()
}

// SendNow transmits on the calling goroutine and returns once the OS
// accepted the local write.
func (s *Sender) SendNow(kind int, v protocol.Value) error {
	pkt, err := protocol.Encode(protocol.Command{Kind: kind, Value: v})
	if err != nil {
		s.counters.sendErrors.Add(1)
		return fmt.Errorf("encode kind=%d: %w", kind, err)
	}

	conn, err := net.Dial("udp", s.addr)
	if err != nil {
		s.counters.sendErrors.Add(1)
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(pkt); err != nil {
		s.counters.sendErrors.Add(1)
		return fmt.Errorf("send kind=%d to %s: %w", kind, s.addr, err)
	}
	s.counters.sent.Add(1)
	s.log.Debug("sent kind=%d value=%q to %s", kind, v.String(), s.addr)
	return nil
}

// Close stops accepting sends and waits for in-flight ones, or ctx.
func (s *Sender) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
