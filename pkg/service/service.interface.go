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

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"breezy/pkg/logger"
)

// Runnable is the common interface for all services. Run blocks until
// ctx is cancelled or the service fails.
type Runnable interface {
	Run(ctx context.Context) error
}

// Func adapts a plain function to Runnable.
type Func func(ctx context.Context) error

func (f Func) Run(ctx context.Context) error { return f(ctx) }

// Start runs every service on its own goroutine. The first failure or
// panic cancels the rest. The returned channel yields the process exit
// code once all services have stopped: 0 on clean shutdown, 1 when a
// service returned an error, -1 after a panic.
func Start(ctx context.Context, ctxCancel context.CancelFunc, services []Runnable) <-chan int {
	wg := &sync.WaitGroup{}

	var mu sync.Mutex
	var exitCode int
	setExit := func(code int) {
		mu.Lock()
		defer mu.Unlock()
		if exitCode == 0 {
			exitCode = code
		}
	}
	exitCh := make(chan int, 1)

	log := logger.New("Service")

	for _, s := range services {
		service := s
		wg.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic in %T: %v\n%s", service, r, debug.Stack())
					setExit(-1)
					ctxCancel()
				}
			}()
			if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("%s", describe(service, err))
				setExit(1)
				ctxCancel()
			}
		})
	}

	go func() {
		// wait for for all services to stop
		wg.Wait()
		mu.Lock()
		exitCh <- exitCode
		mu.Unlock()
	}()

	return exitCh
}

func describe(s Runnable, err error) string {
	return fmt.Sprintf("%T stopped: %v", s, err)
}
