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

package appctx

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"breezy/pkg/logger"
)

// New returns a context cancelled on the first SIGINT or SIGTERM. A
// second signal exits the process without waiting for shutdown.
func New() (context.Context, context.CancelFunc) {
	return withSignals(context.Background(), func() { os.Exit(2) })
}

func withSignals(parent context.Context, force func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)
		log := logger.New("SigHandler")

		select {
		case sig := <-sigs:
			log.Info("received %s, shutting down", sig)
			cancel()
		case <-ctx.Done():
			return
		}

		sig := <-sigs
		log.Warn("received %s during shutdown, exiting now", sig)
		force()
	}()

	return ctx, cancel
}
