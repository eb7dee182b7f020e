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

// Package rootserv hosts every web-enabled service under one listener,
// each mounted at its own path prefix, with an index page linking them.
package rootserv

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"breezy/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

type RootServer struct {
	log      *logger.Logger
	addr     string
	mux      *http.ServeMux
	mounts   map[string]string // path -> description
	mainPage http.Handler
}

func New(addr string) *RootServer {
	rs := &RootServer{
		addr:   addr,
		mux:    http.NewServeMux(),
		mounts: make(map[string]string),
		log:    logger.New("HTTPServer"),
	}
	rs.mux.HandleFunc("/index", rs.handleIndex)
	rs.mux.HandleFunc("/", rs.handleRoot)
	return rs
}

// Attach mounts handler under path with the prefix stripped. Path "/"
// makes handler the main page instead of the index redirect.
func (rs *RootServer) Attach(path, desc string, handler http.Handler) {
	if path == "/" {
		rs.mainPage = handler
		rs.log.Info("main page: %s", desc)
		return
	}

	path = "/" + strings.Trim(path, "/")
	rs.mounts[path] = desc
	rs.mux.Handle(path+"/", http.StripPrefix(path, handler))
	rs.mux.Handle(path, http.RedirectHandler(path+"/", http.StatusMovedPermanently))
	rs.log.Info("attached %s (%s)", path, desc)
}

// Handler exposes the mux.
func (rs *RootServer) Handler() http.Handler { return rs.mux }

func (rs *RootServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if rs.mainPage != nil {
		rs.mainPage.ServeHTTP(w, r)
		return
	}
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, "/index", http.StatusTemporaryRedirect)
}

func (rs *RootServer) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	fmt.Fprintln(w, "<!DOCTYPE html><html><head><title>breezy</title></head><body>")
	fmt.Fprintln(w, "<h1>Services</h1><ul>")

	paths := make([]string, 0, len(rs.mounts))
	for path := range rs.mounts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		fmt.Fprintf(w, "<li><a href=\"%s/\">%s</a> - %s</li>\n", path, path, html.EscapeString(rs.mounts[path]))
	}
	fmt.Fprintln(w, "</ul></body></html>")
}

// Run serves until ctx is cancelled. Failing to listen is returned.
func (rs *RootServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", rs.addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", rs.addr, err)
	}
	rs.log.Info("Running on %s", ln.Addr())

	srv := &http.Server{
		Handler:           rs.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rs.log.Warn("shutdown: %v", err)
		}
		rs.log.Info("Stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	}
}
