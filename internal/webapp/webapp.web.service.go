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

package webapp

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"breezy/internal/registry"
	"breezy/pkg/logger"

	"github.com/gorilla/websocket"
)

//go:embed www
var assets embed.FS

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

func (c *wsClient) write(pm *websocket.PreparedMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WritePreparedMessage(pm)
}

type clientSet struct {
	clients map[*wsClient]struct{}
	mutex   sync.Mutex
	log     *logger.Logger
}

func newClientSet(log *logger.Logger) *clientSet {
	return &clientSet{clients: make(map[*wsClient]struct{}), log: log}
}

func (c *clientSet) prepare(msg WebAppMessage) *websocket.PreparedMessage {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal %s message: %v", msg.Type, err)
		return nil
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, data)
	if err != nil {
		c.log.Error("failed to prepare message: %v", err)
		return nil
	}
	return pm
}

func (c *clientSet) broadcast(msg WebAppMessage) {
	pm := c.prepare(msg)
	if pm == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		if err := ws.write(pm); err != nil {
			c.log.Error("failed to write message: %v", err)
			ws.conn.Close()
			delete(c.clients, ws)
		}
	}
}

// send writes to one client; a nil client is a no-op.
func (c *clientSet) send(ws *wsClient, msg WebAppMessage) {
	if ws == nil {
		return
	}
	pm := c.prepare(msg)
	if pm == nil {
		return
	}
	if err := ws.write(pm); err != nil {
		c.log.Debug("failed to reply: %v", err)
	}
}

func (c *clientSet) add(ws *wsClient) {
	c.mutex.Lock()
	c.clients[ws] = struct{}{}
	c.mutex.Unlock()
}

func (c *clientSet) remove(ws *wsClient) {
	c.mutex.Lock()
	delete(c.clients, ws)
	c.mutex.Unlock()
}

func (c *clientSet) closeAll() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for ws := range c.clients {
		ws.conn.Close()
		delete(c.clients, ws)
	}
}

func (c *clientSet) len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.clients)
}

func (s *Service) buildHTTPHandler() http.Handler {
	www, _ := fs.Sub(assets, "www")
	mux := http.NewServeMux()
	mux.Handle("GET /", http.FileServer(http.FS(www)))
	mux.HandleFunc("GET /ws", s.serveWebSockets)
	mux.HandleFunc("GET /vents", s.listVents)
	mux.HandleFunc("GET /vents/{id}", s.getVent)
	mux.HandleFunc("DELETE /vents/{id}", s.removeVent)
	mux.HandleFunc("POST /vents/{id}/{action}", s.commandVent)
	mux.HandleFunc("POST /pair", s.pairVent)
	return mux
}

func (s *Service) serveWebSockets(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			s.log.Debug("checking origin: %s", origin)
			if origin == "" {
				return true // not a browser
			}
			if strings.Contains(origin, "localhost") {
				return true
			}
			return strings.Contains(origin, r.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	client := &wsClient{conn: conn}
	s.clients.add(client)
	defer func() {
		s.clients.remove(client)
		conn.Close()
	}()

	s.enqueue(WebAppRequest{Command: "broadcast", client: client})

	for {
		var req WebAppRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read: %v", err)
			}
			return
		}
		req.client = client
		s.enqueue(req)
	}
}

func (s *Service) enqueue(req WebAppRequest) {
	select {
	case s.requests <- req:
	default:
		s.log.Debug("request queue is full; dropping client message")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, errors.New("invalid vent id"))
		return 0, false
	}
	return id, true
}

func (s *Service) listVents(w http.ResponseWriter, r *http.Request) {
	vents, err := s.reg.List(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if vents == nil {
		vents = []registry.Device{}
	}
	writeJSON(w, http.StatusOK, vents)
}

func (s *Service) getVent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, found := s.reg.FindByID(r.Context(), id)
	if !found {
		writeError(w, http.StatusNotFound, registry.ErrUnknownDevice)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Service) removeVent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.reg.Remove(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commandBody struct {
	Open        *bool    `json:"open"`
	Temperature *float64 `json:"temperature"`
	Position    *int     `json:"position"`
	Mode        string   `json:"mode"`
}

func (s *Service) commandVent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body commandBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx := r.Context()
	var err error
	switch action := r.PathValue("action"); {
	case action == "open" && body.Open != nil:
		err = s.cmd.SetOpen(ctx, id, *body.Open)
	case action == "temperature" && body.Temperature != nil:
		err = s.cmd.SetTemperature(ctx, id, *body.Temperature)
	case action == "position" && body.Position != nil:
		err = s.cmd.SetPosition(ctx, id, *body.Position)
	case action == "mode" && body.Mode != "":
		err = s.cmd.SetMode(ctx, id, registry.ControlMode(body.Mode))
		if err != nil && !errors.Is(err, registry.ErrUnknownDevice) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, errors.New("unknown action or missing value"))
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	d, _ := s.reg.FindByID(ctx, id)
	writeJSON(w, http.StatusOK, d)
}

type pairBody struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

func (s *Service) pairVent(w http.ResponseWriter, r *http.Request) {
	var body pairBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), pairTimeout)
	defer cancel()

	res, err := s.pair.Pair(ctx, body.Code, body.Name)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
