package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
)

// handleLive streams the store changes of a mounted host as JSON messages
// until the client goes away.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	route := routeFrom(r.PathValue("route"))
	sess, ok := s.lookupSession(r)
	if !ok {
		http.Error(w, "no session", http.StatusUnauthorized)
		return
	}
	h, ok := sess.hosts.Get(route)
	if !ok {
		http.Error(w, "page not mounted", http.StatusNotFound)
		return
	}

	wc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "route", route, "error", err)
		return
	}
	defer wc.Close()

	s.metrics.LiveConnection(1)
	defer s.metrics.LiveConnection(-1)

	changes, unsubscribe := h.Store().Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		wc.SetReadLimit(512)
		_ = wc.SetReadDeadline(time.Now().Add(pongWait))
		wc.SetPongHandler(func(string) error {
			return wc.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			// incoming messages are ignored; reading drives the pong handler
			if _, _, err := wc.NextReader(); err != nil {
				var ce *websocket.CloseError
				if !errors.As(err, &ce) {
					s.logger.Debug("live connection read ended", "route", route, "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			return
		case <-s.done:
			_ = wc.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeTimeout))
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			_ = wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := wc.WriteJSON(c); err != nil {
				s.logger.Debug("live write failed", "route", route, "error", err)
				return
			}
		case <-ping.C:
			if err := wc.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}
