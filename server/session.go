package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/GoCodeAlone/pageview/cache"
	"github.com/GoCodeAlone/pageview/host"
)

// session is one browser: its cookie id and the hosts of the routes it has
// open.
type session struct {
	id    string
	hosts *host.Registry
}

func (s *Server) newSessions() *cache.Bounded[*session] {
	cfg := s.config().Server
	return cache.NewBounded(cache.Config{
		MaxSize: cfg.MaxSessions,
		TTL:     cfg.SessionTTL,
		Policy:  cache.LeastRecentlyUsed,
	}, func(id string, sess *session) {
		s.logger.Debug("session expired", "session", id)
		sess.hosts.Clear()
	})
}

// session returns the session of the request, starting one when the cookie
// is absent or unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	cfg := s.config().Server
	if c, err := r.Cookie(cfg.SessionCookie); err == nil && c.Value != "" {
		if sess, ok := s.sessions.Get(c.Value); ok {
			s.touch(sess)
			return sess
		}
	}

	sess := &session{id: uuid.NewString(), hosts: host.NewRegistry(cfg.HostsPerSession, s.metrics)}
	s.sessions.Set(sess.id, sess)
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.SessionCookie,
		Value:    sess.id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(cfg.SessionTTL / time.Second),
	})
	return sess
}

// lookupSession returns the session of the request without creating one.
func (s *Server) lookupSession(r *http.Request) (*session, bool) {
	c, err := r.Cookie(s.config().Server.SessionCookie)
	if err != nil {
		return nil, false
	}
	sess, ok := s.sessions.Get(c.Value)
	if ok {
		s.touch(sess)
	}
	return sess, ok
}

// touch extends the lifetime of an active session.
func (s *Server) touch(sess *session) {
	s.sessions.Set(sess.id, sess)
}
