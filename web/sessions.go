package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/stressdash/submission"
)

const sessionCookie = "stressdash_session"

type visit struct {
	ctrl     *submission.Controller
	lastSeen time.Time
}

// Sessions maps a dashboard visit (cookie) to its controller. A visit ends
// when the page reports it is leaving, when it sits idle past the TTL, or on
// shutdown; each ending disposes the controller exactly once.
type Sessions struct {
	mu      sync.RWMutex
	visits  map[string]*visit
	ttl     time.Duration
	factory func() *submission.Controller
	now     func() time.Time
	log     logrus.FieldLogger
}

func NewSessions(ttl time.Duration, factory func() *submission.Controller, log logrus.FieldLogger) *Sessions {
	return &Sessions{
		visits:  make(map[string]*visit),
		ttl:     ttl,
		factory: factory,
		now:     time.Now,
		log:     log,
	}
}

// Acquire returns the caller's controller, starting a visit and setting the
// cookie when there is none.
func (s *Sessions) Acquire(w http.ResponseWriter, r *http.Request) *submission.Controller {
	if ck, err := r.Cookie(sessionCookie); err == nil {
		s.mu.Lock()
		v, ok := s.visits[ck.Value]
		if ok {
			v.lastSeen = s.now()
		}
		s.mu.Unlock()
		if ok {
			return v.ctrl
		}
	}

	id := uuid.NewString()
	v := &visit{ctrl: s.factory(), lastSeen: s.now()}
	s.mu.Lock()
	s.visits[id] = v
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.log.WithField("session", id).Debug("visit started")
	return v.ctrl
}

// End disposes the visit named by the request's cookie.
func (s *Sessions) End(r *http.Request) bool {
	ck, err := r.Cookie(sessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	v, ok := s.visits[ck.Value]
	delete(s.visits, ck.Value)
	s.mu.Unlock()
	if ok {
		v.ctrl.Dispose()
		s.log.WithField("session", ck.Value).Debug("visit ended")
	}
	return ok
}

// Sweep disposes visits idle for longer than the TTL and returns how many.
func (s *Sessions) Sweep() int {
	cutoff := s.now().Add(-s.ttl)
	var stale []*visit

	s.mu.Lock()
	for id, v := range s.visits {
		if v.lastSeen.Before(cutoff) {
			stale = append(stale, v)
			delete(s.visits, id)
		}
	}
	s.mu.Unlock()

	for _, v := range stale {
		v.ctrl.Dispose()
	}
	if len(stale) > 0 {
		s.log.WithField("count", len(stale)).Info("expired idle visits")
	}
	return len(stale)
}

// Run sweeps every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep()
		}
	}
}

// Close disposes every visit.
func (s *Sessions) Close() {
	s.mu.Lock()
	visits := s.visits
	s.visits = make(map[string]*visit)
	s.mu.Unlock()
	for _, v := range visits {
		v.ctrl.Dispose()
	}
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visits)
}
