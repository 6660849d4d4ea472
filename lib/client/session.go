package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
)

// LoginFunc opens a new remote session and returns its token. Sessions that
// are identified by cookies return an empty token.
type LoginFunc func(ctx context.Context) (string, error)

// Session owns one remote credential. Token logs in lazily, Refresh forces a
// new login. All methods are safe for concurrent use; concurrent logins are
// serialized.
type Session struct {
	name  string
	login LoginFunc

	mtx   sync.Mutex
	token string
	valid bool

	newBackOff func() backoff.BackOff
}

// NewSession returns a Session that logs in with login. Logins failing with a
// transport error are retried with exponential backoff.
func NewSession(name string, login LoginFunc) *Session {
	return &Session{
		name:       name,
		login:      login,
		newBackOff: defaultBackOff,
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

// Token returns the current session token, logging in first if needed.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.valid {
		return s.token, nil
	}
	return s.refresh(ctx)
}

// Refresh logs in again and returns the new token.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.refresh(ctx)
}

// Invalidate forgets the current token so the next Token call logs in again.
func (s *Session) Invalidate() {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.token = ""
	s.valid = false
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	s.valid = false
	s.token = ""

	var token string
	attempt := 0
	operation := func() error {
		attempt++
		t, err := s.login(ctx)
		if err == nil {
			token = t
			return nil
		}
		var te *lib.TransportError
		if errors.Is(err, lib.ErrAuth) || !errors.As(err, &te) {
			return backoff.Permanent(err)
		}
		log.WithError(err).WithField("session", s.name).Warnf("login attempt %d failed, retrying", attempt)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(s.newBackOff(), ctx)); err != nil {
		return "", err
	}
	s.token = token
	s.valid = true
	log.WithField("session", s.name).Debug("logged in")
	return token, nil
}
