package poll

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// Handler receives the lifecycle events of a polling session. Events are
// delivered synchronously on the polling goroutine in the order OnStart,
// any number of OnIdle, then at most one of OnSuccess, OnFail or OnTimeout.
type Handler[T any] interface {
	// OnStart is called once before the first query with the session start
	// time and the configured timeout in the session's unit.
	OnStart(start time.Time, timeout int64)

	// OnIdle is called for every observed non terminal status.
	OnIdle(s Status[T])

	// OnSuccess is called once when the job succeeded.
	OnSuccess(s Status[T])

	// OnFail is called once, before the error is returned, when the job failed.
	OnFail(s Status[T])

	// OnTimeout is called once, before the error is returned, when the
	// deadline passed. last is nil if no query ever succeeded.
	OnTimeout(last *Status[T])
}

// RetryHandler may be implemented by a Handler that wants to observe failed
// status queries. left is the number of failures still tolerated.
type RetryHandler interface {
	OnRetry(err error, left int)
}

// CancelHandler may be implemented by a Handler that wants to observe a
// session ending because its context was cancelled.
type CancelHandler[T any] interface {
	OnCancel(last *Status[T])
}

// NopHandler ignores all events.
type NopHandler[T any] struct{}

func (NopHandler[T]) OnStart(time.Time, int64) {}
func (NopHandler[T]) OnIdle(Status[T])         {}
func (NopHandler[T]) OnSuccess(Status[T])      {}
func (NopHandler[T]) OnFail(Status[T])         {}
func (NopHandler[T]) OnTimeout(*Status[T])     {}

// LogHandler writes the lifecycle of a session to the standard logger.
type LogHandler[T any] struct {
	// Name is the job description used in every line, e.g. "scan 1000123".
	Name string

	// Describe optionally renders extra progress details of a status.
	Describe func(s Status[T]) string
}

func (h LogHandler[T]) entry(s *Status[T]) *log.Entry {
	e := log.WithField("job", h.Name)
	if s == nil {
		return e
	}
	e = e.WithField("status", s.Name)
	if h.Describe != nil {
		if d := h.Describe(*s); d != "" {
			e = e.WithField("progress", d)
		}
	}
	return e
}

func (h LogHandler[T]) OnStart(start time.Time, timeout int64) {
	e := log.WithField("job", h.Name).WithField("started", start.Format(time.RFC3339))
	if timeout > 0 {
		e = e.WithField("timeout", timeout)
	}
	e.Info("waiting for job to finish")
}

func (h LogHandler[T]) OnIdle(s Status[T]) {
	h.entry(&s).Info("waiting")
}

func (h LogHandler[T]) OnSuccess(s Status[T]) {
	h.entry(&s).Info("job finished")
}

func (h LogHandler[T]) OnFail(s Status[T]) {
	e := h.entry(&s)
	if s.Reason != "" {
		e = e.WithField("reason", s.Reason)
	}
	e.Error("job failed")
}

func (h LogHandler[T]) OnTimeout(last *Status[T]) {
	h.entry(last).Error("job timed out")
}

func (h LogHandler[T]) OnRetry(err error, left int) {
	log.WithError(err).WithField("job", h.Name).Warnf("failed to get status, %d tries left", left)
}

func (h LogHandler[T]) OnCancel(last *Status[T]) {
	h.entry(last).Warn("wait cancelled")
}

// Multi returns a Handler that forwards every event to all of hs in order,
// including the optional RetryHandler and CancelHandler events for those
// handlers that implement them.
func Multi[T any](hs ...Handler[T]) Handler[T] {
	return multi[T](hs)
}

type multi[T any] []Handler[T]

func (m multi[T]) OnStart(start time.Time, timeout int64) {
	for _, h := range m {
		h.OnStart(start, timeout)
	}
}

func (m multi[T]) OnIdle(s Status[T]) {
	for _, h := range m {
		h.OnIdle(s)
	}
}

func (m multi[T]) OnSuccess(s Status[T]) {
	for _, h := range m {
		h.OnSuccess(s)
	}
}

func (m multi[T]) OnFail(s Status[T]) {
	for _, h := range m {
		h.OnFail(s)
	}
}

func (m multi[T]) OnTimeout(last *Status[T]) {
	for _, h := range m {
		h.OnTimeout(last)
	}
}

func (m multi[T]) OnRetry(err error, left int) {
	for _, h := range m {
		if r, ok := h.(RetryHandler); ok {
			r.OnRetry(err, left)
		}
	}
}

func (m multi[T]) OnCancel(last *Status[T]) {
	for _, h := range m {
		if c, ok := h.(CancelHandler[T]); ok {
			c.OnCancel(last)
		}
	}
}
