package poll

import (
	"context"
	"errors"
	"fmt"

	uuid "github.com/satori/go.uuid"
	log "github.com/sirupsen/logrus"
	"github.com/thompsy/go-cx-client/lib"
)

// OutcomeKind is the terminal state of a polling session.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	OutcomeFailed
	OutcomeTimedOut
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is produced exactly once per session.
type Outcome[T any] struct {
	Kind OutcomeKind

	// Last is the last successfully observed status, nil if none.
	Last *Status[T]
}

// Run polls job until it reaches a terminal state, the deadline in cfg passes,
// consecutive query failures exhaust the retry budget or ctx is cancelled.
//
// It returns a nil error only for OutcomeSucceeded, in which case
// Outcome.Last is the status that triggered OnSuccess. Otherwise the error is
// a *lib.JobError, *lib.TimeoutError, *lib.RetryError or wraps
// lib.ErrCancelled together with ctx.Err(). Only transport and protocol
// errors of the query consume the retry budget; any other query error, and
// any error matching lib.ErrAuth, ends the session at once and is returned
// wrapped.
//
// Run blocks the calling goroutine for the whole session. The only
// suspension point is the interval wait before each query.
func Run[T any](ctx context.Context, job lib.Job, query Query[T], classifier Classifier[T], cfg Config, h Handler[T]) (Outcome[T], error) {
	cfg = cfg.withDefaults()
	if h == nil {
		h = NopHandler[T]{}
	}
	logger := log.WithFields(log.Fields{
		"job":     job.ID,
		"kind":    job.Kind.String(),
		"session": uuid.NewV4().String(),
	})

	start := cfg.Clock.Now()
	h.OnStart(start, cfg.Timeout)
	logger.WithField("timeout", cfg.Timeout).Debug("polling started")

	budget := NewRetryBudget(cfg.MaxRetries)
	var last *Status[T]

	for !cfg.expired(start, cfg.Clock.Now()) {
		if ctx.Err() != nil {
			return cancelled(ctx, job, h, last, logger)
		}
		if err := cfg.Clock.Sleep(ctx, cfg.Interval); err != nil {
			return cancelled(ctx, job, h, last, logger)
		}

		raw, err := query(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(ctx, job, h, last, logger)
			}
			if !lib.IsRetryable(err) || errors.Is(err, lib.ErrAuth) {
				logger.WithError(err).Error("failed to get status")
				return Outcome[T]{Kind: OutcomeFailed, Last: last}, fmt.Errorf("%s: %w", job, err)
			}
			left, exhausted := budget.Consume()
			logger.WithError(err).Debugf("failed to get status, retrying (%d tries left)", left)
			if r, ok := h.(RetryHandler); ok {
				r.OnRetry(err, left)
			}
			if exhausted {
				logger.WithError(err).Error("status query retries exhausted")
				return Outcome[T]{Kind: OutcomeFailed, Last: last}, &lib.RetryError{Job: job, Attempts: budget.Used(), Err: err}
			}
			continue
		}
		budget.Reset()

		v := classifier.Classify(raw)
		s := Status[T]{
			Raw:      raw,
			Class:    v.Class,
			Name:     v.Status,
			Reason:   v.Reason,
			Observed: cfg.Clock.Now(),
		}
		last = &s

		switch v.Class {
		case Failed:
			h.OnFail(s)
			logger.WithField("status", s.Name).Error("job failed")
			return Outcome[T]{Kind: OutcomeFailed, Last: last}, &lib.JobError{Job: job, Status: s.Name, Reason: s.Reason}
		case Succeeded:
			h.OnSuccess(s)
			logger.WithField("status", s.Name).Debug("job succeeded")
			return Outcome[T]{Kind: OutcomeSucceeded, Last: last}, nil
		default:
			h.OnIdle(s)
		}
	}

	h.OnTimeout(last)
	terr := &lib.TimeoutError{Job: job, Timeout: cfg.Timeout, Unit: cfg.Unit}
	if last != nil {
		terr.LastStatus = last.Name
	}
	logger.Error(terr.Error())
	return Outcome[T]{Kind: OutcomeTimedOut, Last: last}, terr
}

func cancelled[T any](ctx context.Context, job lib.Job, h Handler[T], last *Status[T], logger *log.Entry) (Outcome[T], error) {
	if c, ok := h.(CancelHandler[T]); ok {
		c.OnCancel(last)
	}
	logger.WithError(ctx.Err()).Warn("polling cancelled")
	return Outcome[T]{Kind: OutcomeCancelled, Last: last}, fmt.Errorf("%s: %w: %w", job, lib.ErrCancelled, ctx.Err())
}
