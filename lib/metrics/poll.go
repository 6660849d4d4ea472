package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/thompsy/go-cx-client/lib"
	"github.com/thompsy/go-cx-client/lib/poll"
)

func init() {
	register(pollsTotal, retriesTotal, outcomesTotal, waitDuration)
}

// outcomeRetriesExhausted labels sessions ended by their retry budget. They
// have no terminal handler event of their own.
const outcomeRetriesExhausted = "retries_exhausted"

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cxclient_polls_total",
			Help: "Successful status queries per job kind and classification.",
		},
		[]string{"kind", "class"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cxclient_poll_retries_total",
			Help: "Failed status queries per job kind.",
		},
		[]string{"kind"},
	)

	outcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cxclient_wait_outcomes_total",
			Help: "Finished waits per job kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	waitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cxclient_wait_duration_seconds",
			Help:    "Time from the start of a wait to its outcome.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600, 7200},
		},
		[]string{"kind", "outcome"},
	)
)

// Observe returns a poll.Handler that records the lifecycle of a wait for a
// job of the given kind and forwards every event to next, which may be nil.
func Observe[T any](kind lib.Kind, next poll.Handler[T]) poll.Handler[T] {
	return ObserveWithClock(kind, nil, next)
}

// ObserveWithClock is Observe for a wait driven by clock. Wait durations are
// measured on clock, which defaults to the wall clock when nil.
func ObserveWithClock[T any](kind lib.Kind, clock poll.Clock, next poll.Handler[T]) poll.Handler[T] {
	if next == nil {
		next = poll.NopHandler[T]{}
	}
	now := time.Now
	if clock != nil {
		now = clock.Now
	}
	return &observer[T]{kind: kind.String(), next: next, now: now}
}

type observer[T any] struct {
	kind string
	next poll.Handler[T]
	now  func() time.Time

	mtx   sync.Mutex
	start time.Time
}

func (o *observer[T]) done(outcome string, at time.Time) {
	o.mtx.Lock()
	start := o.start
	o.mtx.Unlock()

	outcomesTotal.WithLabelValues(o.kind, outcome).Inc()
	if !start.IsZero() && !at.IsZero() {
		waitDuration.WithLabelValues(o.kind, outcome).Observe(at.Sub(start).Seconds())
	}
}

func (o *observer[T]) OnStart(start time.Time, timeout int64) {
	o.mtx.Lock()
	o.start = start
	o.mtx.Unlock()
	o.next.OnStart(start, timeout)
}

func (o *observer[T]) OnIdle(s poll.Status[T]) {
	pollsTotal.WithLabelValues(o.kind, s.Class.String()).Inc()
	o.next.OnIdle(s)
}

func (o *observer[T]) OnSuccess(s poll.Status[T]) {
	pollsTotal.WithLabelValues(o.kind, s.Class.String()).Inc()
	o.done(poll.OutcomeSucceeded.String(), s.Observed)
	o.next.OnSuccess(s)
}

func (o *observer[T]) OnFail(s poll.Status[T]) {
	pollsTotal.WithLabelValues(o.kind, s.Class.String()).Inc()
	o.done(poll.OutcomeFailed.String(), s.Observed)
	o.next.OnFail(s)
}

func (o *observer[T]) OnTimeout(last *poll.Status[T]) {
	o.done(poll.OutcomeTimedOut.String(), o.now())
	o.next.OnTimeout(last)
}

func (o *observer[T]) OnRetry(err error, left int) {
	retriesTotal.WithLabelValues(o.kind).Inc()
	if left == 0 {
		o.done(outcomeRetriesExhausted, o.now())
	}
	if r, ok := o.next.(poll.RetryHandler); ok {
		r.OnRetry(err, left)
	}
}

func (o *observer[T]) OnCancel(last *poll.Status[T]) {
	o.done(poll.OutcomeCancelled.String(), o.now())
	if c, ok := o.next.(poll.CancelHandler[T]); ok {
		c.OnCancel(last)
	}
}
