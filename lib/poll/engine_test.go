package poll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/thompsy/go-cx-client/lib"
)

var (
	testJob      = lib.Job{ID: "1000042", Kind: lib.KindScan}
	errTransport = &lib.TransportError{Op: "get status", Err: errors.New("connection reset by peer")}
	epoch        = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

// fakeClock advances time only when Sleep is called.
type fakeClock struct {
	mtx    sync.Mutex
	now    time.Time
	sleeps int
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.now = c.now.Add(d)
	c.sleeps++
	return nil
}

// step is one scripted answer of the fake status query.
type step struct {
	status string
	err    error
}

// script returns a query answering with steps in order and "running" once
// they are exhausted, and a counter of the calls made.
func script(steps ...step) (Query[string], *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		calls++
		if calls > len(steps) {
			return "running", nil
		}
		s := steps[calls-1]
		return s.status, s.err
	}, &calls
}

var classify = ClassifierFunc[string](func(raw string) Verdict {
	switch raw {
	case "done":
		return Verdict{Class: Succeeded, Status: raw}
	case "failed":
		return Verdict{Class: Failed, Status: raw, Reason: "engine crashed"}
	default:
		return Verdict{Class: Pending, Status: raw}
	}
})

// recorder records the events it receives.
type recorder struct {
	events  []string
	idle    []Status[string]
	success []Status[string]
	fail    []Status[string]
	timeout []*Status[string]
	retries []int
	cancels int
	timeArg int64
}

func (r *recorder) OnStart(start time.Time, timeout int64) {
	r.events = append(r.events, "start")
	r.timeArg = timeout
}

func (r *recorder) OnIdle(s Status[string]) {
	r.events = append(r.events, "idle")
	r.idle = append(r.idle, s)
}

func (r *recorder) OnSuccess(s Status[string]) {
	r.events = append(r.events, "success")
	r.success = append(r.success, s)
}

func (r *recorder) OnFail(s Status[string]) {
	r.events = append(r.events, "fail")
	r.fail = append(r.fail, s)
}

func (r *recorder) OnTimeout(last *Status[string]) {
	r.events = append(r.events, "timeout")
	r.timeout = append(r.timeout, last)
}

func (r *recorder) OnRetry(err error, left int) {
	r.retries = append(r.retries, left)
}

func (r *recorder) OnCancel(last *Status[string]) {
	r.events = append(r.events, "cancel")
	r.cancels++
}

func scanConfig(clock Clock, timeout int64) Config {
	return Config{Interval: 10 * time.Second, Timeout: timeout, Unit: time.Minute, MaxRetries: 3, Clock: clock}
}

// TestPendingThenSucceeded verifies that two pending observations followed by
// a finished one produce two idle events and a single success.
func TestPendingThenSucceeded(t *testing.T) {
	query, calls := script(step{status: "running"}, step{status: "running"}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 30), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, out.Kind)
	require.NotNil(t, out.Last)
	require.Equal(t, "done", out.Last.Raw)
	require.Equal(t, []string{"start", "idle", "idle", "success"}, r.events)
	require.Len(t, r.success, 1)
	require.Equal(t, *out.Last, r.success[0])
	require.Equal(t, 3, *calls)
	require.Equal(t, int64(30), r.timeArg)
}

// TestTimeout verifies that a job which stays pending past a one minute
// deadline times out, and that the deadline is evaluated on whole minutes.
func TestTimeout(t *testing.T) {
	query, _ := script()
	r := &recorder{}
	clock := newFakeClock(epoch)

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(clock, 1), r)
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrTimeout))

	var terr *lib.TimeoutError
	require.True(t, errors.As(err, &terr))
	require.Equal(t, int64(1), terr.Timeout)
	require.Equal(t, "running", terr.LastStatus)
	require.Contains(t, err.Error(), "(1 minutes)")

	require.Equal(t, OutcomeTimedOut, out.Kind)
	require.Len(t, r.timeout, 1)
	require.NotNil(t, r.timeout[0])
	require.Empty(t, r.success)
	require.Empty(t, r.fail)
	require.Equal(t, "timeout", r.events[len(r.events)-1])

	// Started on a minute boundary, polling continues through the whole
	// following minute: queries at 10s..120s.
	require.Len(t, r.idle, 12)
}

// TestTimeoutQuantization verifies that the effective wait depends on where
// in the current unit the session started.
func TestTimeoutQuantization(t *testing.T) {
	query, _ := script()
	r := &recorder{}

	_, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch.Add(59*time.Second)), 1), r)
	require.True(t, errors.Is(err, lib.ErrTimeout))

	// Started one second before the minute boundary: queries at 69s..129s.
	require.Len(t, r.idle, 7)
}

// TestTimeoutWithoutStatus verifies that OnTimeout receives nil when no
// status query ever succeeded.
func TestTimeoutWithoutStatus(t *testing.T) {
	query := func(ctx context.Context) (string, error) { return "", errTransport }
	r := &recorder{}
	cfg := scanConfig(newFakeClock(epoch), 1)
	cfg.MaxRetries = 1000

	out, err := Run[string](context.Background(), testJob, query, classify, cfg, r)
	require.True(t, errors.Is(err, lib.ErrTimeout))
	require.Nil(t, out.Last)
	require.Len(t, r.timeout, 1)
	require.Nil(t, r.timeout[0])
}

// TestUnboundedTimeout verifies that a non positive timeout never times out.
func TestUnboundedTimeout(t *testing.T) {
	for _, timeout := range []int64{0, -1, -60} {
		steps := make([]step, 0, 1001)
		for i := 0; i < 1000; i++ {
			steps = append(steps, step{status: "running"})
		}
		steps = append(steps, step{status: "done"})
		query, _ := script(steps...)
		r := &recorder{}
		clock := newFakeClock(epoch)

		out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(clock, timeout), r)
		require.NoError(t, err)
		require.Equal(t, OutcomeSucceeded, out.Kind)
		require.Empty(t, r.timeout)
		require.Len(t, r.idle, 1000)
		require.True(t, clock.Now().Sub(epoch) > 2*time.Hour)
	}
}

// TestRetryBudgetExhausted verifies that N consecutive transport errors fail
// the session on the Nth error.
func TestRetryBudgetExhausted(t *testing.T) {
	query, calls := script(step{err: errTransport}, step{err: errTransport}, step{err: errTransport}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 0), r)
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrRetriesExhausted))
	require.True(t, errors.Is(err, errTransport))
	require.Contains(t, err.Error(), "connection reset by peer")

	var rerr *lib.RetryError
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, 3, rerr.Attempts)

	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, 3, *calls)
	require.Equal(t, []int{2, 1, 0}, r.retries)
	require.Equal(t, []string{"start"}, r.events)
}

// TestRetryBudgetReset verifies that N-1 transport errors followed by a
// successful query reset the budget.
func TestRetryBudgetReset(t *testing.T) {
	query, calls := script(
		step{err: errTransport}, step{err: errTransport},
		step{status: "running"},
		step{err: errTransport}, step{err: errTransport},
		step{status: "done"},
	)
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 0), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, out.Kind)
	require.Equal(t, 6, *calls)
	require.Equal(t, []int{2, 1, 2, 1}, r.retries)
	require.Equal(t, []string{"start", "idle", "success"}, r.events)
}

// TestAuthErrorIsFatal verifies that a rejected login ends the session on the
// first query without consuming the retry budget.
func TestAuthErrorIsFatal(t *testing.T) {
	authErr := fmt.Errorf("no session: failed to login: Invalid credentials: %w", lib.ErrAuth)
	query, calls := script(step{err: authErr}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 0), r)
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrAuth))
	require.False(t, errors.Is(err, lib.ErrRetriesExhausted))
	require.Contains(t, err.Error(), testJob.ID)

	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, 1, *calls)
	require.Empty(t, r.retries)
	require.Equal(t, []string{"start"}, r.events)
}

// TestRejectedLoginWithProtocolError covers a login rejection reported with an
// HTTP status, which is both a protocol error and an auth error.
func TestRejectedLoginWithProtocolError(t *testing.T) {
	perr := &lib.ProtocolError{Op: "failed to login", StatusCode: 403, Message: "Invalid credentials"}
	query, calls := script(step{err: fmt.Errorf("%w: %w", lib.ErrAuth, perr)})

	_, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 0), nil)
	require.True(t, errors.Is(err, lib.ErrAuth))
	require.Equal(t, 1, *calls)
}

func TestUnexpectedErrorIsFatal(t *testing.T) {
	query, calls := script(step{err: errors.New("unsupported status payload")})

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 0), nil)
	require.EqualError(t, err, "scan 1000042: unsupported status payload")
	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, 1, *calls)
}

// TestHugeTimeout verifies that a timeout beyond the representable deadline
// behaves as a very long wait instead of expiring at once.
func TestHugeTimeout(t *testing.T) {
	query, calls := script(step{status: "running"}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), math.MaxInt64), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, out.Kind)
	require.Equal(t, 2, *calls)
	require.Equal(t, []string{"start", "idle", "success"}, r.events)

	cfg := scanConfig(nil, math.MaxInt64).withDefaults()
	require.Equal(t, int64(math.MaxInt64), cfg.deadline(epoch))
	require.False(t, cfg.expired(epoch, epoch.Add(1000*time.Hour)))
}

// TestTransportErrorsThenSuccess covers two retries consumed and reset by the
// next successful query.
func TestTransportErrorsThenSuccess(t *testing.T) {
	query, _ := script(step{err: errTransport}, step{err: errTransport}, step{status: "running"}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 10), r)
	require.NoError(t, err)
	require.Equal(t, OutcomeSucceeded, out.Kind)
	require.Equal(t, []int{2, 1}, r.retries)
	require.Equal(t, []string{"start", "idle", "success"}, r.events)
}

// TestFailedOnFirstObservation verifies that a failed status ends the session
// immediately, even with retry budget and time left.
func TestFailedOnFirstObservation(t *testing.T) {
	query, calls := script(step{status: "running"}, step{err: errTransport}, step{status: "failed"}, step{status: "done"})
	r := &recorder{}

	out, err := Run[string](context.Background(), testJob, query, classify, scanConfig(newFakeClock(epoch), 60), r)
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrJobFailed))
	require.Contains(t, err.Error(), "status [failed]")
	require.Contains(t, err.Error(), "engine crashed")
	require.Contains(t, err.Error(), testJob.ID)

	require.Equal(t, OutcomeFailed, out.Kind)
	require.Equal(t, 3, *calls)
	require.Equal(t, []string{"start", "idle", "fail"}, r.events)
	require.Equal(t, "engine crashed", r.fail[0].Reason)
}

// TestCancel verifies that cancelling the context ends the session with a
// cancelled outcome at the next loop boundary.
func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query, calls := script()
	r := &recorder{}
	h := &cancelOnIdle{recorder: r, after: 2, cancel: cancel}

	out, err := Run[string](ctx, testJob, query, classify, scanConfig(newFakeClock(epoch), 0), h)
	require.Error(t, err)
	require.True(t, errors.Is(err, lib.ErrCancelled))
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, OutcomeCancelled, out.Kind)
	require.NotNil(t, out.Last)
	require.Equal(t, 2, *calls)
	require.Equal(t, 1, r.cancels)
	require.Equal(t, []string{"start", "idle", "idle", "cancel"}, r.events)
}

// TestCancelDuringQuery verifies that a query aborted by cancellation does not
// consume the retry budget.
func TestCancelDuringQuery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	query := func(ctx context.Context) (string, error) {
		cancel()
		return "", &lib.TransportError{Op: "get status", Err: ctx.Err()}
	}
	r := &recorder{}

	out, err := Run[string](ctx, testJob, query, classify, scanConfig(newFakeClock(epoch), 0), r)
	require.True(t, errors.Is(err, lib.ErrCancelled))
	require.Equal(t, OutcomeCancelled, out.Kind)
	require.Empty(t, r.retries)
}

// TestWallClockCancel verifies that the default clock honours cancellation
// during the interval wait.
func TestWallClockCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	query, calls := script()
	cfg := Config{Interval: time.Hour}

	start := time.Now()
	out, err := Run[string](ctx, testJob, query, classify, cfg, nil)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.Equal(t, OutcomeCancelled, out.Kind)
	require.Equal(t, 0, *calls)
	require.Less(t, int64(time.Since(start)), int64(10*time.Second))
}

// TestDefaults verifies the zero Config values are replaced.
func TestDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	require.Equal(t, DefaultInterval, cfg.Interval)
	require.Equal(t, time.Minute, cfg.Unit)
	require.Equal(t, DefaultMaxRetries, cfg.MaxRetries)
	require.NotNil(t, cfg.Clock)
	require.False(t, cfg.Bounded())
}

type cancelOnIdle struct {
	*recorder
	after  int
	cancel context.CancelFunc
}

func (c *cancelOnIdle) OnIdle(s Status[string]) {
	c.recorder.OnIdle(s)
	if len(c.idle) == c.after {
		c.cancel()
	}
}
