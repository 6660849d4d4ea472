package poll

import (
	"math"
	"time"
)

const (
	// DefaultMaxRetries is the number of consecutive failed status queries
	// tolerated when Config.MaxRetries is not set.
	DefaultMaxRetries = 5

	// DefaultInterval is used when Config.Interval is not set.
	DefaultInterval = 10 * time.Second
)

// Config is owned by a single polling session.
type Config struct {
	// Interval is the delay before every status query.
	Interval time.Duration

	// Timeout is the deadline expressed in Units. Zero or negative waits
	// until the job reaches a terminal state.
	Timeout int64

	// Unit is the granularity of the deadline. The deadline is computed on
	// whole units of wall clock time, so the effective wait may differ from
	// Timeout by up to one unit. Defaults to time.Minute.
	Unit time.Duration

	// MaxRetries is the number of consecutive failed status queries after
	// which the session fails. Defaults to DefaultMaxRetries.
	MaxRetries int

	// Clock defaults to the wall clock.
	Clock Clock
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Unit <= 0 {
		c.Unit = time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Clock == nil {
		c.Clock = wallClock{}
	}
	return c
}

// Bounded reports whether the session has a deadline.
func (c Config) Bounded() bool { return c.Timeout > 0 }

// units returns the number of whole Units elapsed since the Unix epoch at t.
func (c Config) units(t time.Time) int64 {
	return t.UnixNano() / int64(c.Unit)
}

// deadline returns the last whole unit in which polling may still continue.
// It saturates at math.MaxInt64 for timeouts beyond the representable range.
func (c Config) deadline(start time.Time) int64 {
	u := c.units(start)
	if u > 0 && c.Timeout > math.MaxInt64-u {
		return math.MaxInt64
	}
	return u + c.Timeout
}

// expired reports whether a bounded session started at start is past its deadline at now.
func (c Config) expired(start, now time.Time) bool {
	return c.Bounded() && c.units(now) > c.deadline(start)
}
